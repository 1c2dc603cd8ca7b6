// Package homoglyph repairs words that mix visually identical Latin and
// Cyrillic letters.
package homoglyph

import (
	"regexp"
	"strings"
)

const (
	ambiguousCyrillic = "ІіАаВЕеКМНОоРрСсТуХх"
	ambiguousLatin    = "IiAaBEeKMHOoPpCcTyXx"
	fullCyrillic      = "АаБбВвГгДдЕеЄєЖжЗзІіЫыИиЙйКкЛлМмНнОоПпРрСсТтУуФфХхЦцЧчШшЩщЭэЮюЯяЇїЬьЪъЁёҐґ"
	fullLatin         = "AaBbCcDdEeFfGgHhIiJjKkLlMmNnOoPpQqRrSsTtUuVvWwXxYyZz"
)

var (
	toLatin    = map[rune]rune{}
	toCyrillic = map[rune]rune{}

	cyrillicAmbiguous = runeSet(ambiguousCyrillic)
	latinAmbiguous    = runeSet(ambiguousLatin)
	cyrillicLetters   = runeSet(fullCyrillic)
	latinLetters      = runeSet(fullLatin)
)

func init() {
	cyr, lat := []rune(ambiguousCyrillic), []rune(ambiguousLatin)
	for i := range cyr {
		toLatin[cyr[i]] = lat[i]
		toCyrillic[lat[i]] = cyr[i]
	}
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}

// ToLatin replaces Cyrillic letters that have a Latin twin.
func ToLatin(s string) string {
	return strings.Map(func(r rune) rune {
		if l, ok := toLatin[r]; ok {
			return l
		}
		return r
	}, s)
}

// ToCyrillic replaces Latin letters that have a Cyrillic twin.
func ToCyrillic(s string) string {
	return strings.Map(func(r rune) rune {
		if c, ok := toCyrillic[r]; ok {
			return c
		}
		return r
	}, s)
}

// Outcome is the branch taken for a token.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota // single script, nothing to repair
	OutcomeRoman                    // coerced to a Latin Roman numeral
	OutcomeCyrillic                 // coerced to Cyrillic
	OutcomeLatin                    // coerced to Latin, offending letters marked in the audit text
	OutcomeMixed                    // unambiguous letters of both scripts; left alone
	OutcomeDeferred                 // only ambiguous letters; cannot decide
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRoman:
		return "roman"
	case OutcomeCyrillic:
		return "cyrillic"
	case OutcomeLatin:
		return "latin"
	case OutcomeMixed:
		return "mixed"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Warning reports whether the outcome needs to be surfaced to an operator.
func (o Outcome) Warning() bool {
	return o == OutcomeMixed || o == OutcomeDeferred
}

var romanNumeral = regexp.MustCompile(`^M{0,4}(CM|CD|D?C{0,3})(XC|XL|L?X{0,3})(IX|IV|V?I{0,3})$`)

// IsRomanNumeral reports whether s is a well formed, non-empty Roman numeral.
func IsRomanNumeral(s string) bool {
	return s != "" && romanNumeral.MatchString(s)
}

// Token is the resolution of a single whitespace-delimited token.
type Token struct {
	Original string
	Fixed    string
	// Audit wraps letters that were converted from Cyrillic in <u></u>.
	Audit   string
	Outcome Outcome
}

// ResolveToken picks the repair for one token. The same token always takes the
// same branch.
func ResolveToken(token string) Token {
	res := Token{Original: token, Fixed: token, Audit: token, Outcome: OutcomeUnchanged}

	var hasCyr, hasLat, specialCyr, specialLat, ambCyr, ambLat bool
	for _, r := range token {
		switch {
		case cyrillicLetters[r]:
			hasCyr = true
			if cyrillicAmbiguous[r] {
				ambCyr = true
			} else {
				specialCyr = true
			}
		case latinLetters[r]:
			hasLat = true
			if latinAmbiguous[r] {
				ambLat = true
			} else {
				specialLat = true
			}
		}
	}

	if !hasCyr || !hasLat {
		return res
	}

	latin := ToLatin(token)
	switch {
	case IsRomanNumeral(latin):
		res.Fixed, res.Audit, res.Outcome = latin, latin, OutcomeRoman
	case specialCyr && ambLat && !specialLat:
		fixed := ToCyrillic(token)
		res.Fixed, res.Audit, res.Outcome = fixed, fixed, OutcomeCyrillic
	case specialLat && ambCyr && !specialCyr:
		res.Fixed, res.Audit, res.Outcome = latin, markConverted(token), OutcomeLatin
	case specialCyr && specialLat:
		res.Outcome = OutcomeMixed
	default:
		res.Outcome = OutcomeDeferred
	}
	return res
}

func markConverted(token string) string {
	var b strings.Builder
	for _, r := range token {
		if l, ok := toLatin[r]; ok {
			b.WriteString("<u>")
			b.WriteRune(l)
			b.WriteString("</u>")
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Result is the resolution of a whole text.
type Result struct {
	Text  string
	Audit string
	// Tokens lists every token that mixed scripts, in order of appearance.
	Tokens []Token
}

// Warnings returns the tokens that were left alone because they could not be
// classified.
func (r Result) Warnings() []Token {
	var out []Token
	for _, t := range r.Tokens {
		if t.Outcome.Warning() {
			out = append(out, t)
		}
	}
	return out
}

var tokenPattern = regexp.MustCompile(`\S+`)

// Fix resolves every whitespace-delimited token of text, keeping the original
// spacing.
func Fix(text string) Result {
	var res Result
	var audit strings.Builder
	last := 0
	var fixed strings.Builder
	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		fixed.WriteString(text[last:loc[0]])
		audit.WriteString(text[last:loc[0]])

		tok := ResolveToken(text[loc[0]:loc[1]])
		fixed.WriteString(tok.Fixed)
		audit.WriteString(tok.Audit)
		if tok.Outcome != OutcomeUnchanged {
			res.Tokens = append(res.Tokens, tok)
		}
		last = loc[1]
	}
	fixed.WriteString(text[last:])
	audit.WriteString(text[last:])

	res.Text = fixed.String()
	res.Audit = audit.String()
	return res
}
