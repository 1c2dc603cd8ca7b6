// Package textnorm cleans raw name and date subfields into comparable strings.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var scriptDigits = map[rune]rune{
	'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
	'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9',
	'₀': '0', '₁': '1', '₂': '2', '₃': '3', '₄': '4',
	'₅': '5', '₆': '6', '₇': '7', '₈': '8', '₉': '9',
}

// Ligatures, diacritic letters and legal symbols.
var charConversion = strings.NewReplacer(
	"Æ", "AE", "æ", "ae",
	"Œ", "OE", "œ", "oe",
	"Đ", "D", "đ", "d",
	"Ð", "D", "ð", "d",
	"ı", "i",
	"Ơ", "O", "ơ", "o",
	"Ư", "U", "ư", "u",
	"Ø", "O", "ø", "o",
	"Þ", "TH", "þ", "th",
	"ß", "SS",
	"©", "", "℗", "", "®", "",
	"™", "", "°", "", "±", "", "‰", "",
)

var deletedMarks = map[rune]bool{'ʾ': true, 'ʿ': true, '·': true}

var punctuation = strings.NewReplacer(
	"!", " ", "\"", " ", "'", "", "(", " ", ")", " ",
	"[", "", "]", "", "{", " ", "}", " ",
	"<", " ", ">", " ", ";", " ", ":", " ",
	"?", " ", "¿", " ", "¡", " ", ",", " ", "/", " ",
	"\\", " ", "*", " ", "|", " ",
	"%", " ", "=", " ", "−", "-", "ℤ", " ",
	"×", "x", "÷", "/", "‘", " ", "’", " ", "‛", " ",
	"“", " ", "”", " ", "„", " ", "‧", " ",
)

var (
	foldDigits = runes.Map(func(r rune) rune {
		if d, ok := scriptDigits[r]; ok {
			return d
		}
		return r
	})
	dropMarks    = runes.Remove(runes.Predicate(func(r rune) bool { return deletedMarks[r] }))
	dropControls = runes.Remove(runes.Predicate(func(r rune) bool { return r < 0x20 && !unicode.IsSpace(r) || r == 0x7f }))
)

// Normalize runs the name cleaning pipeline. Blank input yields "".
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	text, _, err := transform.String(transform.Chain(norm.NFC, foldDigits), raw)
	if err != nil {
		return ""
	}
	text = charConversion.Replace(text)
	if text, _, err = transform.String(dropMarks, text); err != nil {
		return ""
	}
	text = punctuation.Replace(text)
	if text, _, err = transform.String(dropControls, text); err != nil {
		return ""
	}

	return strings.Join(strings.Fields(text), " ")
}

var (
	datePlain     = regexp.MustCompile(`^\d{4}(-\d{4})?$`)
	dateOpen      = regexp.MustCompile(`^\d{4}-$`)
	dateUncertain = regexp.MustCompile(`^\d{4}\?$`)
)

// NormalizeDates accepts YYYY, YYYY-YYYY, YYYY- and YYYY? (returned without
// the question mark). Anything else yields "".
func NormalizeDates(text string) string {
	text = strings.Join(strings.Fields(text), "")
	text = strings.Trim(text, "()[]")
	text = strings.TrimRight(text, ".,")
	if text == "" {
		return ""
	}

	for _, r := range text {
		if !(r >= '0' && r <= '9') && r != '-' && r != '?' {
			return ""
		}
	}

	switch {
	case datePlain.MatchString(text), dateOpen.MatchString(text):
		return text
	case dateUncertain.MatchString(text):
		return strings.TrimSuffix(text, "?")
	default:
		return ""
	}
}

// ToInitials converts a forename to initials, keeping hyphens and spaces:
// "Jean-Paul Louis" -> "J.-P. L.".
func ToInitials(forename string) string {
	words := strings.Fields(forename)
	initials := make([]string, 0, len(words))
	for _, word := range words {
		var parts []string
		for _, part := range strings.Split(word, "-") {
			r := []rune(part)
			if len(r) == 0 {
				continue
			}
			parts = append(parts, string(r[0])+".")
		}
		if len(parts) > 0 {
			initials = append(initials, strings.Join(parts, "-"))
		}
	}
	return strings.Join(initials, " ")
}

var isniPattern = regexp.MustCompile(`^\d{15}[\dX]$`)

// NormalizeISNI strips separators and validates the 16-character ISNI shape.
func NormalizeISNI(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == 'X' || r == 'x' {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	isni := b.String()
	if !isniPattern.MatchString(isni) {
		return ""
	}
	return isni
}

// NormalizeGivenName tidies an already cleaned $g subfield. When stripEntry is
// set, a leading copy of the entry name (optionally followed by a comma) is
// removed.
func NormalizeGivenName(entry, given string, stripEntry bool) string {
	if stripEntry && entry != "" && strings.HasPrefix(given, entry) {
		given = strings.TrimPrefix(given, entry)
		given = strings.TrimPrefix(given, ",")
		given = strings.TrimLeftFunc(given, unicode.IsSpace)
	}

	// Space after every dot that is followed by something other than whitespace.
	r := []rune(given)
	var b strings.Builder
	for i, c := range r {
		b.WriteRune(c)
		if c == '.' && i+1 < len(r) && !unicode.IsSpace(r[i+1]) {
			b.WriteRune(' ')
		}
	}

	return strings.TrimRight(b.String(), ",\\-")
}
