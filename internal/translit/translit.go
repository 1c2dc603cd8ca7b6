// Package translit romanizes Cyrillic text with per-language tables.
package translit

import (
	"strings"
	"unicode"
)

// Pack is a Cyrillic to Latin table for one language.
type Pack struct {
	Code  string
	table map[rune]string
}

var common = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ж': "zh",
	'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u", 'ф': "f",
	'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch", 'ь': "",
	'ю': "ju", 'я': "ja",
}

var overrides = map[string]map[rune]string{
	"ru": {
		'ё': "e", 'ъ': "", 'ы': "y", 'э': "e",
	},
	"uk": {
		'г': "h", 'ґ': "g", 'и': "y", 'і': "i", 'ї': "ji", 'є': "je",
		'х': "kh", 'щ': "shch", '\'': "", 'ʼ': "",
	},
	"bg": {
		'й': "y", 'щ': "sht", 'ъ': "a", 'ю': "yu", 'я': "ya", 'ь': "y",
	},
}

var packs = map[string]*Pack{}

func init() {
	for code, extra := range overrides {
		table := make(map[rune]string, len(common)+len(extra))
		for r, s := range common {
			table[r] = s
		}
		for r, s := range extra {
			table[r] = s
		}
		packs[code] = &Pack{Code: code, table: table}
	}
}

var languageCodes = map[string]string{
	"rus": "ru",
	"ukr": "uk",
	"bul": "bg",
}

// ForLanguage returns the pack for an ISO 639-2 code. Unknown or empty codes
// fall back to Russian.
func ForLanguage(lang string) *Pack {
	if code, ok := languageCodes[strings.ToLower(lang)]; ok {
		return packs[code]
	}
	return packs["ru"]
}

// Romanize replaces every Cyrillic letter the pack knows. Other characters
// pass through. An uppercase letter capitalizes the first rune of its
// replacement.
func (p *Pack) Romanize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		lower := unicode.ToLower(r)
		repl, ok := p.table[lower]
		if !ok {
			b.WriteRune(r)
			continue
		}
		if lower != r && repl != "" {
			rs := []rune(repl)
			rs[0] = unicode.ToUpper(rs[0])
			repl = string(rs)
		}
		b.WriteString(repl)
	}
	return b.String()
}

// Romanize is shorthand for ForLanguage(lang).Romanize(text).
func Romanize(text, lang string) string {
	return ForLanguage(lang).Romanize(text)
}
