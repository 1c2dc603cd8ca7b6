package blocking

import (
	"strings"
	"unicode"
)

var soundexCodes = map[rune]byte{
	'B': '1', 'F': '1', 'P': '1', 'V': '1',
	'C': '2', 'G': '2', 'J': '2', 'K': '2', 'Q': '2', 'S': '2', 'X': '2', 'Z': '2',
	'D': '3', 'T': '3',
	'L': '4',
	'M': '5', 'N': '5',
	'R': '6',
}

// Soundex computes the four character American Soundex code. The first rune
// is kept as is (uppercased); H and W do not separate equal codes, every other
// uncoded rune does. Empty input yields "".
func Soundex(s string) string {
	rs := []rune(strings.ToUpper(strings.TrimSpace(s)))
	if len(rs) == 0 {
		return ""
	}

	out := []byte(string(rs[0]))
	count := 1
	last, hasLast := soundexCodes[rs[0]]
	for _, r := range rs[1:] {
		if count == 4 {
			break
		}
		code, ok := soundexCodes[unicode.ToUpper(r)]
		if !ok {
			if r != 'H' && r != 'W' {
				hasLast = false
			}
			continue
		}
		if !hasLast || code != last {
			out = append(out, code)
			count++
		}
		last, hasLast = code, true
	}
	for ; count < 4; count++ {
		out = append(out, '0')
	}
	return string(out)
}
