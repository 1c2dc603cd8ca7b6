package matching

import (
	"math"
	"strings"
)

// Jaro computes the Jaro similarity of two strings over runes.
func Jaro(s1, s2 string) float64 {
	if s1 == s2 {
		return 1.0
	}

	r1, r2 := []rune(s1), []rune(s2)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	window := max(len1, len2)/2 - 1
	if window < 0 {
		window = 0
	}

	matched1 := make([]bool, len1)
	matched2 := make([]bool, len2)
	matches := 0
	for i := 0; i < len1; i++ {
		start := max(0, i-window)
		end := min(len2, i+window+1)
		for j := start; j < end; j++ {
			if matched2[j] || r1[i] != r2[j] {
				continue
			}
			matched1[i] = true
			matched2[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len1) + m/float64(len2) + (m-float64(transpositions)/2.0)/m) / 3.0
}

// JaroWinkler boosts Jaro similarity by up to four characters of common
// prefix. Comparison is case-insensitive.
func JaroWinkler(s1, s2 string) float64 {
	s1, s2 = strings.ToLower(s1), strings.ToLower(s2)
	jaro := Jaro(s1, s2)
	if jaro < 0.7 {
		return jaro
	}

	r1, r2 := []rune(s1), []rune(s2)
	prefix := 0
	for i := 0; i < min(len(r1), len(r2), 4); i++ {
		if r1[i] != r2[i] {
			break
		}
		prefix++
	}

	return math.Min(jaro+float64(prefix)*0.1*(1.0-jaro), 1.0)
}
