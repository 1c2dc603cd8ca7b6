package matching

import (
	"github.com/agnivade/levenshtein"
)

// LevelKind tags what a comparison level means.
type LevelKind int

const (
	LevelNull LevelKind = iota
	LevelExact
	LevelReversed
	LevelFuzzy
	LevelEditDistance
	LevelElse
)

func (k LevelKind) String() string {
	switch k {
	case LevelNull:
		return "null"
	case LevelExact:
		return "exact"
	case LevelReversed:
		return "reversed"
	case LevelFuzzy:
		return "fuzzy"
	case LevelEditDistance:
		return "edit_distance"
	case LevelElse:
		return "else"
	default:
		return "unknown"
	}
}

// Level is one outcome of a comparison column, with its default m and u.
type Level struct {
	Name string
	Kind LevelKind
	// TermFrequency adjusts the weight by how common the compared value is.
	TermFrequency bool
	DefaultM      float64
	DefaultU      float64
}

// Comparison is a column of the comparison vector. Level 0 is always the null
// level.
type Comparison struct {
	Name    string
	Levels  []Level
	compare func(a, b *Record) int
	// value is the term looked up in the frequency table.
	value func(r *Record) string
}

// Level returns the level index for a pair.
func (c *Comparison) Level(a, b *Record) int {
	return c.compare(a, b)
}

// Value returns the value of r used for term frequency adjustment.
func (c *Comparison) Value(r *Record) string {
	if c.value == nil {
		return ""
	}
	return c.value(r)
}

// HasTermFrequency reports whether any level is term frequency adjusted.
func (c *Comparison) HasTermFrequency() bool {
	for _, l := range c.Levels {
		if l.TermFrequency {
			return true
		}
	}
	return false
}

const (
	jwHigh = 0.92
	jwLow  = 0.88
)

// Comparisons returns the comparison columns in vector order.
func Comparisons() []Comparison {
	return []Comparison{
		identifierComparison(),
		fullNameComparison(),
		romanComparison(),
		yearComparison("year_of_birth", func(r *Record) string { return r.YearOfBirth }),
		yearComparison("year_of_death", func(r *Record) string { return r.YearOfDeath }),
	}
}

func identifierComparison() Comparison {
	return Comparison{
		Name: "identifier",
		Levels: []Level{
			{Name: "null", Kind: LevelNull},
			{Name: "exact", Kind: LevelExact, DefaultM: 0.95, DefaultU: 0.0001},
			{Name: "else", Kind: LevelElse, DefaultM: 0.05, DefaultU: 0.9999},
		},
		compare: func(a, b *Record) int {
			switch {
			case a.Identifier == "" || b.Identifier == "":
				return 0
			case a.Identifier == b.Identifier:
				return 1
			default:
				return 2
			}
		},
	}
}

func fullNameComparison() Comparison {
	return Comparison{
		Name: "full_name",
		Levels: []Level{
			{Name: "null", Kind: LevelNull},
			{Name: "exact", Kind: LevelExact, TermFrequency: true, DefaultM: 0.5, DefaultU: 0.001},
			{Name: "reversed", Kind: LevelReversed, DefaultM: 0.05, DefaultU: 0.0005},
			{Name: "jaro_winkler_0.92", Kind: LevelFuzzy, DefaultM: 0.25, DefaultU: 0.005},
			{Name: "jaro_winkler_0.88", Kind: LevelFuzzy, DefaultM: 0.1, DefaultU: 0.01},
			{Name: "else", Kind: LevelElse, DefaultM: 0.1, DefaultU: 0.9835},
		},
		compare: func(a, b *Record) int {
			if a.EntryName == "" && a.ProcGivenName == "" && b.EntryName == "" && b.ProcGivenName == "" {
				return 0
			}
			if a.FullName == b.FullName {
				return 1
			}
			if a.EntryName == b.ProcGivenName && a.ProcGivenName == b.EntryName {
				return 2
			}
			entry := JaroWinkler(a.EntryName, b.EntryName)
			given := JaroWinkler(a.ProcGivenName, b.ProcGivenName)
			switch {
			case entry >= jwHigh && given >= jwHigh:
				return 3
			case entry >= jwLow && given >= jwLow:
				return 4
			default:
				return 5
			}
		},
		value: func(r *Record) string { return r.FullName },
	}
}

func romanComparison() Comparison {
	return Comparison{
		Name: "roman",
		Levels: []Level{
			{Name: "null", Kind: LevelNull},
			{Name: "exact", Kind: LevelExact, TermFrequency: true, DefaultM: 0.9, DefaultU: 0.1},
			{Name: "else", Kind: LevelElse, DefaultM: 0.1, DefaultU: 0.9},
		},
		compare: func(a, b *Record) int {
			switch {
			case a.Roman == "" || b.Roman == "":
				return 0
			case a.Roman == b.Roman:
				return 1
			default:
				return 2
			}
		},
		value: func(r *Record) string { return r.Roman },
	}
}

func yearComparison(name string, year func(r *Record) string) Comparison {
	return Comparison{
		Name: name,
		Levels: []Level{
			{Name: "null", Kind: LevelNull},
			{Name: "exact", Kind: LevelExact, DefaultM: 0.85, DefaultU: 0.01},
			{Name: "levenshtein_1", Kind: LevelEditDistance, DefaultM: 0.1, DefaultU: 0.05},
			{Name: "else", Kind: LevelElse, DefaultM: 0.05, DefaultU: 0.94},
		},
		compare: func(a, b *Record) int {
			ya, yb := year(a), year(b)
			switch {
			case ya == "" || yb == "":
				return 0
			case ya == yb:
				return 1
			case levenshtein.ComputeDistance(ya, yb) <= 1:
				return 2
			default:
				return 3
			}
		},
	}
}

// Vector computes the comparison vector of a pair.
func Vector(comparisons []Comparison, a, b *Record) []int {
	vec := make([]int, len(comparisons))
	for i := range comparisons {
		vec[i] = comparisons[i].Level(a, b)
	}
	return vec
}
