package matching

import (
	"math"
)

// Floor for m and u when weights are computed.
const epsilon = 1e-6

// LevelParams are the trained probabilities of one level.
type LevelParams struct {
	Name string  `yaml:"name"`
	M    float64 `yaml:"m"`
	U    float64 `yaml:"u"`
}

// ColumnParams are the trained probabilities of one comparison column.
type ColumnParams struct {
	Name   string        `yaml:"name"`
	Levels []LevelParams `yaml:"levels"`
}

// Model is a trained Fellegi-Sunter model.
type Model struct {
	Prior     float64        `yaml:"prior"`
	Threshold float64        `yaml:"threshold"`
	Columns   []ColumnParams `yaml:"columns"`
	// TermFrequencies maps a column name to value -> relative frequency.
	TermFrequencies map[string]map[string]float64 `yaml:"-"`

	comparisons []Comparison
}

// DefaultModel builds a model from the default level parameters.
func DefaultModel(prior, threshold float64) *Model {
	comparisons := Comparisons()
	m := &Model{
		Prior:           prior,
		Threshold:       threshold,
		Columns:         make([]ColumnParams, len(comparisons)),
		TermFrequencies: make(map[string]map[string]float64),
		comparisons:     comparisons,
	}
	for i, c := range comparisons {
		col := ColumnParams{Name: c.Name, Levels: make([]LevelParams, len(c.Levels))}
		for j, l := range c.Levels {
			col.Levels[j] = LevelParams{Name: l.Name, M: l.DefaultM, U: l.DefaultU}
		}
		m.Columns[i] = col
	}
	return m
}

// Comparisons returns the columns the model scores.
func (m *Model) Comparisons() []Comparison {
	return m.comparisons
}

// ScoredPair is a compared and weighted candidate pair.
type ScoredPair struct {
	Left, Right int
	Vector      []int
	Weight      float64
	Probability float64
}

// Score compares a and b and computes their match weight and probability.
func (m *Model) Score(a, b *Record) ScoredPair {
	vec := Vector(m.comparisons, a, b)
	w := m.Weight(vec, a, b)
	return ScoredPair{Vector: vec, Weight: w, Probability: Probability(w)}
}

// Weight is the log2 match weight of a comparison vector:
// log2(prior odds) + sum of log2(m/u) + term frequency adjustments.
func (m *Model) Weight(vec []int, a, b *Record) float64 {
	w := math.Log2(m.Prior / (1 - m.Prior))
	for i, level := range vec {
		def := m.comparisons[i].Levels[level]
		if def.Kind == LevelNull {
			continue
		}
		p := m.Columns[i].Levels[level]
		w += math.Log2(math.Max(p.M, epsilon) / math.Max(p.U, epsilon))
		if def.TermFrequency {
			w += m.tfAdjustment(i, level, m.comparisons[i].Value(a))
		}
	}
	return w
}

// tfAdjustment is log2(u_exact / tf(value)). Unknown values are not adjusted.
func (m *Model) tfAdjustment(col, level int, value string) float64 {
	freqs := m.TermFrequencies[m.comparisons[col].Name]
	tf, ok := freqs[value]
	if !ok || tf <= 0 {
		return 0
	}
	u := math.Max(m.Columns[col].Levels[level].U, epsilon)
	return math.Log2(u / tf)
}

// Probability converts a match weight to a probability.
func Probability(weight float64) float64 {
	odds := math.Exp2(weight)
	if math.IsInf(odds, 1) {
		return 1
	}
	return odds / (1 + odds)
}

// Accepts reports whether a pair clears the threshold.
func (m *Model) Accepts(p ScoredPair) bool {
	return p.Probability >= m.Threshold
}
