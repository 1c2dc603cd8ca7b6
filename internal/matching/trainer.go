package matching

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/kobza-harvester/authdedup/internal/blocking"
)

// TrainerConfig holds the training knobs.
type TrainerConfig struct {
	Recall           float64
	FallbackPrior    float64
	Threshold        float64
	MaxIterations    int
	Tolerance        float64
	MinTrainingPairs int
	MaxSamplePairs   int
	MinSamplePairs   int
	Seed             uint64
}

// DefaultTrainerConfig returns the settings used when nothing is configured.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Recall:           0.5,
		FallbackPrior:    0.001,
		Threshold:        0.9,
		MaxIterations:    25,
		Tolerance:        1e-4,
		MinTrainingPairs: 10,
		MaxSamplePairs:   1_000_000,
		MinSamplePairs:   100,
		Seed:             42,
	}
}

// TrainingReport describes how the model parameters were obtained.
type TrainingReport struct {
	Records              int      `yaml:"records"`
	DeterministicMatches int64    `yaml:"deterministic_matches"`
	PriorFallback        bool     `yaml:"prior_fallback"`
	TrainingPairs        int      `yaml:"training_pairs"`
	EMSkipped            bool     `yaml:"em_skipped"`
	EMIterations         int      `yaml:"em_iterations"`
	EMConverged          bool     `yaml:"em_converged"`
	SamplePairs          int      `yaml:"sample_pairs"`
	USampled             bool     `yaml:"u_sampled"`
	Warnings             []string `yaml:"warnings,omitempty"`
}

// Trainer estimates model parameters from a record population and its blocked
// candidate pairs.
type Trainer struct {
	cfg    TrainerConfig
	logger *slog.Logger
}

func NewTrainer(cfg TrainerConfig, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{cfg: cfg, logger: logger}
}

func (t *Trainer) warn(report *TrainingReport, msg string, args ...any) {
	t.logger.Warn(msg, args...)
	report.Warnings = append(report.Warnings, msg)
}

// Train runs prior estimation, EM over the blocked pairs, u re-estimation by
// random sampling and term frequency counting. It only fails on context
// cancellation.
func (t *Trainer) Train(ctx context.Context, records []Record, partitions []blocking.Partition) (*Model, TrainingReport, error) {
	report := TrainingReport{Records: len(records)}

	prior := t.estimatePrior(records, &report)
	model := DefaultModel(prior, t.cfg.Threshold)

	patterns, err := t.patterns(ctx, model.comparisons, records, partitions)
	if err != nil {
		return nil, report, err
	}
	for _, p := range patterns {
		report.TrainingPairs += int(p.count)
	}

	if report.TrainingPairs < t.cfg.MinTrainingPairs {
		report.EMSkipped = true
		t.warn(&report, "Too few candidate pairs for EM, using default parameters",
			"pairs", report.TrainingPairs, "minimum", t.cfg.MinTrainingPairs)
	} else {
		report.EMIterations, report.EMConverged = t.expectationMaximisation(model, patterns)
		if !report.EMConverged {
			t.warn(&report, "EM did not converge, using last iterate", "iterations", report.EMIterations)
		}
	}

	if err := t.sampleU(ctx, model, records, &report); err != nil {
		return nil, report, err
	}
	t.termFrequencies(model, records)

	t.logger.Info("Model trained",
		"prior", model.Prior,
		"training_pairs", report.TrainingPairs,
		"em_iterations", report.EMIterations,
		"sample_pairs", report.SamplePairs)

	return model, report, nil
}

func (t *Trainer) estimatePrior(records []Record, report *TrainingReport) float64 {
	n := int64(len(records))
	total := float64(n) * float64(n-1) / 2

	nameKey := func(r *Record) (string, bool) { return r.EntryName + "\x00" + r.Lang, true }
	idKey := func(r *Record) (string, bool) { return r.Identifier, r.Identifier != "" }
	bothKey := func(r *Record) (string, bool) {
		return r.EntryName + "\x00" + r.Lang + "\x00" + r.Identifier, r.Identifier != ""
	}
	matches := countPairs(records, nameKey) + countPairs(records, idKey) - countPairs(records, bothKey)
	report.DeterministicMatches = matches

	if matches == 0 || total == 0 {
		report.PriorFallback = true
		t.warn(report, "No deterministic matches, using fallback prior", "prior", t.cfg.FallbackPrior)
		return t.cfg.FallbackPrior
	}

	prior := (float64(matches) / t.cfg.Recall) / total
	return math.Min(math.Max(prior, 1e-9), 0.999)
}

// countPairs counts pairs of records from different entities that share key.
func countPairs(records []Record, key func(r *Record) (string, bool)) int64 {
	groups := make(map[string]map[int64]int64)
	for i := range records {
		k, ok := key(&records[i])
		if !ok {
			continue
		}
		if groups[k] == nil {
			groups[k] = make(map[int64]int64)
		}
		groups[k][records[i].EntityID]++
	}

	var pairs int64
	for _, entities := range groups {
		var size int64
		for _, c := range entities {
			size += c
			pairs -= c * (c - 1) / 2
		}
		pairs += size * (size - 1) / 2
	}
	return pairs
}

type pattern struct {
	levels []int
	count  float64
}

// patterns collapses the blocked pairs into distinct comparison vectors.
func (t *Trainer) patterns(ctx context.Context, comparisons []Comparison, records []Record, partitions []blocking.Partition) ([]pattern, error) {
	index := make(map[string]int)
	var out []pattern
	for _, part := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, pair := range part.Pairs {
			vec := Vector(comparisons, &records[pair.Left], &records[pair.Right])
			key := vectorKey(vec)
			if i, ok := index[key]; ok {
				out[i].count++
				continue
			}
			index[key] = len(out)
			out = append(out, pattern{levels: vec, count: 1})
		}
	}
	return out, nil
}

func vectorKey(vec []int) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// expectationMaximisation refines m and u in place.
func (t *Trainer) expectationMaximisation(model *Model, patterns []pattern) (int, bool) {
	comparisons := model.comparisons
	p := 0.5

	for iter := 1; iter <= t.cfg.MaxIterations; iter++ {
		mNum := zeroed(model.Columns)
		uNum := zeroed(model.Columns)
		mDen := make([]float64, len(comparisons))
		uDen := make([]float64, len(comparisons))
		var matchMass, totalMass float64

		for _, pat := range patterns {
			lm := math.Log(p)
			lu := math.Log(1 - p)
			for c, level := range pat.levels {
				if comparisons[c].Levels[level].Kind == LevelNull {
					continue
				}
				lp := model.Columns[c].Levels[level]
				lm += math.Log(math.Max(lp.M, epsilon))
				lu += math.Log(math.Max(lp.U, epsilon))
			}
			w := 1 / (1 + math.Exp(lu-lm))

			matchMass += pat.count * w
			totalMass += pat.count
			for c, level := range pat.levels {
				if comparisons[c].Levels[level].Kind == LevelNull {
					continue
				}
				mNum[c][level] += pat.count * w
				uNum[c][level] += pat.count * (1 - w)
				mDen[c] += pat.count * w
				uDen[c] += pat.count * (1 - w)
			}
		}

		delta := 0.0
		for c := range model.Columns {
			for l := range model.Columns[c].Levels {
				if comparisons[c].Levels[l].Kind == LevelNull {
					continue
				}
				lp := &model.Columns[c].Levels[l]
				if mDen[c] > 0 {
					next := mNum[c][l] / mDen[c]
					delta = math.Max(delta, math.Abs(next-lp.M))
					lp.M = next
				}
				if uDen[c] > 0 {
					next := uNum[c][l] / uDen[c]
					delta = math.Max(delta, math.Abs(next-lp.U))
					lp.U = next
				}
			}
		}

		if totalMass > 0 {
			next := math.Min(math.Max(matchMass/totalMass, epsilon), 1-epsilon)
			delta = math.Max(delta, math.Abs(next-p))
			p = next
		}

		t.logger.Debug("EM iteration", "iteration", iter, "delta", delta, "match_proportion", p)
		if delta < t.cfg.Tolerance {
			return iter, true
		}
	}
	return t.cfg.MaxIterations, false
}

func zeroed(columns []ColumnParams) [][]float64 {
	out := make([][]float64, len(columns))
	for i, c := range columns {
		out[i] = make([]float64, len(c.Levels))
	}
	return out
}

// sampleU re-estimates u from pairs drawn without blocking.
func (t *Trainer) sampleU(ctx context.Context, model *Model, records []Record, report *TrainingReport) error {
	n := len(records)
	if n < 2 || t.cfg.MaxSamplePairs <= 0 {
		return nil
	}
	comparisons := model.comparisons
	counts := zeroed(model.Columns)
	totals := make([]float64, len(comparisons))

	observe := func(i, j int) {
		if records[i].EntityID == records[j].EntityID {
			return
		}
		report.SamplePairs++
		for c := range comparisons {
			level := comparisons[c].Level(&records[i], &records[j])
			if comparisons[c].Levels[level].Kind == LevelNull {
				continue
			}
			counts[c][level]++
			totals[c]++
		}
	}

	allPairs := int64(n) * int64(n-1) / 2
	if allPairs <= int64(t.cfg.MaxSamplePairs) {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < n; j++ {
				observe(i, j)
			}
		}
	} else {
		rng := rand.New(rand.NewPCG(t.cfg.Seed, t.cfg.Seed^0x9e3779b97f4a7c15))
		for draw := 0; draw < t.cfg.MaxSamplePairs; draw++ {
			if draw%10_000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			i := rng.IntN(n)
			j := rng.IntN(n - 1)
			if j >= i {
				j++
			}
			observe(i, j)
		}
	}

	if report.SamplePairs < t.cfg.MinSamplePairs {
		t.warn(report, "Too few sampled pairs to estimate u, keeping current values",
			"pairs", report.SamplePairs, "minimum", t.cfg.MinSamplePairs)
		return nil
	}

	for c := range comparisons {
		if totals[c] == 0 {
			continue
		}
		for l := range comparisons[c].Levels {
			if comparisons[c].Levels[l].Kind == LevelNull {
				continue
			}
			model.Columns[c].Levels[l].U = counts[c][l] / totals[c]
		}
	}
	report.USampled = true
	return nil
}

func (t *Trainer) termFrequencies(model *Model, records []Record) {
	for _, c := range model.comparisons {
		if !c.HasTermFrequency() {
			continue
		}
		counts := make(map[string]float64)
		var total float64
		for i := range records {
			v := c.Value(&records[i])
			if v == "" {
				continue
			}
			counts[v]++
			total++
		}
		if total == 0 {
			continue
		}
		freqs := make(map[string]float64, len(counts))
		for v, n := range counts {
			freqs[v] = n / total
		}
		model.TermFrequencies[c.Name] = freqs
	}
}

// String renders the trained parameters for debugging output.
func (m *Model) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "prior=%.6g threshold=%.3g\n", m.Prior, m.Threshold)
	for _, col := range m.Columns {
		for _, l := range col.Levels[1:] {
			fmt.Fprintf(&b, "%s/%s m=%.4f u=%.4f\n", col.Name, l.Name, l.M, l.U)
		}
	}
	return b.String()
}
