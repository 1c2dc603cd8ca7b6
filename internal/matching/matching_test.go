package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobza-harvester/authdedup/internal/blocking"
	"github.com/kobza-harvester/authdedup/internal/models"
)

func TestPrepare(t *testing.T) {
	recs := Prepare([]models.NameRecord{
		{EntryName: "Shevchenko", GivenName: "Taras", Dates: "1814-1861"},
		{EntryName: "Franko", Initials: "I.", Dates: "1856-"},
		{EntryName: "Anon"},
	})

	assert.Equal(t, "1814", recs[0].YearOfBirth)
	assert.Equal(t, "1861", recs[0].YearOfDeath)
	assert.Equal(t, "Taras", recs[0].ProcGivenName)

	assert.Equal(t, "1856", recs[1].YearOfBirth)
	assert.Empty(t, recs[1].YearOfDeath)
	assert.Equal(t, "I.", recs[1].ProcGivenName)

	assert.Empty(t, recs[2].YearOfBirth)
	assert.Empty(t, recs[2].YearOfDeath)
}

func TestJaroWinkler(t *testing.T) {
	assert.InDelta(t, 0.961, JaroWinkler("MARTHA", "MARHTA"), 0.001)
	assert.InDelta(t, 0.84, JaroWinkler("DWAYNE", "DUANE"), 0.001)
	assert.Equal(t, 1.0, JaroWinkler("Шевченко", "шевченко"))
	assert.Equal(t, 0.0, JaroWinkler("", "Taras"))
}

func TestComparisonLevels(t *testing.T) {
	byName := make(map[string]Comparison)
	for _, c := range Comparisons() {
		byName[c.Name] = c
	}

	rec := func(nr models.NameRecord) *Record {
		return &Prepare([]models.NameRecord{nr})[0]
	}

	tests := []struct {
		name     string
		column   string
		a, b     models.NameRecord
		expected LevelKind
	}{
		{
			name: "identifier missing on one side", column: "identifier",
			a: models.NameRecord{Identifier: "0000000123456789"}, b: models.NameRecord{},
			expected: LevelNull,
		},
		{
			name: "identifier equal", column: "identifier",
			a: models.NameRecord{Identifier: "0000000123456789"}, b: models.NameRecord{Identifier: "0000000123456789"},
			expected: LevelExact,
		},
		{
			name: "full name exact", column: "full_name",
			a: models.NameRecord{EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan"},
			b: models.NameRecord{EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan"},
			expected: LevelExact,
		},
		{
			name: "full name reversed", column: "full_name",
			a: models.NameRecord{EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan"},
			b: models.NameRecord{EntryName: "Ivan", GivenName: "Franko", FullName: "Ivan Franko"},
			expected: LevelReversed,
		},
		{
			name: "full name fuzzy", column: "full_name",
			a: models.NameRecord{EntryName: "Shevchenko", GivenName: "Taras", FullName: "Shevchenko Taras"},
			b: models.NameRecord{EntryName: "Shevchenco", GivenName: "Taras", FullName: "Shevchenco Taras"},
			expected: LevelFuzzy,
		},
		{
			name: "full name different", column: "full_name",
			a: models.NameRecord{EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan"},
			b: models.NameRecord{EntryName: "Ukrainka", GivenName: "Lesia", FullName: "Ukrainka Lesia"},
			expected: LevelElse,
		},
		{
			name: "birth year one edit apart", column: "year_of_birth",
			a: models.NameRecord{Dates: "1814-1861"}, b: models.NameRecord{Dates: "1815-1861"},
			expected: LevelEditDistance,
		},
		{
			name: "death year missing", column: "year_of_death",
			a: models.NameRecord{Dates: "1814-"}, b: models.NameRecord{Dates: "1814-1861"},
			expected: LevelNull,
		},
		{
			name: "roman differs", column: "roman",
			a: models.NameRecord{Roman: "II"}, b: models.NameRecord{Roman: "III"},
			expected: LevelElse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := byName[tt.column]
			level := c.Level(rec(tt.a), rec(tt.b))
			assert.Equal(t, tt.expected, c.Levels[level].Kind)
		})
	}
}

func TestProbability(t *testing.T) {
	assert.Equal(t, 0.5, Probability(0))
	assert.InDelta(t, 0.8, Probability(2), 1e-9)
	assert.Equal(t, 1.0, Probability(5000))
}

func TestEstimatePrior(t *testing.T) {
	records := Prepare([]models.NameRecord{
		{EntityID: 1, EntryName: "Smith", Lang: "eng"},
		{EntityID: 2, EntryName: "Smith", Lang: "eng"},
		{EntityID: 3, EntryName: "Jones", Lang: "eng", Identifier: "000000012345678X"},
		{EntityID: 4, EntryName: "Jonas", Lang: "eng", Identifier: "000000012345678X"},
		{EntityID: 1, EntryName: "Smith", Lang: "eng"},
	})

	trainer := NewTrainer(DefaultTrainerConfig(), nil)
	var report TrainingReport
	prior := trainer.estimatePrior(records, &report)

	assert.Equal(t, int64(3), report.DeterministicMatches)
	assert.InDelta(t, 0.6, prior, 1e-9)
	assert.False(t, report.PriorFallback)
}

func TestEstimatePriorFallback(t *testing.T) {
	records := Prepare([]models.NameRecord{
		{EntityID: 1, EntryName: "Smith", Lang: "eng"},
		{EntityID: 2, EntryName: "Jones", Lang: "eng"},
	})

	trainer := NewTrainer(DefaultTrainerConfig(), nil)
	var report TrainingReport
	prior := trainer.estimatePrior(records, &report)

	assert.Equal(t, 0.001, prior)
	assert.True(t, report.PriorFallback)
	assert.NotEmpty(t, report.Warnings)
}

func TestTrainWithTooFewPairsUsesDefaults(t *testing.T) {
	records := Prepare([]models.NameRecord{
		{EntityID: 1, EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan", Lang: "eng"},
		{EntityID: 2, EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan", Lang: "eng"},
	})
	partitions := []blocking.Partition{{Key: "entry:F652", Pairs: []blocking.Pair{{Left: 0, Right: 1}}}}

	model, report, err := NewTrainer(DefaultTrainerConfig(), nil).Train(context.Background(), records, partitions)
	require.NoError(t, err)

	assert.True(t, report.EMSkipped)
	assert.False(t, report.USampled)
	assert.Equal(t, 1, report.TrainingPairs)
	assert.Equal(t, 0.95, model.Columns[0].Levels[1].M)
	assert.Equal(t, 0.0001, model.Columns[0].Levels[1].U)
	assert.InDelta(t, 0.999, model.Prior, 1e-9)
	assert.InDelta(t, 1.0, model.TermFrequencies["full_name"]["Franko Ivan"], 1e-9)
}

func TestExpectationMaximisationConverges(t *testing.T) {
	model := DefaultModel(0.01, 0.9)
	patterns := []pattern{
		{levels: []int{1, 1, 1, 1, 1}, count: 50},
		{levels: []int{2, 5, 2, 3, 3}, count: 500},
	}

	iterations, converged := NewTrainer(DefaultTrainerConfig(), nil).expectationMaximisation(model, patterns)

	assert.True(t, converged)
	assert.LessOrEqual(t, iterations, 25)
	identifierExact := model.Columns[0].Levels[1]
	assert.Greater(t, identifierExact.M, 0.99)
	assert.Less(t, identifierExact.U, 0.01)
}

func TestPredict(t *testing.T) {
	records := Prepare([]models.NameRecord{
		{EntityID: 1, EntryName: "Shevchenko", GivenName: "Taras", FullName: "Shevchenko Taras", Dates: "1814-1861", Identifier: "0000000123456789"},
		{EntityID: 2, EntryName: "Shevchenko", GivenName: "Taras", FullName: "Shevchenko Taras", Dates: "1814-1861", Identifier: "0000000123456789"},
		{EntityID: 3, EntryName: "Shevelov", GivenName: "Yurii", FullName: "Shevelov Yurii", Dates: "1908-2002"},
	})
	partitions := []blocking.Partition{
		{Key: "entry:S125", Pairs: []blocking.Pair{{Left: 0, Right: 1}}},
		{Key: "entry:S141", Pairs: []blocking.Pair{{Left: 0, Right: 2}, {Left: 1, Right: 2}}},
	}

	model := DefaultModel(0.01, 0.9)
	pairs, err := Predict(context.Background(), model, records, partitions, 2)
	require.NoError(t, err)

	require.Len(t, pairs, 1)
	assert.Equal(t, 0, pairs[0].Left)
	assert.Equal(t, 1, pairs[0].Right)
	assert.Greater(t, pairs[0].Probability, 0.99)
}

func TestPredictCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := Prepare([]models.NameRecord{{EntityID: 1, EntryName: "A"}, {EntityID: 2, EntryName: "A"}})
	partitions := []blocking.Partition{{Key: "entry:A000", Pairs: []blocking.Pair{{Left: 0, Right: 1}}}}

	_, err := Predict(ctx, DefaultModel(0.5, 0.9), records, partitions, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func column(t *testing.T, model *Model, name string) ColumnParams {
	t.Helper()
	for _, c := range model.Columns {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("No column %q", name)
	return ColumnParams{}
}

func TestTrainKeepsLastIterateWithoutConvergence(t *testing.T) {
	records := Prepare([]models.NameRecord{
		{EntityID: 1, EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan", Lang: "eng"},
		{EntityID: 2, EntryName: "Franko", GivenName: "Ivan", FullName: "Franko Ivan", Lang: "eng"},
	})
	partitions := []blocking.Partition{{Key: "entry:F652", Pairs: []blocking.Pair{{Left: 0, Right: 1}}}}

	cfg := DefaultTrainerConfig()
	cfg.MinTrainingPairs = 1
	cfg.MaxIterations = 1
	cfg.Tolerance = 1e-12

	model, report, err := NewTrainer(cfg, nil).Train(context.Background(), records, partitions)
	require.NoError(t, err)

	assert.False(t, report.EMSkipped)
	assert.False(t, report.EMConverged)
	assert.Equal(t, 1, report.EMIterations)
	assert.Contains(t, report.Warnings, "EM did not converge, using last iterate")

	// The single pattern agrees exactly on full_name, so one M step moves all
	// of the match mass there.
	exact := column(t, model, "full_name").Levels[1]
	assert.InDelta(t, 1.0, exact.M, 1e-9)
}

func TestTermFrequencyFavoursRareNames(t *testing.T) {
	names := [][2]string{{"Franko", "Ivan"}, {"Franko", "Ivan"}, {"Franko", "Ivan"}, {"Franko", "Ivan"}, {"Kotsiubynskyi", "Mykhailo"}}
	var population []models.NameRecord
	for i, name := range names {
		population = append(population, models.NameRecord{
			EntityID:  int64(i + 1),
			EntryName: name[0],
			GivenName: name[1],
			FullName:  name[0] + " " + name[1],
		})
	}
	records := Prepare(population)

	model := DefaultModel(0.01, 0.9)
	NewTrainer(DefaultTrainerConfig(), nil).termFrequencies(model, records)
	assert.InDelta(t, 0.8, model.TermFrequencies["full_name"]["Franko Ivan"], 1e-9)
	assert.InDelta(t, 0.2, model.TermFrequencies["full_name"]["Kotsiubynskyi Mykhailo"], 1e-9)

	common := model.Score(&records[0], &records[1])
	rare := model.Score(&records[4], &records[4])
	assert.Equal(t, common.Vector, rare.Vector, "both pairs agree on the same levels")
	assert.Greater(t, rare.Weight, common.Weight)
	assert.InDelta(t, 2.0, rare.Weight-common.Weight, 1e-9)
}
