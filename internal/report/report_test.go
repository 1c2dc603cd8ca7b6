package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kobza-harvester/authdedup/internal/blocking"
	"github.com/kobza-harvester/authdedup/internal/clustering"
	"github.com/kobza-harvester/authdedup/internal/engine"
	"github.com/kobza-harvester/authdedup/internal/links"
	"github.com/kobza-harvester/authdedup/internal/matching"
	"github.com/kobza-harvester/authdedup/internal/models"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		RunID:          "4f1c2a9e-0000-4000-8000-000000000001",
		StartedAt:      time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC),
		Duration:       1500 * time.Millisecond,
		Records:        3,
		Blocking:       blocking.Stats{Partitions: 1, Pairs: 1},
		Training:       matching.TrainingReport{Records: 3, DeterministicMatches: 1, EMSkipped: true},
		Model:          matching.DefaultModel(0.5, 0.9),
		AcceptedPairs:  1,
		Clusters:       []clustering.Cluster{{ID: 1, Members: []int64{1, 2}}},
		Assignments:    []models.ClusterAssignment{{EntityID: 1, ClusterID: 1}, {EntityID: 2, ClusterID: 1}},
		Links:          map[int][]links.MergeLink{1: {{ServerID: 1, ClusterID: 1}}},
		SkippedServers: []int{2},
	}
}

func TestSaveYAML(t *testing.T) {
	dir := t.TempDir()
	res := sampleResult()

	path, err := SaveYAML(dir, RunConfig{Database: "authdedup.db", Threshold: 0.9, Recall: 0.5, TranslitPass: true}, res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "dedup-2026-03-09_14-30-00-4f1c2a9e.yaml"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, res.RunID, got.Summary.RunID)
	assert.Equal(t, "2026-03-09T14:30:00Z", got.Summary.Timestamp)
	assert.Equal(t, 1.5, got.Summary.DurationSeconds)
	assert.Equal(t, 1, got.Summary.Links)
	assert.Equal(t, []int{2}, got.Summary.SkippedServers)
	assert.Equal(t, []ClusterEntry{{ID: 1, Members: []int64{1, 2}}}, got.Clusters)
	assert.True(t, got.Training.EMSkipped)
	require.NotNil(t, got.Model)
	assert.Len(t, got.Model.Columns, 5)
	assert.Equal(t, "identifier", got.Model.Columns[0].Name)
}

func TestWriteClustersParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "clusters.parquet")
	res := sampleResult()

	require.NoError(t, WriteClustersParquet(path, res))

	rows, err := parquet.ReadFile[ClusterRow](path)
	require.NoError(t, err)
	assert.Equal(t, []ClusterRow{
		{RunID: res.RunID, ClusterID: 1, EntityID: 1},
		{RunID: res.RunID, ClusterID: 1, EntityID: 2},
	}, rows)
}
