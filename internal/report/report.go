// Package report writes the artifacts of a deduplication run: a YAML summary
// and a Parquet export of the cluster table.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"

	"github.com/kobza-harvester/authdedup/internal/engine"
	"github.com/kobza-harvester/authdedup/internal/matching"
)

// RunConfig records the settings a run was made with.
type RunConfig struct {
	Database     string  `yaml:"database"`
	Threshold    float64 `yaml:"threshold"`
	Recall       float64 `yaml:"recall"`
	TranslitPass bool    `yaml:"translitpass"`
	LinksDir     string  `yaml:"linksdir,omitempty"`
}

type Summary struct {
	RunID             string  `yaml:"runid"`
	Timestamp         string  `yaml:"timestamp"`
	DurationSeconds   float64 `yaml:"durationseconds"`
	Records           int     `yaml:"records"`
	Partitions        int     `yaml:"partitions"`
	CandidatePairs    int     `yaml:"candidatepairs"`
	SkippedPartitions int     `yaml:"skippedpartitions"`
	AcceptedPairs     int     `yaml:"acceptedpairs"`
	Clusters          int     `yaml:"clusters"`
	ClusteredEntities int     `yaml:"clusteredentities"`
	Links             int     `yaml:"links"`
	SkippedServers    []int   `yaml:"skippedservers,omitempty"`
}

// ClusterEntry is one cluster of the report.
type ClusterEntry struct {
	ID      int64   `yaml:"id"`
	Members []int64 `yaml:"members"`
}

// Report is the YAML document written after a run.
type Report struct {
	Config   RunConfig               `yaml:"config"`
	Summary  Summary                 `yaml:"summary"`
	Training matching.TrainingReport `yaml:"training"`
	Model    *matching.Model         `yaml:"model,omitempty"`
	Clusters []ClusterEntry          `yaml:"clusters"`
	Files    []string                `yaml:"files,omitempty"`
}

// New builds the report of a finished run.
func New(cfg RunConfig, res *engine.Result) Report {
	r := Report{
		Config: cfg,
		Summary: Summary{
			RunID:             res.RunID,
			Timestamp:         res.StartedAt.UTC().Format(time.RFC3339),
			DurationSeconds:   res.Duration.Seconds(),
			Records:           res.Records,
			Partitions:        res.Blocking.Partitions,
			CandidatePairs:    res.Blocking.Pairs,
			SkippedPartitions: res.Blocking.SkippedPartitions,
			AcceptedPairs:     res.AcceptedPairs,
			Clusters:          len(res.Clusters),
			ClusteredEntities: len(res.Assignments),
			Links:             res.LinkCount(),
			SkippedServers:    res.SkippedServers,
		},
		Training: res.Training,
		Model:    res.Model,
		Clusters: make([]ClusterEntry, 0, len(res.Clusters)),
		Files:    res.LinkFiles,
	}
	for _, c := range res.Clusters {
		r.Clusters = append(r.Clusters, ClusterEntry{ID: c.ID, Members: c.Members})
	}
	return r
}

// FileName is the report file of a run.
func FileName(res *engine.Result) string {
	return fmt.Sprintf("dedup-%s-%s.yaml", res.StartedAt.Format("2006-01-02_15-04-05"), res.RunID[:8])
}

// SaveYAML writes the report of res into dir and returns its path.
func SaveYAML(dir string, cfg RunConfig, res *engine.Result) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	report := New(cfg, res)
	data, err := yaml.Marshal(&report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	path := filepath.Join(dir, FileName(res))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return path, nil
}

// ClusterRow is one row of the Parquet cluster export.
type ClusterRow struct {
	RunID     string `parquet:"run_id"`
	ClusterID int64  `parquet:"cluster_id"`
	EntityID  int64  `parquet:"auth_id"`
}

// WriteClustersParquet exports the cluster assignments of res to path.
func WriteClustersParquet(path string, res *engine.Result) error {
	rows := make([]ClusterRow, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		rows = append(rows, ClusterRow{RunID: res.RunID, ClusterID: a.ClusterID, EntityID: a.EntityID})
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write cluster parquet: %w", err)
	}
	return nil
}
