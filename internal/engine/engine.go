// Package engine runs the deduplication pipeline against a store: it
// normalizes raw authorities into name records, then blocks, trains, scores,
// clusters and writes merge links.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kobza-harvester/authdedup/internal/blocking"
	"github.com/kobza-harvester/authdedup/internal/clustering"
	"github.com/kobza-harvester/authdedup/internal/links"
	"github.com/kobza-harvester/authdedup/internal/matching"
	"github.com/kobza-harvester/authdedup/internal/models"
	"github.com/kobza-harvester/authdedup/internal/normalize"
	"github.com/kobza-harvester/authdedup/internal/storage"
)

// ErrEmptySnapshot is returned by Dedup when there are no normalized names.
var ErrEmptySnapshot = errors.New("no normalized name records to deduplicate")

// Store is the persistence the engine needs.
type Store interface {
	Servers(ctx context.Context) ([]models.Server, error)
	RawAuthorities(ctx context.Context, authIDs ...int64) ([]models.RawAuthority, error)
	Usage(ctx context.Context) (map[int64]int, error)
	ReplaceNameRecords(ctx context.Context, byEntity map[int64][]models.NameRecord) error
	NameRecords(ctx context.Context) ([]models.NameRecord, error)
	ReplaceClusters(ctx context.Context, runID string, assignments []models.ClusterAssignment) error
}

// Options configures both pipeline halves.
type Options struct {
	Normalize normalize.Options
	Blocking  blocking.Options
	Trainer   matching.TrainerConfig
	// Workers bounds partition scoring. Zero means one per CPU.
	Workers     int
	LinkWorkers int
	// LinksDir receives one link file per server. Empty skips writing.
	LinksDir string
}

type Engine struct {
	store  Store
	opts   Options
	logger *slog.Logger
}

func New(store Store, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, opts: opts, logger: logger}
}

// Normalize re-normalizes the given authorities, or all of them when no ids
// are passed, and replaces their stored name records.
func (e *Engine) Normalize(ctx context.Context, authIDs ...int64) (normalize.Result, error) {
	servers, err := e.store.Servers(ctx)
	if err != nil {
		return normalize.Result{}, fmt.Errorf("failed to load servers: %w", err)
	}
	raws, err := e.store.RawAuthorities(ctx, authIDs...)
	if err != nil {
		return normalize.Result{}, fmt.Errorf("failed to load raw authorities: %w", err)
	}

	byEntity, res, err := normalize.New(servers, e.opts.Normalize, e.logger).Run(ctx, raws)
	if err != nil {
		return res, err
	}

	if err := e.store.ReplaceNameRecords(ctx, byEntity); err != nil {
		return res, fmt.Errorf("failed to store name records: %w", err)
	}
	return res, nil
}

// Result summarizes one deduplication run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	Records        int
	Blocking       blocking.Stats
	Training       matching.TrainingReport
	Model          *matching.Model
	AcceptedPairs  int
	Clusters       []clustering.Cluster
	Assignments    []models.ClusterAssignment
	Links          map[int][]links.MergeLink
	LinkFiles      []string
	SkippedServers []int
}

// LinkCount is the number of merge links over all servers.
func (r *Result) LinkCount() int {
	n := 0
	for _, l := range r.Links {
		n += len(l)
	}
	return n
}

// Dedup runs blocking, training, scoring, clustering and link generation over
// the current name record snapshot. Each stage completes before anything it
// produced is written.
func (e *Engine) Dedup(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := e.logger.With("run_id", res.RunID)

	snapshot, err := e.store.NameRecords(ctx)
	if errors.Is(err, storage.ErrNoRecords) {
		return nil, ErrEmptySnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load name records: %w", err)
	}
	res.Records = len(snapshot)
	logger.Info("Starting deduplication", "records", res.Records)

	records := matching.Prepare(snapshot)

	partitions, stats := blocking.Candidates(snapshot, e.opts.Blocking, logger)
	res.Blocking = stats
	logger.Info("Candidate pairs generated", "partitions", stats.Partitions, "pairs", stats.Pairs, "skipped_partitions", stats.SkippedPartitions)

	model, report, err := matching.NewTrainer(e.opts.Trainer, logger).Train(ctx, records, partitions)
	if err != nil {
		return nil, fmt.Errorf("failed to train model: %w", err)
	}
	res.Model, res.Training = model, report

	pairs, err := matching.Predict(ctx, model, records, partitions, e.opts.Workers)
	if err != nil {
		return nil, err
	}
	res.AcceptedPairs = len(pairs)

	edges := make([]clustering.Edge, 0, len(pairs))
	for _, p := range pairs {
		a, b := records[p.Left].EntityID, records[p.Right].EntityID
		if a == b {
			continue
		}
		edges = append(edges, clustering.Edge{A: a, B: b})
	}
	res.Clusters = clustering.Build(edges)
	assignments := clustering.Assignments(res.Clusters)
	res.Assignments = sortedAssignments(assignments)
	logger.Info("Clusters built", "accepted_pairs", res.AcceptedPairs, "clusters", len(res.Clusters), "entities", len(res.Assignments))

	if err := e.store.ReplaceClusters(ctx, res.RunID, res.Assignments); err != nil {
		return nil, fmt.Errorf("failed to store clusters: %w", err)
	}

	servers, err := e.store.Servers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}
	usage, err := e.store.Usage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage counts: %w", err)
	}

	linkRes, err := links.NewGenerator(logger, e.opts.LinkWorkers).Generate(ctx, links.Input{
		Servers:  servers,
		Records:  snapshot,
		Clusters: assignments,
		Usage:    usage,
	})
	if err != nil {
		return nil, err
	}
	res.Links, res.SkippedServers = linkRes.Links, linkRes.Skipped

	if e.opts.LinksDir != "" {
		res.LinkFiles, err = links.Write(e.opts.LinksDir, linkRes)
		if err != nil {
			return nil, fmt.Errorf("failed to write merge links: %w", err)
		}
	}

	res.Duration = time.Since(res.StartedAt)
	logger.Info("Deduplication complete",
		"clusters", len(res.Clusters),
		"links", res.LinkCount(),
		"skipped_servers", len(res.SkippedServers),
		"duration", res.Duration)

	return res, nil
}

func sortedAssignments(m map[int64]int64) []models.ClusterAssignment {
	out := make([]models.ClusterAssignment, 0, len(m))
	for entity, cluster := range m {
		out = append(out, models.ClusterAssignment{EntityID: entity, ClusterID: cluster})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClusterID != out[j].ClusterID {
			return out[i].ClusterID < out[j].ClusterID
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}
