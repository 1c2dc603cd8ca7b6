package matching

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kobza-harvester/authdedup/internal/blocking"
)

// Predict scores every blocked pair with a trained model, one partition per
// goroutine, and returns the pairs at or above the model threshold ordered by
// record index.
func Predict(ctx context.Context, model *Model, records []Record, partitions []blocking.Partition, workers int) ([]ScoredPair, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([][]ScoredPair, len(partitions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, part := range partitions {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var kept []ScoredPair
			for _, pair := range part.Pairs {
				scored := model.Score(&records[pair.Left], &records[pair.Right])
				if !model.Accepts(scored) {
					continue
				}
				scored.Left, scored.Right = pair.Left, pair.Right
				kept = append(kept, scored)
			}
			results[i] = kept
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to score candidate pairs: %w", err)
	}

	var out []ScoredPair
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Left != out[b].Left {
			return out[a].Left < out[b].Left
		}
		return out[a].Right < out[b].Right
	})
	return out, nil
}
