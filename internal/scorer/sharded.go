package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hashedsearch/retrieval-platform/internal/index"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/resilience"
)

// Sharded fans a query out to per-partition scorers and merges their
// candidate lists. Each partition returns at most k already-ranked
// candidates, so the coordinator only ever merges bounded lists, never full
// per-partition score vectors.
type Sharded struct {
	parts            []*Scorer
	partitionTimeout time.Duration
	retry            resilience.RetryConfig
	logger           *slog.Logger
}

// NewSharded creates a Sharded scorer over the given partition indexes. All
// partitions must share one bucket space; mixing values of B across
// partitions would silently mis-route query terms.
func NewSharded(parts []*index.Index, partitionTimeout time.Duration) (*Sharded, error) {
	if len(parts) == 0 {
		return nil, apperrors.ErrIndexUnavailable
	}
	buckets := parts[0].Buckets()
	scorers := make([]*Scorer, len(parts))
	for i, part := range parts {
		if part.Buckets() != buckets {
			return nil, fmt.Errorf("%w: partition %d has bucket count %d, want %d",
				apperrors.ErrInvalidConfig, i, part.Buckets(), buckets)
		}
		s, err := New(part)
		if err != nil {
			return nil, err
		}
		scorers[i] = s
	}
	return &Sharded{
		parts:            scorers,
		partitionTimeout: partitionTimeout,
		logger:           slog.Default().With("component", "sharded-scorer"),
	}, nil
}

// NumPartitions returns the number of index partitions behind this scorer.
func (s *Sharded) NumPartitions() int { return len(s.parts) }

// Score runs the query on every partition concurrently, then re-selects the
// global top k from the merged candidates. The merge is a per-query
// barrier: a partition that keeps failing after retries fails the whole
// query, and a cancelled context aborts the fan-out with nothing to roll
// back because partition scoring is pure.
func (s *Sharded) Score(ctx context.Context, tokens []string, k int) ([]ScoredDoc, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", apperrors.ErrInvalidConfig, k)
	}

	candidates := make([][]ScoredDoc, len(s.parts))
	g, gctx := errgroup.WithContext(ctx)
	for i, part := range s.parts {
		i, part := i, part
		g.Go(func() error {
			err := resilience.Retry(gctx, fmt.Sprintf("score-partition-%d", i), s.retry, func() error {
				return resilience.WithTimeout(gctx, s.partitionTimeout, fmt.Sprintf("partition-%d", i), func(ctx context.Context) error {
					local, err := part.Score(ctx, tokens, k)
					if err != nil {
						return err
					}
					candidates[i] = local
					return nil
				})
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return fmt.Errorf("%w: partition %d: %v", apperrors.ErrPartitionFailed, i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	top := newTopK(k)
	total := 0
	for _, local := range candidates {
		for _, doc := range local {
			top.Push(doc)
			total++
		}
	}
	merged := top.Drain()
	s.logger.Debug("partition candidates merged",
		"partitions", len(s.parts),
		"candidates", total,
		"returned", len(merged),
	)
	return merged, nil
}
