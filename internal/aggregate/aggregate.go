// Package aggregate computes the corpus-wide document-frequency statistic:
// for every bucket, the number of distinct documents with a non-zero term
// frequency there. Each document contributes its bucket-presence set exactly
// once; per-partition partial results are merged through a commutative,
// associative combinator, so neither the corpus partitioning nor the merge
// order can change the outcome.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hashedsearch/retrieval-platform/internal/sparse"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/resilience"
)

// DocFreq is the aggregation result: per-bucket distinct-document counts and
// the number of documents folded in. It is only meaningful for the whole
// corpus; a partial DocFreq must never leave this package.
type DocFreq struct {
	Counts map[uint64]int
	Docs   int
}

// NewDocFreq returns the identity element of Merge.
func NewDocFreq() DocFreq {
	return DocFreq{Counts: make(map[uint64]int)}
}

// Fold accumulates one partition of term-frequency vectors into an initially
// empty DocFreq. Each document contributes 1 to every bucket it has a
// non-zero entry at, regardless of the count there.
func Fold(tfs []sparse.Vector) DocFreq {
	df := NewDocFreq()
	for _, tf := range tfs {
		for b := range tf {
			df.Counts[b]++
		}
		df.Docs++
	}
	return df
}

// Merge combines two partial results. It is commutative and associative:
// Merge(a, b) == Merge(b, a), and grouping does not matter.
func Merge(a, b DocFreq) DocFreq {
	out := DocFreq{
		Counts: make(map[uint64]int, len(a.Counts)+len(b.Counts)),
		Docs:   a.Docs + b.Docs,
	}
	for bucket, n := range a.Counts {
		out.Counts[bucket] += n
	}
	for bucket, n := range b.Counts {
		out.Counts[bucket] += n
	}
	return out
}

// Options controls parallel aggregation.
type Options struct {
	Workers int
	Retry   resilience.RetryConfig
	OnRetry func() // optional, counts partition retries
}

// Aggregate folds the term-frequency vectors in parallel partitions and
// merges the partial results. It is the pipeline's synchronization barrier:
// it returns only once every partition has been folded (retried to success
// if needed), or fails without exposing any partial counts. The corpus must
// be closed; an empty corpus is rejected here rather than producing a
// meaningless zero statistic.
func Aggregate(ctx context.Context, tfs []sparse.Vector, opts Options) (DocFreq, error) {
	if len(tfs) == 0 {
		return DocFreq{}, apperrors.ErrEmptyCorpus
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(tfs) {
		workers = len(tfs)
	}

	logger := slog.Default().With("component", "freq-aggregator")
	parts := Partition(len(tfs), workers)
	partials := make([]DocFreq, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			attempt := 0
			err := resilience.Retry(gctx, fmt.Sprintf("df-fold-%d", i), opts.Retry, func() error {
				attempt++
				if attempt > 1 && opts.OnRetry != nil {
					opts.OnRetry()
				}
				if gctx.Err() != nil {
					return gctx.Err()
				}
				partials[i] = Fold(tfs[part.Start:part.End])
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: fold partition %d: %v", apperrors.ErrPartitionFailed, i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DocFreq{}, err
	}

	merged := NewDocFreq()
	for _, partial := range partials {
		merged = Merge(merged, partial)
	}
	logger.Info("document frequencies aggregated",
		"documents", merged.Docs,
		"active_buckets", len(merged.Counts),
		"partitions", len(parts),
	)
	return merged, nil
}

// Range is a half-open [Start, End) slice of the corpus.
type Range struct {
	Start, End int
}

// Partition splits n items into at most parts contiguous ranges of
// near-equal length.
func Partition(n, parts int) []Range {
	if parts <= 0 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	ranges := make([]Range, 0, parts)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, Range{Start: start, End: end})
	}
	return ranges
}
