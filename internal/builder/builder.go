// Package builder runs the index build pipeline over a closed corpus
// snapshot: hash every document into a term-frequency vector, aggregate
// global document frequencies at a barrier, derive the IDF vector, scale
// each document to TF-IDF, and assemble the immutable Index. Per-document
// stages run data-parallel; only the frequency aggregation synchronizes.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hashedsearch/retrieval-platform/internal/aggregate"
	"github.com/hashedsearch/retrieval-platform/internal/corpus"
	"github.com/hashedsearch/retrieval-platform/internal/idf"
	"github.com/hashedsearch/retrieval-platform/internal/index"
	"github.com/hashedsearch/retrieval-platform/internal/sparse"
	"github.com/hashedsearch/retrieval-platform/internal/vectorizer"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/resilience"
)

// Stats summarises one completed build.
type Stats struct {
	Docs              int
	ActiveBuckets     int
	SuppressedBuckets int
	Duration          time.Duration
}

// Builder executes builds with a fixed configuration.
type Builder struct {
	cfg    config.IndexConfig
	vec    *vectorizer.Vectorizer
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// New validates the index configuration and returns a Builder.
func New(cfg config.IndexConfig) (*Builder, error) {
	vec, err := vectorizer.New(cfg.Buckets)
	if err != nil {
		return nil, err
	}
	if cfg.MinDocFreq < 0 {
		return nil, fmt.Errorf("%w: minDocFreq must be non-negative, got %d",
			apperrors.ErrInvalidConfig, cfg.MinDocFreq)
	}
	return &Builder{
		cfg:    cfg,
		vec:    vec,
		logger: slog.Default().With("component", "index-builder"),
	}, nil
}

// Vectorizer returns the builder's vectorizer, shared with query scoring so
// both sides hash into the identical bucket space.
func (b *Builder) Vectorizer() *vectorizer.Vectorizer {
	return b.vec
}

// Build runs the full pipeline and returns the Index. The corpus must be
// closed: document frequencies are a whole-corpus statistic, so no output
// is produced until every document has passed the aggregation barrier.
func (b *Builder) Build(ctx context.Context, docs []corpus.Document) (*index.Index, Stats, error) {
	start := time.Now()
	if len(docs) == 0 {
		return nil, Stats{}, apperrors.ErrEmptyCorpus
	}
	workers := b.cfg.BuildWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	tfs, err := b.vectorize(ctx, docs, workers)
	if err != nil {
		return nil, Stats{}, err
	}

	// Barrier: df is meaningless until every document is folded in.
	df, err := aggregate.Aggregate(ctx, tfs, aggregate.Options{
		Workers: workers,
		Retry:   b.retry,
	})
	if err != nil {
		return nil, Stats{}, err
	}

	idfVec, err := idf.Compute(df, b.cfg.MinDocFreq)
	if err != nil {
		return nil, Stats{}, err
	}

	entries, err := b.scale(ctx, docs, tfs, idfVec, workers)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := Stats{
		Docs:              df.Docs,
		ActiveBuckets:     len(idfVec),
		SuppressedBuckets: len(df.Counts) - len(idfVec),
		Duration:          time.Since(start),
	}
	b.logger.Info("index built",
		"documents", stats.Docs,
		"active_buckets", stats.ActiveBuckets,
		"suppressed_buckets", stats.SuppressedBuckets,
		"duration", stats.Duration,
	)
	return index.New(b.cfg.Buckets, df.Docs, idfVec, entries), stats, nil
}

// vectorize hashes every document into its term-frequency vector. Documents
// are independent, so partitions run without any shared state.
func (b *Builder) vectorize(ctx context.Context, docs []corpus.Document, workers int) ([]sparse.Vector, error) {
	tfs := make([]sparse.Vector, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	for i, part := range aggregate.Partition(len(docs), workers) {
		i, part := i, part
		g.Go(func() error {
			err := resilience.Retry(gctx, fmt.Sprintf("vectorize-%d", i), b.retry, func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				for j := part.Start; j < part.End; j++ {
					tfs[j] = b.vec.Vectorize(docs[j].Tokens)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: vectorize partition %d: %v", apperrors.ErrPartitionFailed, i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tfs, nil
}

// scale multiplies each document's term frequencies by the global IDF
// weights and drops zero results. Runs after the idf barrier; documents are
// again independent.
func (b *Builder) scale(ctx context.Context, docs []corpus.Document, tfs []sparse.Vector, idfVec sparse.Vector, workers int) (map[string]index.DocEntry, error) {
	type shard map[string]index.DocEntry
	parts := aggregate.Partition(len(docs), workers)
	shards := make([]shard, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		i, part := i, part
		g.Go(func() error {
			err := resilience.Retry(gctx, fmt.Sprintf("scale-%d", i), b.retry, func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				out := make(shard, part.End-part.Start)
				for j := part.Start; j < part.End; j++ {
					out[docs[j].ID] = index.DocEntry{
						Title: docs[j].Title,
						TFIDF: tfs[j].Scale(idfVec),
					}
				}
				shards[i] = out
				return nil
			})
			if err != nil {
				return fmt.Errorf("%w: scale partition %d: %v", apperrors.ErrPartitionFailed, i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make(map[string]index.DocEntry, len(docs))
	for _, s := range shards {
		for id, entry := range s {
			entries[id] = entry
		}
	}
	return entries, nil
}
