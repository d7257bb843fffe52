// Package loader owns the searcher's live index. It resolves the newest
// artifact (catalog first, directory scan as fallback), reconstructs the
// partitioned scorer, and swaps it in atomically. In-flight queries keep
// the scorer they started with; an index is never mutated in place.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/hashedsearch/retrieval-platform/internal/catalog"
	"github.com/hashedsearch/retrieval-platform/internal/events"
	"github.com/hashedsearch/retrieval-platform/internal/index"
	"github.com/hashedsearch/retrieval-platform/internal/index/artifact"
	"github.com/hashedsearch/retrieval-platform/internal/scorer"
	"github.com/hashedsearch/retrieval-platform/pkg/config"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/kafka"
)

// Loader resolves, loads, and hot-swaps index artifacts.
type Loader struct {
	indexCfg  config.IndexConfig
	searchCfg config.SearchConfig
	store     *catalog.Store // nil when the catalog is unavailable
	current   atomic.Pointer[scorer.Sharded]
	docCount  atomic.Int64
	logger    *slog.Logger
}

// New creates a Loader. store may be nil; the loader then falls back to
// scanning the artifact directory.
func New(indexCfg config.IndexConfig, searchCfg config.SearchConfig, store *catalog.Store) *Loader {
	return &Loader{
		indexCfg:  indexCfg,
		searchCfg: searchCfg,
		store:     store,
		logger:    slog.Default().With("component", "index-loader"),
	}
}

// Load resolves the newest artifact, reads it, partitions it, and swaps the
// resulting scorer in. The swap is atomic: concurrent queries see either
// the old index or the new one, never a mixture.
func (l *Loader) Load(ctx context.Context) error {
	name, err := l.resolveArtifact(ctx)
	if err != nil {
		return err
	}
	path := filepath.Join(l.indexCfg.DataDir, name)
	ix, err := artifact.Read(path)
	if err != nil {
		return err
	}
	if ix.Buckets() != l.indexCfg.Buckets {
		// The artifact's bucket count wins: queries must hash into the
		// space the index was built with, and the two spaces are not
		// compatible.
		l.logger.Warn("artifact bucket count differs from configuration",
			"artifact_buckets", ix.Buckets(),
			"configured_buckets", l.indexCfg.Buckets,
		)
	}

	parts := index.Split(ix, l.indexCfg.NumPartitions)
	sharded, err := scorer.NewSharded(parts, l.searchCfg.PartitionTimeout)
	if err != nil {
		return err
	}
	l.current.Store(sharded)
	l.docCount.Store(int64(ix.DocCount()))
	l.logger.Info("index loaded",
		"artifact", name,
		"documents", ix.DocCount(),
		"buckets", ix.Buckets(),
		"partitions", len(parts),
	)
	return nil
}

// Scorer returns the live scorer, or ErrIndexUnavailable before the first
// successful Load.
func (l *Loader) Scorer() (*scorer.Sharded, error) {
	s := l.current.Load()
	if s == nil {
		return nil, apperrors.ErrIndexUnavailable
	}
	return s, nil
}

// DocCount returns the document count of the live index, 0 if none.
func (l *Loader) DocCount() int64 {
	return l.docCount.Load()
}

// ReloadHandler returns a Kafka MessageHandler that reloads the index when
// a build-complete event arrives.
func (l *Loader) ReloadHandler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.BuildEvent](value)
		if err != nil {
			l.logger.Error("failed to decode build event", "error", err, "key", string(key))
			return nil
		}
		l.logger.Info("build event received",
			"build_id", event.BuildID,
			"artifact", event.ArtifactName,
		)
		if err := l.Load(ctx); err != nil {
			l.logger.Error("index reload failed", "error", err)
		}
		return nil
	}
}

func (l *Loader) resolveArtifact(ctx context.Context) (string, error) {
	if l.store != nil {
		build, err := l.store.Latest(ctx)
		if err == nil {
			return build.ArtifactName, nil
		}
		if !errors.Is(err, apperrors.ErrBuildNotFound) {
			l.logger.Warn("catalog lookup failed, scanning artifact directory", "error", err)
		}
	}
	return artifact.Latest(l.indexCfg.DataDir)
}
