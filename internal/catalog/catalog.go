// Package catalog records completed index builds in PostgreSQL so searchers
// can find the artifact for the newest build without scanning directories,
// and operators can audit what each artifact was built from.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
	"github.com/hashedsearch/retrieval-platform/pkg/postgres"
)

// Build is one catalog row.
type Build struct {
	ID           int64
	SnapshotID   string
	Buckets      int64
	MinDocFreq   int
	DocCount     int
	ArtifactName string
	BuildMillis  int64
	CreatedAt    time.Time
}

// Store persists and queries build records.
type Store struct {
	client *postgres.Client
	logger *slog.Logger
}

// NewStore creates a Store and ensures the builds table exists.
func NewStore(ctx context.Context, client *postgres.Client) (*Store, error) {
	s := &Store{
		client: client,
		logger: slog.Default().With("component", "build-catalog"),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating build catalog: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.client.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS index_builds (
			id            BIGSERIAL PRIMARY KEY,
			snapshot_id   TEXT NOT NULL,
			buckets       BIGINT NOT NULL,
			min_doc_freq  INT NOT NULL,
			doc_count     INT NOT NULL,
			artifact_name TEXT NOT NULL,
			build_millis  BIGINT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// Record inserts a completed build and returns its catalog ID. The insert
// runs in a transaction so a partially recorded build is never visible.
func (s *Store) Record(ctx context.Context, b Build) (int64, error) {
	var id int64
	err := s.client.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
			INSERT INTO index_builds
				(snapshot_id, buckets, min_doc_freq, doc_count, artifact_name, build_millis)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			b.SnapshotID, b.Buckets, b.MinDocFreq, b.DocCount, b.ArtifactName, b.BuildMillis,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("recording build: %w", err)
	}
	s.logger.Info("build recorded",
		"build_id", id,
		"snapshot_id", b.SnapshotID,
		"artifact", b.ArtifactName,
		"documents", b.DocCount,
	)
	return id, nil
}

// Latest returns the most recent build, or ErrBuildNotFound when the
// catalog is empty.
func (s *Store) Latest(ctx context.Context) (Build, error) {
	var b Build
	err := s.client.DB.QueryRowContext(ctx, `
		SELECT id, snapshot_id, buckets, min_doc_freq, doc_count, artifact_name, build_millis, created_at
		FROM index_builds
		ORDER BY created_at DESC, id DESC
		LIMIT 1`).Scan(
		&b.ID, &b.SnapshotID, &b.Buckets, &b.MinDocFreq, &b.DocCount,
		&b.ArtifactName, &b.BuildMillis, &b.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, apperrors.ErrBuildNotFound
	}
	if err != nil {
		return Build{}, fmt.Errorf("querying latest build: %w", err)
	}
	return b, nil
}
