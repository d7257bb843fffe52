// Package scorer answers term queries against a built index. A query is
// hashed into the same bucket space as the corpus, and only the postings of
// the query's own buckets are walked; full-width vectors are never
// materialized. Results are a strict total order: score descending, then
// document ID ascending.
package scorer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashedsearch/retrieval-platform/internal/index"
	"github.com/hashedsearch/retrieval-platform/internal/vectorizer"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

// Scorer scores queries against one index partition. It holds only
// read-only state and is safe for unlimited concurrent use.
type Scorer struct {
	ix     *index.Index
	vec    *vectorizer.Vectorizer
	logger *slog.Logger
}

// New creates a Scorer over ix, hashing queries with the index's own bucket
// count so query terms and document terms land in the same space.
func New(ix *index.Index) (*Scorer, error) {
	vec, err := vectorizer.New(ix.Buckets())
	if err != nil {
		return nil, err
	}
	return &Scorer{
		ix:     ix,
		vec:    vec,
		logger: slog.Default().With("component", "query-scorer"),
	}, nil
}

// Index returns the underlying index partition.
func (s *Scorer) Index() *index.Index { return s.ix }

// Score ranks documents by the dot product of the query's term-frequency
// vector and each document's TF-IDF vector, restricted to the query's
// buckets, and returns at most k results. A query whose buckets are absent
// from every document (including the all-suppressed case) yields an empty
// list, not an error.
func (s *Scorer) Score(ctx context.Context, tokens []string, k int) ([]ScoredDoc, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", apperrors.ErrInvalidConfig, k)
	}
	qv := s.vec.Vectorize(tokens)
	if len(qv) == 0 {
		return []ScoredDoc{}, nil
	}

	scores := make(map[string]float64)
	for bucket, qw := range qv {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, posting := range s.ix.Postings(bucket) {
			scores[posting.DocID] += qw * posting.Weight
		}
	}
	if len(scores) == 0 {
		return []ScoredDoc{}, nil
	}

	top := newTopK(k)
	for docID, score := range scores {
		title, _ := s.ix.Title(docID)
		top.Push(ScoredDoc{DocID: docID, Title: title, Score: score})
	}
	return top.Drain(), nil
}
