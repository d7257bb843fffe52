// Package vectorizer maps tokens into a fixed bucket space with the hashing
// trick: instead of keeping a term dictionary, every token is hashed into
// one of B buckets. Memory is bounded by B no matter how large the corpus
// vocabulary grows; the price is that colliding terms share a bucket and
// their frequencies add up indistinguishably.
package vectorizer

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/hashedsearch/retrieval-platform/internal/sparse"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

// Vectorizer hashes tokens into [0, B). It is stateless after construction
// and safe for unbounded concurrent use.
type Vectorizer struct {
	buckets uint64
}

// New creates a Vectorizer over a bucket space of size buckets.
func New(buckets int64) (*Vectorizer, error) {
	if buckets <= 0 {
		return nil, fmt.Errorf("%w: bucket count must be positive, got %d",
			apperrors.ErrInvalidConfig, buckets)
	}
	return &Vectorizer{buckets: uint64(buckets)}, nil
}

// Buckets returns the size of the bucket space.
func (v *Vectorizer) Buckets() int64 {
	return int64(v.buckets)
}

// Bucket returns the bucket for token. It is a pure function of the token
// and the bucket count: the same token maps to the same bucket across
// documents, queries, and runs.
func (v *Vectorizer) Bucket(token string) uint64 {
	return xxhash.Sum64String(token) % v.buckets
}

// Vectorize counts tokens per bucket. Distinct tokens that hash to the same
// bucket have their counts summed.
func (v *Vectorizer) Vectorize(tokens []string) sparse.Vector {
	tf := make(sparse.Vector, len(tokens))
	for _, token := range tokens {
		tf.Add(v.Bucket(token), 1)
	}
	return tf
}

// BucketSet returns the distinct buckets hit by tokens. The frequency
// aggregator consumes presence, not counts, so this is the document's whole
// contribution to the corpus document-frequency statistic.
func (v *Vectorizer) BucketSet(tokens []string) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(tokens))
	for _, token := range tokens {
		set[v.Bucket(token)] = struct{}{}
	}
	return set
}
