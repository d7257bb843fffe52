// Package idf converts document frequencies into smoothed inverse
// document-frequency weights. Buckets seen in fewer than minDocFreq
// documents are suppressed at the source: a handful of occurrences is more
// likely preprocessing noise or a collision artifact than signal, and
// zeroing the weight removes it from every downstream score at once.
package idf

import (
	"fmt"
	"math"

	"github.com/hashedsearch/retrieval-platform/internal/aggregate"
	"github.com/hashedsearch/retrieval-platform/internal/sparse"
	apperrors "github.com/hashedsearch/retrieval-platform/pkg/errors"
)

// Weight returns the smoothed IDF for a bucket seen in df of n documents:
//
//	idf = ln((n+1)/(df+1)) + 1
//
// The +1 terms keep the value finite at df = 0 and the result is monotone
// non-increasing in df.
func Weight(df, n int) float64 {
	return math.Log(float64(n+1)/float64(df+1)) + 1
}

// Compute turns the aggregated document frequencies into the global IDF
// vector. Only buckets present in the corpus and meeting the minDocFreq
// floor get an entry; everything else is weight zero by the sparse-vector
// convention. The input must cover the whole corpus (aggregate enforces
// this); the output is immutable for the lifetime of the index.
func Compute(df aggregate.DocFreq, minDocFreq int) (sparse.Vector, error) {
	if minDocFreq < 0 {
		return nil, fmt.Errorf("%w: minDocFreq must be non-negative, got %d",
			apperrors.ErrInvalidConfig, minDocFreq)
	}
	if df.Docs == 0 {
		return nil, apperrors.ErrEmptyCorpus
	}
	idf := make(sparse.Vector, len(df.Counts))
	for bucket, count := range df.Counts {
		if count < minDocFreq {
			continue
		}
		idf[bucket] = Weight(count, df.Docs)
	}
	return idf, nil
}
