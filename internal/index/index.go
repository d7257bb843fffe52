// Package index defines the built retrieval index: the global IDF vector,
// per-document TF-IDF vectors, and a bucket-keyed inverted lookup so queries
// touch only the documents that share a bucket with the query. An Index is
// immutable once constructed; rebuilds produce a fresh Index that callers
// swap in wholesale, so concurrent readers never need a lock.
package index

import (
	"sort"

	"github.com/hashedsearch/retrieval-platform/internal/sparse"
)

// DocEntry is the persisted per-document payload.
type DocEntry struct {
	Title string        `json:"title"`
	TFIDF sparse.Vector `json:"tfidf"`
}

// Posting is one document's weight at a bucket.
type Posting struct {
	DocID  string
	Weight float64
}

// Index is the queryable artifact of one build.
type Index struct {
	buckets  int64
	docCount int
	idf      sparse.Vector
	docs     map[string]DocEntry
	postings map[uint64][]Posting
}

// New constructs an Index from build output. The inverted postings are
// derived here, once, with each bucket's postings sorted by document ID so
// every downstream traversal is deterministic.
func New(buckets int64, docCount int, idf sparse.Vector, docs map[string]DocEntry) *Index {
	postings := make(map[uint64][]Posting)
	for docID, entry := range docs {
		for bucket, weight := range entry.TFIDF {
			postings[bucket] = append(postings[bucket], Posting{DocID: docID, Weight: weight})
		}
	}
	for bucket := range postings {
		list := postings[bucket]
		sort.Slice(list, func(i, j int) bool { return list[i].DocID < list[j].DocID })
	}
	return &Index{
		buckets:  buckets,
		docCount: docCount,
		idf:      idf,
		docs:     docs,
		postings: postings,
	}
}

// Buckets returns the bucket-space size B the index was built with. Queries
// must hash with the same B; the scorer enforces this.
func (ix *Index) Buckets() int64 { return ix.buckets }

// DocCount returns N, the number of documents folded into the build.
func (ix *Index) DocCount() int { return ix.docCount }

// IDF returns the global IDF vector. Callers must treat it as read-only.
func (ix *Index) IDF() sparse.Vector { return ix.idf }

// Postings returns the documents with a non-zero TF-IDF weight at bucket,
// sorted by document ID. The returned slice is shared and must not be
// mutated.
func (ix *Index) Postings(bucket uint64) []Posting {
	return ix.postings[bucket]
}

// Title returns the display title for docID.
func (ix *Index) Title(docID string) (string, bool) {
	entry, ok := ix.docs[docID]
	return entry.Title, ok
}

// Docs returns the document table. Callers must treat it as read-only.
func (ix *Index) Docs() map[string]DocEntry { return ix.docs }
