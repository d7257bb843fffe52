// Package sparse implements the bucket-indexed sparse vectors used
// throughout the index: term frequencies, inverse document frequencies, and
// TF-IDF weights. A missing bucket is weight zero; zero weights are never
// stored.
package sparse

import "sort"

// Vector maps a hash bucket to a non-negative weight.
type Vector map[uint64]float64

// New returns an empty Vector.
func New() Vector {
	return make(Vector)
}

// Add increments the weight at bucket b.
func (v Vector) Add(b uint64, w float64) {
	v[b] += w
}

// Get returns the weight at bucket b, zero if absent.
func (v Vector) Get(b uint64) float64 {
	return v[b]
}

// Buckets returns the non-zero buckets in ascending order. The sort is for
// reproducible iteration in serialisation and tests, not for semantics.
func (v Vector) Buckets() []uint64 {
	buckets := make([]uint64, 0, len(v))
	for b := range v {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return buckets
}

// Scale returns a new Vector whose entries are v[b]*by[b]. Buckets that
// multiply to zero are dropped, so sparsity is preserved: a zero weight in
// `by` suppresses the bucket entirely.
func (v Vector) Scale(by Vector) Vector {
	out := make(Vector, len(v))
	for b, w := range v {
		if scaled := w * by[b]; scaled != 0 {
			out[b] = scaled
		}
	}
	return out
}

// Dot computes the dot product of v and other restricted to the buckets
// present in v. With v as the (tiny) query vector this never touches
// buckets outside the query, regardless of how wide `other` is.
func (v Vector) Dot(other Vector) float64 {
	var sum float64
	for b, w := range v {
		if ow, ok := other[b]; ok {
			sum += w * ow
		}
	}
	return sum
}

// Clone returns a deep copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for b, w := range v {
		out[b] = w
	}
	return out
}
