package index

import "github.com/cespare/xxhash/v2"

// Split partitions the index's document table into parts sub-indexes by
// document-ID hash, for distributed query scoring. Every partition shares
// the global IDF vector and bucket count: document frequency is a
// whole-corpus statistic and must not be recomputed per partition. The
// assignment is stable across processes, so repeated loads of the same
// artifact produce identical partitions.
func Split(ix *Index, parts int) []*Index {
	if parts <= 1 {
		return []*Index{ix}
	}
	tables := make([]map[string]DocEntry, parts)
	for i := range tables {
		tables[i] = make(map[string]DocEntry)
	}
	for docID, entry := range ix.docs {
		p := xxhash.Sum64String(docID) % uint64(parts)
		tables[p][docID] = entry
	}
	out := make([]*Index, parts)
	for i, table := range tables {
		out[i] = New(ix.buckets, ix.docCount, ix.idf, table)
	}
	return out
}
