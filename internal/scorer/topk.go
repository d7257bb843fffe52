package scorer

import "container/heap"

// ScoredDoc is a single ranked result.
type ScoredDoc struct {
	DocID string  `json:"document_id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// topK keeps the K best candidates seen so far in a min-heap: the root is
// the current worst, so each insertion beyond K evicts in O(log K). Ordering
// is score descending with document ID ascending as the tie-break, which
// makes the final ranking a strict total order.
type topK struct {
	h     scoredDocHeap
	limit int
}

func newTopK(limit int) *topK {
	return &topK{limit: limit}
}

func (t *topK) Push(doc ScoredDoc) {
	heap.Push(&t.h, doc)
	if t.h.Len() > t.limit {
		heap.Pop(&t.h)
	}
}

// Drain empties the selector and returns the survivors best-first.
func (t *topK) Drain() []ScoredDoc {
	result := make([]ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ScoredDoc)
	}
	return result
}

type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

// Less orders the heap worst-first: lower score, or on equal score the
// higher document ID, sits at the root.
func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
