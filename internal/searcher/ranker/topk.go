package ranker

import (
	"container/heap"
)

// topK keeps the k best hits seen so far in a min-heap whose root is the
// weakest kept hit.
type topK struct {
	k int
	h hitHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(hitHeap, 0, min(k, 1024))}
}

func (t *topK) offer(hit Hit) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, hit)
		return
	}
	if better(hit, t.h[0]) {
		t.h[0] = hit
		heap.Fix(&t.h, 0)
	}
}

// sorted drains the heap, best hit first.
func (t *topK) sorted() []Hit {
	out := make([]Hit, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(Hit)
	}
	return out
}

// better orders hits by score descending, then DocID ascending.
func better(a, b Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

type hitHeap []Hit

func (h hitHeap) Len() int { return len(h) }

func (h hitHeap) Less(i, j int) bool { return better(h[j], h[i]) }

func (h hitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *hitHeap) Push(x any) {
	*h = append(*h, x.(Hit))
}

func (h *hitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
