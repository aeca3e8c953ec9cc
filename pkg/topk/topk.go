// Package topk implements the bounded max-heap selector of spec.md §4.4:
// a fixed-capacity heap keyed by (distance desc, id asc) that keeps the k
// smallest-distance candidates seen so far and drains them in ascending
// order. Grounded on the container/heap pattern used throughout the
// teacher's pkg/hnsw (insert.go's heapItem/minHeap/maxHeap), specialized to
// the deterministic tie-break the spec requires.
package topk

import "container/heap"

// Pair is one (id, distance) result.
type Pair struct {
	ID       uint64
	Distance float32
}

// less implements the heap's ordering: worst (to be evicted first) is the
// item with the largest distance, ties broken by the larger id so that the
// smaller id survives.
func less(a, b Pair) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

type heapSlice []Pair

func (h heapSlice) Len() int            { return len(h) }
func (h heapSlice) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h heapSlice) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x interface{}) { *h = append(*h, x.(Pair)) }
func (h *heapSlice) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Selector is a bounded max-heap of capacity k. The zero value is not
// usable; construct with New.
type Selector struct {
	k int
	h heapSlice
}

// New creates a Selector with the given capacity. k must be >= 1.
func New(k int) *Selector {
	if k < 1 {
		k = 1
	}
	return &Selector{k: k, h: make(heapSlice, 0, k)}
}

// Offer considers (id, d) for membership in the top-k. If the heap has
// fewer than k entries, it is pushed unconditionally; otherwise it replaces
// the current worst entry only if it is strictly closer (smaller distance)
// or equally close with a smaller id.
func (s *Selector) Offer(id uint64, d float32) {
	if s.h.Len() < s.k {
		heap.Push(&s.h, Pair{ID: id, Distance: d})
		return
	}
	worst := s.h[0]
	if d < worst.Distance || (d == worst.Distance && id < worst.ID) {
		s.h[0] = Pair{ID: id, Distance: d}
		heap.Fix(&s.h, 0)
	}
}

// Len reports the number of entries currently held.
func (s *Selector) Len() int { return s.h.Len() }

// Full reports whether the selector holds k entries.
func (s *Selector) Full() bool { return s.h.Len() >= s.k }

// Worst returns the current worst (largest-distance) entry and whether one
// exists. Used by HNSW's beam search to bound candidate expansion.
func (s *Selector) Worst() (Pair, bool) {
	if s.h.Len() == 0 {
		return Pair{}, false
	}
	return s.h[0], true
}

// Drain empties the selector and returns its contents in ascending
// distance order, ties broken by smaller id — spec.md §4.4's final-drain
// contract. The selector is left empty and may be reused via Offer.
func (s *Selector) Drain() []Pair {
	n := s.h.Len()
	out := make([]Pair, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = heap.Pop(&s.h).(Pair)
	}
	return out
}

// Reset clears the selector for reuse without reallocating its backing
// array, avoiding per-query heap churn in hot search loops.
func (s *Selector) Reset() {
	s.h = s.h[:0]
}
