package topk

import (
	"math/rand"
	"sort"
	"testing"
)

func TestSelectorBasicOrdering(t *testing.T) {
	s := New(3)
	for _, p := range []Pair{{1, 5.0}, {2, 1.0}, {3, 3.0}, {4, 0.5}, {5, 9.0}} {
		s.Offer(p.ID, p.Distance)
	}
	got := s.Drain()
	want := []Pair{{4, 0.5}, {2, 1.0}, {3, 3.0}}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSelectorTieBreakByID(t *testing.T) {
	s := New(2)
	s.Offer(5, 1.0)
	s.Offer(3, 1.0)
	s.Offer(9, 1.0) // same distance as both; larger id should lose
	got := s.Drain()
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ID != 3 || got[1].ID != 5 {
		t.Errorf("got ids %d,%d, want 3,5", got[0].ID, got[1].ID)
	}
}

func TestSelectorMatchesExhaustiveSort(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	n := 500
	k := 17
	all := make([]Pair, n)
	for i := range all {
		all[i] = Pair{ID: uint64(i), Distance: r.Float32() * 100}
	}

	s := New(k)
	for _, p := range all {
		s.Offer(p.ID, p.Distance)
	}
	got := s.Drain()

	sort.Slice(all, func(i, j int) bool {
		if all[i].Distance != all[j].Distance {
			return all[i].Distance < all[j].Distance
		}
		return all[i].ID < all[j].ID
	})
	want := all[:k]

	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSelectorReuseAfterReset(t *testing.T) {
	s := New(2)
	s.Offer(1, 1.0)
	s.Offer(2, 2.0)
	_ = s.Drain()
	s.Reset()
	if s.Len() != 0 {
		t.Fatalf("expected empty selector after Reset, got Len=%d", s.Len())
	}
	s.Offer(9, 0.1)
	if got, ok := s.Worst(); !ok || got.ID != 9 {
		t.Errorf("Worst() = %+v, %v; want id=9", got, ok)
	}
}

func TestSelectorWorstReflectsCapacity(t *testing.T) {
	s := New(1)
	s.Offer(1, 5.0)
	if w, ok := s.Worst(); !ok || w.Distance != 5.0 {
		t.Fatalf("Worst() = %+v, %v", w, ok)
	}
	s.Offer(2, 1.0) // closer; should replace
	if w, ok := s.Worst(); !ok || w.ID != 2 {
		t.Fatalf("Worst() after replace = %+v, %v", w, ok)
	}
}
