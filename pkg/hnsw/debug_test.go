package hnsw

import (
	"context"
	"math/rand"
	"testing"

	"github.com/annexsearch/vecann/pkg/kernel"
)

func TestGraphStructureSanity(t *testing.T) {
	idx, _ := New(DefaultConfig())

	rng := rand.New(rand.NewSource(42))
	dim := 10
	count := 20
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		ids[i], _ = idx.Add(randomVector(rng, dim))
	}

	t.Logf("Max layer: %d", idx.MaxLayer())
	t.Logf("Entry point: %d (level %d)", idx.EntryPoint().ID(), idx.EntryPoint().Level())

	totalNeighbors := 0
	nodesWithNoNeighbors := 0
	for _, id := range ids {
		node := idx.GetNode(id)
		if node == nil {
			continue
		}
		n := len(node.GetNeighbors(0))
		totalNeighbors += n
		if n == 0 {
			nodesWithNoNeighbors++
		}
	}
	if nodesWithNoNeighbors > 1 {
		t.Errorf("Too many nodes without neighbors: %d", nodesWithNoNeighbors)
	}

	result, err := idx.Search(context.Background(), randomVector(rng, dim), 5, 20)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Visited < 5 {
		t.Errorf("Search visited too few nodes: %d (index has %d nodes)", result.Visited, count)
	}
}

func TestSimpleInsertAndSearch(t *testing.T) {
	idx, err := New(Config{M: 4, EfConstruction: 10, Metric: kernel.L2})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	vectors := [][]float32{
		{1.0, 0.0},
		{0.9, 0.1},
		{0.0, 1.0},
		{0.1, 0.9},
		{0.5, 0.5},
	}
	ids := make([]uint64, len(vectors))
	for i, vec := range vectors {
		id, err := idx.Add(vec)
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids[i] = id
	}

	result, err := idx.Search(context.Background(), vectors[0], 3, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(result.Results) == 0 {
		t.Fatal("No results returned")
	}
	if result.Results[0].ID != ids[0] {
		t.Errorf("Expected first result to be ID %d, got %d", ids[0], result.Results[0].ID)
	}
}
