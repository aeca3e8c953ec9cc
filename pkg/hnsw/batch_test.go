package hnsw

import (
	"context"
	"math/rand"
	"testing"
)

func newBatchTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := New(Config{M: 16, EfConstruction: 200})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return idx
}

func TestBatchInsert(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(1))

	vectors := make([][]float32, 100)
	for i := range vectors {
		vectors[i] = randomVector(rng, 768)
	}

	result := idx.BatchInsert(context.Background(), vectors, nil)

	if result.TotalProcessed != 100 {
		t.Errorf("Expected 100 processed, got %d", result.TotalProcessed)
	}
	if result.SuccessCount != 100 {
		t.Errorf("Expected 100 successes, got %d", result.SuccessCount)
	}
	if result.FailureCount != 0 {
		t.Errorf("Expected 0 failures, got %d", result.FailureCount)
	}
	if len(result.VectorIDs) != 100 {
		t.Errorf("Expected 100 IDs, got %d", len(result.VectorIDs))
	}
	if idx.Size() != 100 {
		t.Errorf("Expected index size 100, got %d", idx.Size())
	}
}

func TestBatchInsertWithProgress(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(2))

	vectors := make([][]float32, 100)
	for i := range vectors {
		vectors[i] = randomVector(rng, 768)
	}

	progressCalls := 0
	result := idx.BatchInsert(context.Background(), vectors, func(processed, total int) {
		progressCalls++
		if total != 100 {
			t.Errorf("Expected total 100, got %d", total)
		}
	})

	if result.SuccessCount != 100 {
		t.Errorf("Expected 100 successes, got %d", result.SuccessCount)
	}
	if progressCalls == 0 {
		t.Error("Expected progress callbacks to be called")
	}
}

func TestBatchInsertSequential(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(3))

	vectors := make([][]float32, 50)
	for i := range vectors {
		vectors[i] = randomVector(rng, 768)
	}

	result := idx.BatchInsertSequential(vectors, nil)
	if result.SuccessCount != 50 {
		t.Errorf("Expected 50 successes, got %d", result.SuccessCount)
	}
	for i := 1; i < len(result.VectorIDs); i++ {
		if result.VectorIDs[i] <= result.VectorIDs[i-1] {
			t.Errorf("IDs not sequential: %d, %d", result.VectorIDs[i-1], result.VectorIDs[i])
		}
	}
}

func TestBatchRemove(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(4))

	ids := make([]uint64, 50)
	for i := range ids {
		id, _ := idx.Add(randomVector(rng, 768))
		ids[i] = id
	}

	initialSize := idx.Size()
	result := idx.BatchRemove(context.Background(), ids[:20], nil)

	if result.SuccessCount != 20 {
		t.Errorf("Expected 20 removals, got %d", result.SuccessCount)
	}
	if idx.Size() != initialSize-20 {
		t.Errorf("Expected size %d, got %d", initialSize-20, idx.Size())
	}
}

func TestBatchRemoveWithProgress(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(5))

	ids := make([]uint64, 30)
	for i := range ids {
		id, _ := idx.Add(randomVector(rng, 768))
		ids[i] = id
	}

	progressCalls := 0
	result := idx.BatchRemove(context.Background(), ids, func(processed, total int) {
		progressCalls++
	})

	if result.SuccessCount != 30 {
		t.Errorf("Expected 30 removals, got %d", result.SuccessCount)
	}
	if progressCalls == 0 {
		t.Error("Expected progress callbacks")
	}
}

func TestBatchUpdate(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(6))

	ids := make([]uint64, 20)
	for i := range ids {
		id, _ := idx.Add(randomVector(rng, 768))
		ids[i] = id
	}

	updates := make([]VectorUpdate, 20)
	for i := range updates {
		updates[i] = VectorUpdate{ID: ids[i], Vector: randomVector(rng, 768)}
	}

	result := idx.BatchUpdate(context.Background(), updates, nil)
	if result.SuccessCount != 20 {
		t.Errorf("Expected 20 updates, got %d", result.SuccessCount)
	}
	if result.FailureCount != 0 {
		t.Errorf("Expected 0 failures, got %d", result.FailureCount)
	}

	for _, id := range ids {
		if idx.GetNode(id) == nil {
			t.Errorf("updated id %d should still be present", id)
		}
	}
}

func TestBatchUpdateNonexistent(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(7))

	updates := []VectorUpdate{
		{ID: 999999, Vector: randomVector(rng, 768)},
		{ID: 888888, Vector: randomVector(rng, 768)},
	}

	result := idx.BatchUpdate(context.Background(), updates, nil)
	if result.FailureCount != 2 {
		t.Errorf("Expected 2 failures, got %d", result.FailureCount)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(result.Errors))
	}
}

func TestBatchInsertWithBuffer(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(8))

	vectors := make([][]float32, 500)
	for i := range vectors {
		vectors[i] = randomVector(rng, 768)
	}

	result := idx.BatchInsertWithBuffer(context.Background(), vectors, 100, nil)
	if result.SuccessCount != 500 {
		t.Errorf("Expected 500 successes, got %d", result.SuccessCount)
	}
	if idx.Size() != 500 {
		t.Errorf("Expected index size 500, got %d", idx.Size())
	}
}

func TestBatchInsertEmpty(t *testing.T) {
	idx := newBatchTestIndex(t)
	result := idx.BatchInsert(context.Background(), nil, nil)
	if result.TotalProcessed != 0 {
		t.Errorf("Expected 0 processed, got %d", result.TotalProcessed)
	}
}

func TestBatchRemoveEmpty(t *testing.T) {
	idx := newBatchTestIndex(t)
	result := idx.BatchRemove(context.Background(), nil, nil)
	if result.TotalProcessed != 0 {
		t.Errorf("Expected 0 processed, got %d", result.TotalProcessed)
	}
}

func TestGetBatchStats(t *testing.T) {
	idx := newBatchTestIndex(t)
	rng := rand.New(rand.NewSource(9))

	for i := 0; i < 50; i++ {
		idx.Add(randomVector(rng, 768))
	}

	stats := idx.GetBatchStats()

	totalVectors, ok := stats["total_vectors"].(int64)
	if !ok || totalVectors != 50 {
		t.Errorf("Expected total_vectors 50, got %v", stats["total_vectors"])
	}
	maxLayer, ok := stats["max_layer"].(int)
	if !ok || maxLayer < 0 {
		t.Errorf("Invalid max_layer: %v", stats["max_layer"])
	}
}

func BenchmarkBatchInsert(b *testing.B) {
	idx, _ := New(Config{M: 16, EfConstruction: 200})
	rng := rand.New(rand.NewSource(10))

	vectors := make([][]float32, 1000)
	for i := range vectors {
		vectors[i] = randomVector(rng, 768)
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.BatchInsert(ctx, vectors, nil)
	}
}

func BenchmarkBatchInsertSequential(b *testing.B) {
	idx, _ := New(Config{M: 16, EfConstruction: 200})
	rng := rand.New(rand.NewSource(11))

	vectors := make([][]float32, 1000)
	for i := range vectors {
		vectors[i] = randomVector(rng, 768)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.BatchInsertSequential(vectors, nil)
	}
}
