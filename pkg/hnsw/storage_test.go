package hnsw

import (
	"context"
	"math/rand"
	"testing"

	"github.com/annexsearch/vecann/internal/quantize"
	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
)

func TestVectorStorage(t *testing.T) {
	idx, _ := New(DefaultConfig())
	rng := rand.New(rand.NewSource(42))
	dim := 10

	originalVectors := make([][]float32, 10)
	ids := make([]uint64, 10)
	for i := 0; i < 10; i++ {
		vec := randomVector(rng, dim)
		originalVectors[i] = vec
		id, err := idx.Add(vec)
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids[i] = id
	}

	for i, id := range ids {
		retrieved, err := idx.GetVector(id)
		if err != nil {
			t.Fatalf("GetVector(%d) failed: %v", id, err)
		}
		for j := 0; j < dim; j++ {
			if !almostEqual(retrieved[j], originalVectors[i][j]) {
				t.Errorf("Vector %d, dim %d: got %f, expected %f", id, j, retrieved[j], originalVectors[i][j])
			}
		}
		dist := idx.distance(originalVectors[i], retrieved)
		if !almostEqual(dist, 0.0) {
			t.Errorf("Distance from original to retrieved vector %d is %f (expected 0)", id, dist)
		}
	}
}

func TestSearchForInsertedVector(t *testing.T) {
	idx, _ := New(DefaultConfig())
	rng := rand.New(rand.NewSource(42))
	dim := 10
	count := 100

	vectors := make([][]float32, count)
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		vectors[i] = randomVector(rng, dim)
		id, err := idx.Add(vectors[i])
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids[i] = id
	}

	for i, id := range ids {
		result, err := idx.Search(context.Background(), vectors[i], 1, 50)
		if err != nil {
			t.Fatalf("Search for vector %d failed: %v", id, err)
		}
		if len(result.Results) == 0 {
			t.Fatalf("Search for vector %d returned no results", id)
		}
		if result.Results[0].Distance > 0.01 {
			t.Errorf("Vector %d: distance to closest match is %f (expected ~0), found id %d",
				id, result.Results[0].Distance, result.Results[0].ID)
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	idx, _ := New(DefaultConfig())
	rng := rand.New(rand.NewSource(7))
	dim := 16
	count := 200
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		id, err := idx.Add(randomVector(rng, dim))
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids[i] = id
	}

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if restored.Size() != idx.Size() {
		t.Errorf("restored size %d, want %d", restored.Size(), idx.Size())
	}
	if restored.MaxLayer() != idx.MaxLayer() {
		t.Errorf("restored max layer %d, want %d", restored.MaxLayer(), idx.MaxLayer())
	}
	if restored.EntryPoint().ID() != idx.EntryPoint().ID() {
		t.Errorf("restored entry point %d, want %d", restored.EntryPoint().ID(), idx.EntryPoint().ID())
	}

	for _, id := range ids {
		original, err := idx.GetVector(id)
		if err != nil {
			t.Fatalf("original GetVector(%d): %v", id, err)
		}
		got, err := restored.GetVector(id)
		if err != nil {
			t.Fatalf("restored GetVector(%d): %v", id, err)
		}
		for j := range original {
			if !almostEqual(original[j], got[j]) {
				t.Errorf("node %d dim %d: got %f, want %f", id, j, got[j], original[j])
			}
		}

		originalNode := idx.GetNode(id)
		restoredNode := restored.GetNode(id)
		for layer := 0; layer <= originalNode.Level(); layer++ {
			want := originalNode.GetNeighbors(layer)
			have := restoredNode.GetNeighbors(layer)
			if len(want) != len(have) {
				t.Errorf("node %d layer %d: %d neighbors, want %d", id, layer, len(have), len(want))
			}
		}
	}
}

func TestRestoreRejectsCorruptedCRC(t *testing.T) {
	idx, _ := New(DefaultConfig())
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		idx.Add(randomVector(rng, 8))
	}

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	data[len(data)-1] ^= 0xFF

	if _, err := Restore(data); err == nil {
		t.Error("expected Restore to reject a corrupted crc32 trailer")
	}
}

func TestSnapshotRoundTripScalar8(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quantization = codec.Scalar8
	idx, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(9))
	dim := 8
	count := quantize.MinTrainingSamples + 50
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		id, err := idx.Add(randomVector(rng, dim))
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids[i] = id
	}
	if idx.scalarQuant == nil {
		t.Fatal("expected scalarQuant to be trained before snapshotting")
	}

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Quantization() != codec.Scalar8 {
		t.Fatalf("restored quantization = %v, want Scalar8", restored.Quantization())
	}
	if restored.scalarQuant == nil {
		t.Fatal("expected restored index to carry the loaded scalar8 calibration")
	}

	for _, id := range ids {
		node := restored.GetNode(id)
		if node == nil {
			t.Fatalf("restored missing node %d", id)
		}
		if node.Code() == nil {
			t.Errorf("node %d: expected a quantized code after restore", id)
		}
		if _, err := restored.GetVector(id); err != nil {
			t.Errorf("restored GetVector(%d): %v", id, err)
		}
	}

	query := randomVector(rng, dim)
	if _, err := restored.Search(context.Background(), query, 5, 50); err != nil {
		t.Fatalf("restored Search failed: %v", err)
	}
}

func TestSnapshotRoundTripBinary(t *testing.T) {
	cfg := Config{M: 16, EfConstruction: 200, EfSearch: 50, Metric: kernel.Hamming, Quantization: codec.Binary}
	idx, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(13))
	dim := 32
	count := 64
	ids := make([]uint64, count)
	for i := 0; i < count; i++ {
		id, err := idx.Add(randomVector(rng, dim))
		if err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
		ids[i] = id
	}

	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Quantization() != codec.Binary {
		t.Fatalf("restored quantization = %v, want Binary", restored.Quantization())
	}

	for _, id := range ids {
		node := restored.GetNode(id)
		if node == nil || node.Code() == nil {
			t.Fatalf("restored missing binary code for node %d", id)
		}
		if _, err := restored.GetVector(id); err == nil {
			t.Errorf("node %d: expected GetVector to reject a binary-quantized node", id)
		}
	}

	query := randomVector(rng, dim)
	if _, err := restored.Search(context.Background(), query, 5, 50); err != nil {
		t.Fatalf("restored Search failed: %v", err)
	}
}

func TestSnapshotIsDeterministic(t *testing.T) {
	idx, _ := New(DefaultConfig())
	rng := rand.New(rand.NewSource(21))
	for i := 0; i < 150; i++ {
		if _, err := idx.Add(randomVector(rng, 12)); err != nil {
			t.Fatalf("Add %d failed: %v", i, err)
		}
	}

	first, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	second, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("snapshot lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("snapshot byte %d differs between two calls on the same graph: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestRestoreEmptyIndex(t *testing.T) {
	idx, _ := New(DefaultConfig())
	data, err := idx.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	restored, err := Restore(data)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Size() != 0 {
		t.Errorf("expected empty restored index, got size %d", restored.Size())
	}
	if restored.EntryPoint() != nil {
		t.Error("expected nil entry point on restored empty index")
	}
}
