// Package flatindex implements the brute-force index of spec.md §4.5: used
// directly for small datasets and as the correctness oracle HNSW's recall
// is measured against. Concurrency follows the publish-by-swap discipline
// of spec.md §5 — readers capture an immutable snapshot atomically and
// never block a writer, and a writer builds a new snapshot and swaps it in
// under its own exclusive lock.
package flatindex

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/annexsearch/vecann/internal/quantize"
	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/topk"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// snapshot is the immutable state a Search reads from. Replacing it is the
// only mutation a writer performs; existing readers that captured a prior
// snapshot continue to see it safely.
type snapshot struct {
	ids     []uint64
	vectors [][]float32 // full precision; nil entry once quantized, see codes
	codes   [][]byte    // parallel to ids; nil entry when that id is unquantized
	live    []bool      // parallel to ids; false = tombstoned
}

// Index is a flat, exhaustive-scan vector index.
type Index struct {
	dimension int
	metric    kernel.Metric
	distFn    kernel.Func

	mu      sync.Mutex // serializes writers only; readers never take it
	current atomic.Pointer[snapshot]

	byID map[uint64]int // id -> index into the live snapshot's arrays; writer-only

	// Quantization state, mirroring pkg/hnsw's scheme (spec.md §4.3):
	// quantization is fixed for the index's lifetime, scalarQuant/
	// binaryQuant are the sealed trained quantizers, and trainBuffer
	// accumulates raw samples until quantize.MinTrainingSamples is
	// reached for Scalar8. Binary needs no training.
	quantization codec.Quantization
	scalarQuant  *quantize.Scalar8
	binaryQuant  *quantize.Binary
	trainBuffer  [][]float32
}

// New creates an empty flat index for the given dimension, metric, and
// quantization kind. It rejects the same metric/quantization mismatches
// hnsw.New does: Hamming requires Binary, and Binary supports only Hamming.
func New(dimension int, metric kernel.Metric, quantization codec.Quantization) (*Index, error) {
	if metric == kernel.Hamming && quantization != codec.Binary {
		return nil, vecerr.Wrap("flatindex.New", vecerr.ErrBadConfig, "metric=hamming requires quantization=binary")
	}
	if quantization == codec.Binary && metric != kernel.Hamming {
		return nil, vecerr.Wrap("flatindex.New", vecerr.ErrBadConfig, "quantization=binary only supports metric=hamming")
	}

	var fn kernel.Func
	if metric != kernel.Hamming {
		fn = kernel.ForMetric(metric)
		if fn == nil {
			return nil, vecerr.Wrapf("flatindex.New", vecerr.ErrBadConfig, "metric %v has no float kernel", metric)
		}
	}

	idx := &Index{
		dimension:    dimension,
		metric:       metric,
		distFn:       fn,
		byID:         make(map[uint64]int),
		quantization: quantization,
	}
	idx.current.Store(&snapshot{})
	return idx, nil
}

// Dimension reports the index's fixed vector dimension.
func (idx *Index) Dimension() int { return idx.dimension }

// Quantization returns the index's configured quantization kind.
func (idx *Index) Quantization() codec.Quantization { return idx.quantization }

// Add appends (id, v) to the index. O(1) amortized; rejects a duplicate id.
func (idx *Index) Add(id uint64, v []float32) error {
	if len(v) != idx.dimension {
		return vecerr.Wrap("flatindex.Add", vecerr.ErrDimensionMismatch, "")
	}
	if err := validateFinite(v); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.byID[id]; exists {
		return vecerr.Wrapf("flatindex.Add", vecerr.ErrDuplicateIdentifier, "id %d already present", id)
	}

	// Quantize first: reaching the Scalar8 training threshold re-encodes and
	// republishes the current snapshot, which next must be built from.
	vector, code := idx.applyQuantizationLocked(v)
	old := idx.current.Load()
	next := &snapshot{
		ids:     append(append([]uint64{}, old.ids...), id),
		vectors: append(append([][]float32{}, old.vectors...), vector),
		codes:   append(append([][]byte{}, old.codes...), code),
		live:    append(append([]bool{}, old.live...), true),
	}
	idx.byID[id] = len(next.ids) - 1
	idx.current.Store(next)
	return nil
}

// applyQuantizationLocked quantizes v per idx.quantization (spec.md §4.3),
// mirroring hnsw.Index.applyQuantization: returns (v, nil) if unquantized
// (either quantization is None, or Scalar8 hasn't reached its training
// threshold yet), or (nil, code) once a quantized representation exists.
// idx.mu must be held.
func (idx *Index) applyQuantizationLocked(v []float32) ([]float32, []byte) {
	switch idx.quantization {
	case codec.Binary:
		if idx.binaryQuant == nil {
			idx.binaryQuant = quantize.NewBinary(len(v))
		}
		code, err := idx.binaryQuant.Encode(v)
		if err != nil {
			return v, nil
		}
		return nil, code

	case codec.Scalar8:
		idx.trainBuffer = append(idx.trainBuffer, append([]float32(nil), v...))
		if idx.scalarQuant == nil && len(idx.trainBuffer) >= quantize.MinTrainingSamples {
			idx.trainScalarLocked()
		}
		if idx.scalarQuant != nil {
			code, err := idx.scalarQuant.Encode(v)
			if err == nil {
				return nil, code
			}
		}
		return v, nil

	default:
		return v, nil
	}
}

// trainScalarLocked calibrates Scalar8 from the buffered training sample
// and retroactively re-encodes every already-stored, still-unquantized
// vector in the current snapshot. idx.mu must be held.
func (idx *Index) trainScalarLocked() {
	q, err := quantize.TrainScalar8(idx.trainBuffer)
	if err != nil {
		return
	}
	idx.scalarQuant = q
	idx.trainBuffer = nil

	old := idx.current.Load()
	vectors := append([][]float32{}, old.vectors...)
	codes := append([][]byte{}, old.codes...)
	for i, v := range vectors {
		if v == nil {
			continue
		}
		code, err := q.Encode(v)
		if err != nil {
			continue
		}
		vectors[i] = nil
		codes[i] = code
	}
	idx.current.Store(&snapshot{ids: old.ids, vectors: vectors, codes: codes, live: old.live})
}

// Remove tombstones id without shrinking backing storage.
func (idx *Index) Remove(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	pos, exists := idx.byID[id]
	if !exists {
		return vecerr.Wrapf("flatindex.Remove", vecerr.ErrNoSuchIndex, "id %d not present", id)
	}

	old := idx.current.Load()
	live := append([]bool{}, old.live...)
	live[pos] = false
	next := &snapshot{ids: old.ids, vectors: old.vectors, codes: old.codes, live: live}
	delete(idx.byID, id)
	idx.current.Store(next)
	return nil
}

// Search performs a single full pass over live entries, scoring each with
// the index's distance kernel and keeping the k closest via pkg/topk. A
// quantized entry is scored via the asymmetric distance of spec.md §4.3:
// the query stays full precision, the stored side decodes on the fly.
func (idx *Index) Search(query []float32, k int) ([]topk.Pair, error) {
	if len(query) != idx.dimension {
		return nil, vecerr.Wrap("flatindex.Search", vecerr.ErrDimensionMismatch, "")
	}
	if err := validateFinite(query); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, vecerr.Wrap("flatindex.Search", vecerr.ErrBadConfig, "k must be >= 1")
	}

	snap := idx.current.Load()
	sel := topk.New(k)
	var binQuery []byte
	var scratch []float32
	if idx.quantization == codec.Binary && idx.binaryQuant != nil {
		var err error
		binQuery, err = idx.binaryQuant.Encode(query)
		if err != nil {
			return nil, err
		}
	}
	if idx.quantization == codec.Scalar8 {
		scratch = make([]float32, idx.dimension)
	}

	for i, id := range snap.ids {
		if !snap.live[i] {
			continue
		}
		if snap.codes[i] == nil {
			sel.Offer(id, idx.distFn(query, snap.vectors[i]))
			continue
		}
		switch idx.quantization {
		case codec.Scalar8:
			sel.Offer(id, idx.scalarQuant.AsymmetricDistance(query, snap.codes[i], idx.distFn, scratch))
		case codec.Binary:
			sel.Offer(id, float32(idx.binaryQuant.Distance(binQuery, snap.codes[i])))
		}
	}
	return sel.Drain(), nil
}

// Len reports the number of live entries.
func (idx *Index) Len() int {
	snap := idx.current.Load()
	n := 0
	for _, l := range snap.live {
		if l {
			n++
		}
	}
	return n
}

// GetVector returns a defensive copy of the vector stored for id, per the
// GetVector contract of pkg/hnsw: a Scalar8-quantized entry dequantizes, a
// Binary-quantized entry has no meaningful float reconstruction and returns
// vecerr.ErrBadConfig.
func (idx *Index) GetVector(id uint64) ([]float32, error) {
	idx.mu.Lock()
	pos, exists := idx.byID[id]
	idx.mu.Unlock()
	if !exists {
		return nil, vecerr.Wrapf("flatindex.GetVector", vecerr.ErrNoSuchIndex, "no entry with id %d", id)
	}

	snap := idx.current.Load()
	if snap.codes[pos] == nil {
		v := make([]float32, len(snap.vectors[pos]))
		copy(v, snap.vectors[pos])
		return v, nil
	}
	if idx.quantization == codec.Binary {
		return nil, vecerr.Wrapf("flatindex.GetVector", vecerr.ErrBadConfig, "id %d is binary-quantized; no float reconstruction is available", id)
	}
	return idx.scalarQuant.Decode(snap.codes[pos])
}

// MemoryBytes gives an exact accounting of ids, vectors, codes, and the
// live mask, per spec.md §4.5's MemoryBytes contract.
func (idx *Index) MemoryBytes() int64 {
	snap := idx.current.Load()
	var total int64
	total += int64(len(snap.ids)) * 8 // ids []uint64
	total += int64(len(snap.live))    // live []bool
	for _, v := range snap.vectors {
		total += int64(len(v)) * 4 // vectors [][]float32
	}
	for _, c := range snap.codes {
		total += int64(len(c)) // codes [][]byte
	}
	return total
}

func validateFinite(v []float32) error {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return vecerr.Wrap("flatindex.validateFinite", vecerr.ErrInvalidVector, "NaN or infinite sample")
		}
	}
	return nil
}
