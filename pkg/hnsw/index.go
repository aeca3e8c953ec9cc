// Package hnsw implements the Hierarchical Navigable Small World index of
// spec.md §4.6: layered proximity graph construction, beam-search query,
// removal, and (in snapshot.go) binary persistence with an integrity
// check. Structural invariants Inv-A (mutual neighbors), Inv-B (degree
// bound), and Inv-C (entry point tracks the highest-layer node) are
// maintained by insert.go, search.go, and remove.go and are fatal-on-
// violation — see vecerr.ErrIndexCorrupt.
package hnsw

import (
	"math"
	"math/rand"
	"sync"

	"github.com/annexsearch/vecann/internal/quantize"
	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// Config holds the construction parameters for a new Index (spec.md §4.6).
type Config struct {
	M              int // target connections per node above layer 0
	EfConstruction int // candidate-set width during insert
	EfSearch       int // default candidate-set width during search
	Metric         kernel.Metric
	Quantization   codec.Quantization // None, Scalar8, or Binary; spec.md §4.3
	RandomSeed     int64              // deterministic when non-zero; see NewSeeded
	seedSet        bool
}

// DefaultConfig returns spec.md's default HNSW parameters: M=16,
// efConstruction=200, efSearch=50, metric=Cosine.
func DefaultConfig() Config {
	return Config{
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
		Metric:         kernel.Cosine,
	}
}

// WithSeed returns a copy of c with a deterministic random seed set, used
// to satisfy spec.md §8 property 6 (two indexes built with the same
// sequence and seed must produce identical graphs).
func (c Config) WithSeed(seed int64) Config {
	c.RandomSeed = seed
	c.seedSet = true
	return c
}

// Index is an HNSW proximity-graph index over fixed-dimension vectors.
type Index struct {
	m              int
	m0             int // Mmax(0) = 2M
	efConstruction int
	efSearch       int
	metric         kernel.Metric
	distanceFunc   kernel.Func
	ml             float64 // levelMultiplier = 1/ln(M)

	mu          sync.RWMutex // index-wide writer lock; readers take RLock
	nodes       map[uint64]*Node
	entryPoint  uint64
	hasEntry    bool
	topLayer    int
	nodeCounter uint64
	dimension   int
	size        int64

	rnd *rand.Rand

	// Quantization state (spec.md §4.3). quantization is fixed for the
	// index's lifetime; scalarQuant/binaryQuant are the sealed, trained
	// quantizers once ready. scalarQuant starts nil and is trained once
	// trainBuffer accumulates quantize.MinTrainingSamples raw vectors (or
	// the index is restored from a snapshot carrying a serialized
	// calibration); until then every node keeps its full-precision vector.
	// binaryQuant needs no training and is built on the first Add once the
	// dimension is known.
	quantization codec.Quantization
	scalarQuant  *quantize.Scalar8
	binaryQuant  *quantize.Binary
	trainBuffer  [][]float32
}

// New creates an empty HNSW index. Without WithSeed, level assignment is
// seeded from a fixed constant so behavior is still reproducible within a
// process; callers that need cross-process determinism (spec.md §8
// property 6) should call cfg.WithSeed explicitly.
func New(cfg Config) (*Index, error) {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = 200
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 50
	}
	if cfg.Metric == kernel.Hamming && cfg.Quantization != codec.Binary {
		return nil, vecerr.Wrap("hnsw.New", vecerr.ErrBadConfig, "metric=hamming requires quantization=binary")
	}
	if cfg.Quantization == codec.Binary && cfg.Metric != kernel.Hamming {
		return nil, vecerr.Wrap("hnsw.New", vecerr.ErrBadConfig, "quantization=binary only supports metric=hamming")
	}

	// Hamming has no float kernel (it operates on packed-bit codes via
	// idx.binaryQuant instead, see distanceToNode/distancePair); every
	// other metric needs one.
	var fn kernel.Func
	if cfg.Metric != kernel.Hamming {
		fn = kernel.ForMetric(cfg.Metric)
		if fn == nil {
			return nil, vecerr.Wrapf("hnsw.New", vecerr.ErrBadConfig, "metric %v has no float kernel", cfg.Metric)
		}
	}

	seed := cfg.RandomSeed
	if !cfg.seedSet {
		seed = 0x5EED
	}

	return &Index{
		m:              cfg.M,
		m0:             cfg.M * 2,
		efConstruction: cfg.EfConstruction,
		efSearch:       cfg.EfSearch,
		metric:         cfg.Metric,
		distanceFunc:   fn,
		ml:             1.0 / math.Log(float64(cfg.M)),
		nodes:          make(map[uint64]*Node),
		topLayer:       -1,
		rnd:            rand.New(rand.NewSource(seed)),
		quantization:   cfg.Quantization,
	}, nil
}

// randomLevel draws ⌊−ln(u)·levelMultiplier⌋ for u uniform in (0,1].
func (idx *Index) randomLevel() int {
	u := idx.rnd.Float64()
	for u == 0 {
		u = idx.rnd.Float64()
	}
	return int(math.Floor(-math.Log(u) * idx.ml))
}

// Size returns the number of live nodes in the index.
func (idx *Index) Size() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

// Dimension returns the vector dimension, fixed by the first Add.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// MaxLayer returns the current top layer, or -1 if the index is empty.
func (idx *Index) MaxLayer() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.topLayer
}

// Metric returns the index's configured distance metric.
func (idx *Index) Metric() kernel.Metric { return idx.metric }

// Quantization returns the index's configured quantization kind.
func (idx *Index) Quantization() codec.Quantization { return idx.quantization }

// M returns the configured target degree above layer 0.
func (idx *Index) M() int { return idx.m }

// M0 returns Mmax(0) = 2M.
func (idx *Index) M0() int { return idx.m0 }

// EfConstruction returns the configured construction-time candidate width.
func (idx *Index) EfConstruction() int { return idx.efConstruction }

// EfSearch returns the configured default search-time candidate width.
func (idx *Index) EfSearch() int { return idx.efSearch }

// GetNode retrieves a node by id, or nil if absent.
func (idx *Index) GetNode(id uint64) *Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.nodes[id]
}

// EntryPoint returns the current entry point node, or nil if the index is
// empty.
func (idx *Index) EntryPoint() *Node {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if !idx.hasEntry {
		return nil
	}
	return idx.nodes[idx.entryPoint]
}

// Mmax returns the degree bound for layer (Inv-B): 2M at layer 0, M above.
func (idx *Index) Mmax(layer int) int {
	if layer == 0 {
		return idx.m0
	}
	return idx.m
}

// distance computes a direct float-float distance using the index's
// configured metric kernel, with no quantization involved. Exposed (in
// addition to distanceToNode/distancePair) for callers that already hold
// two full-precision vectors.
func (idx *Index) distance(a, b []float32) float32 {
	return idx.distanceFunc(a, b)
}

// distanceToNode computes an asymmetric distance (spec.md §4.3) between a
// full-precision query and a node that may be quantized: the database side
// is decoded (Scalar8) or re-derived (Binary, by encoding the query into
// the same packed-bit space) on the fly, so the comparison preserves the
// configured metric's mathematical form. A node whose code hasn't been set
// yet (quantization not yet trained, or the index isn't quantized) is
// compared directly via the float kernel.
func (idx *Index) distanceToNode(query []float32, n *Node) float32 {
	if n.code == nil {
		return idx.distanceFunc(query, n.vector)
	}
	switch idx.quantization {
	case codec.Scalar8:
		scratch := make([]float32, len(query))
		return idx.scalarQuant.AsymmetricDistance(query, n.code, idx.distanceFunc, scratch)
	case codec.Binary:
		qcode, err := idx.binaryQuant.Encode(query)
		if err != nil {
			return float32(math.Inf(1))
		}
		return float32(idx.binaryQuant.Distance(qcode, n.code))
	default:
		return idx.distanceFunc(query, n.vector)
	}
}

// distancePair computes a distance between two stored nodes, used only by
// the construction-time neighbor heuristic (selectNeighborsLocked,
// pruneNeighborsLocked) where both sides are already-admitted database
// vectors rather than an incoming query.
func (idx *Index) distancePair(a, b *Node) float32 {
	if a.code == nil || b.code == nil {
		return idx.distanceFunc(a.vector, b.vector)
	}
	switch idx.quantization {
	case codec.Scalar8:
		av, errA := idx.scalarQuant.Decode(a.code)
		bv, errB := idx.scalarQuant.Decode(b.code)
		if errA != nil || errB != nil {
			return float32(math.Inf(1))
		}
		return idx.distanceFunc(av, bv)
	case codec.Binary:
		return float32(idx.binaryQuant.Distance(a.code, b.code))
	default:
		return idx.distanceFunc(a.vector, b.vector)
	}
}

// IndexStats summarizes index shape for introspection, per the teacher's
// GetStats. It is returned by Index.GetStats; the registry's Enumerate()
// does not include it.
type IndexStats struct {
	Size           int64
	Dimension      int
	MaxLayer       int
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
	NodesPerLayer  map[int]int
}

// MemoryBytes estimates the index's resident memory: per-node vector
// storage plus per-layer neighbor lists, used by the registry (spec.md
// §4.8) for admission and eviction accounting. The bound is advisory, not
// exact — unlike flatindex.MemoryBytes it does not account for map/slice
// overhead precisely.
func (idx *Index) MemoryBytes() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var total int64
	fullBytes := int64(idx.dimension) * 4
	for _, node := range idx.nodes {
		if node.code != nil {
			total += int64(len(node.code))
		} else {
			total += fullBytes
		}
		for layer := 0; layer <= node.level; layer++ {
			total += int64(len(node.Neighbors(layer))) * 8
		}
	}
	return total
}

// GetStats returns current index statistics.
func (idx *Index) GetStats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	nodesPerLayer := make(map[int]int)
	for _, node := range idx.nodes {
		for layer := 0; layer <= node.level; layer++ {
			nodesPerLayer[layer]++
		}
	}

	return IndexStats{
		Size:           idx.size,
		Dimension:      idx.dimension,
		MaxLayer:       idx.topLayer,
		M:              idx.m,
		M0:             idx.m0,
		EfConstruction: idx.efConstruction,
		EfSearch:       idx.efSearch,
		NodesPerLayer:  nodesPerLayer,
	}
}
