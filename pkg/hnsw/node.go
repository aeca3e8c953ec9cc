package hnsw

import "sync/atomic"

// Node is one vector in the HNSW graph with per-layer neighbor lists.
//
// Per spec.md §5 and the "shared mutable graph" design note in §9, a
// node's neighbor list at each layer is an immutable slice referenced by an
// atomic pointer: mutation allocates a new slice and swaps the pointer in,
// so a reader that captured the old pointer keeps traversing a
// self-consistent view without taking any lock. This replaces the
// teacher's per-node sync.RWMutex with the lock-free discipline the spec
// mandates; a node's id and level are set once at construction and never
// mutated afterward, while its vector is replaced by a quantized code when
// quantization applies (see code below).
type Node struct {
	id     uint64
	vector []float32
	level  int

	// code holds the node's quantized representation once the index's
	// quantizer has encoded it (spec.md §4.3): Scalar8 bytes, or a
	// packed-bit Binary code. It is nil until quantization applies, at
	// which point vector is cleared — see Index.applyQuantization. A
	// caller must check Code() before Vector() to know which is live.
	code []byte

	// neighbors[layer] holds an atomic pointer to the current, immutable
	// neighbor-id slice for that layer. Index range is [0, level].
	neighbors []atomic.Pointer[[]uint64]
}

// NewNode creates a node with empty neighbor lists at every layer 0..level.
func NewNode(id uint64, vector []float32, level int) *Node {
	n := &Node{
		id:        id,
		vector:    vector,
		level:     level,
		neighbors: make([]atomic.Pointer[[]uint64], level+1),
	}
	for i := range n.neighbors {
		empty := make([]uint64, 0)
		n.neighbors[i].Store(&empty)
	}
	return n
}

// ID returns the node's identifier.
func (n *Node) ID() uint64 { return n.id }

// Vector returns the node's full-precision vector, or nil once it has been
// quantized (see Code). It is never mutated after construction/
// quantization and is safe to read concurrently without copying.
func (n *Node) Vector() []float32 { return n.vector }

// Code returns the node's quantized byte representation, or nil if the
// node is still stored at full precision.
func (n *Node) Code() []byte { return n.code }

// Level returns the highest layer this node participates in.
func (n *Node) Level() int { return n.level }

// Neighbors returns the currently published neighbor-id slice for layer.
// The returned slice must not be mutated by the caller — it may be shared
// with concurrent readers.
func (n *Node) Neighbors(layer int) []uint64 {
	if layer < 0 || layer > n.level {
		return nil
	}
	return *n.neighbors[layer].Load()
}

// GetNeighbors is an alias for Neighbors that returns a defensive copy,
// kept for callers (the package's tests) ported from the teacher's style
// that expect to own the returned slice.
func (n *Node) GetNeighbors(layer int) []uint64 {
	cur := n.Neighbors(layer)
	out := make([]uint64, len(cur))
	copy(out, cur)
	return out
}

// SetNeighbors atomically publishes a new neighbor list for layer, copying
// the input so the caller's slice and the published one never alias.
func (n *Node) SetNeighbors(layer int, neighbors []uint64) {
	if layer < 0 || layer > n.level {
		return
	}
	next := make([]uint64, len(neighbors))
	copy(next, neighbors)
	n.neighbors[layer].Store(&next)
}

// HasNeighbor reports whether neighborID is currently published at layer.
func (n *Node) HasNeighbor(layer int, neighborID uint64) bool {
	for _, id := range n.Neighbors(layer) {
		if id == neighborID {
			return true
		}
	}
	return false
}

// AddNeighbor publishes a new neighbor list with neighborID appended, if
// not already present. Concurrent calls on the same node do not lose
// updates: the swap is retried if another call published first. Callers
// that need to enforce Mmax must check degree themselves; AddNeighbor
// performs no capacity enforcement.
func (n *Node) AddNeighbor(layer int, neighborID uint64) {
	if layer < 0 || layer > n.level {
		return
	}
	for {
		curPtr := n.neighbors[layer].Load()
		cur := *curPtr
		for _, id := range cur {
			if id == neighborID {
				return
			}
		}
		next := make([]uint64, len(cur), len(cur)+1)
		copy(next, cur)
		next = append(next, neighborID)
		if n.neighbors[layer].CompareAndSwap(curPtr, &next) {
			return
		}
	}
}

// RemoveNeighbor publishes a new neighbor list with neighborID removed, if
// present.
func (n *Node) RemoveNeighbor(layer int, neighborID uint64) {
	if layer < 0 || layer > n.level {
		return
	}
	cur := n.Neighbors(layer)
	idx := -1
	for i, id := range cur {
		if id == neighborID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	next := make([]uint64, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	n.neighbors[layer].Store(&next)
}

// NeighborCount reports the number of neighbors currently published at
// layer.
func (n *Node) NeighborCount(layer int) int {
	return len(n.Neighbors(layer))
}

// GetAllNeighbors returns a defensive copy of every layer's neighbor list,
// keyed by layer. Used by snapshot.go to walk a quiesced graph.
func (n *Node) GetAllNeighbors() map[int][]uint64 {
	result := make(map[int][]uint64, n.level+1)
	for layer := 0; layer <= n.level; layer++ {
		if ns := n.Neighbors(layer); len(ns) > 0 {
			cp := make([]uint64, len(ns))
			copy(cp, ns)
			result[layer] = cp
		}
	}
	return result
}
