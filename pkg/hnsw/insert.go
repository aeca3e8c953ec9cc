package hnsw

import (
	"container/heap"
	"math"

	"github.com/annexsearch/vecann/pkg/topk"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// candItem is one (id, distance) pair used by the construction-time
// candidate min-heap; grounded on the teacher's heapItem/minHeap pair but
// kept private to insert.go since search.go defines its own query-time
// heap types.
type candItem struct {
	id       uint64
	distance float32
}

type candMinHeap []candItem

func (h candMinHeap) Len() int            { return len(h) }
func (h candMinHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h candMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candMinHeap) Push(x interface{}) { *h = append(*h, x.(candItem)) }
func (h *candMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Add inserts v under a freshly assigned id (spec.md §4.6's Add). The
// dimension is fixed by the first successful Add; subsequent calls with a
// mismatched dimension are rejected.
func (idx *Index) Add(v []float32) (uint64, error) {
	if err := validateVector(v); err != nil {
		return 0, err
	}

	idx.mu.Lock()
	if idx.dimension == 0 {
		idx.dimension = len(v)
	} else if len(v) != idx.dimension {
		idx.mu.Unlock()
		return 0, vecerr.Wrap("hnsw.Add", vecerr.ErrDimensionMismatch, "")
	}
	idx.nodeCounter++
	id := idx.nodeCounter
	idx.mu.Unlock()

	if err := idx.AddWithID(id, v); err != nil {
		return 0, err
	}
	return id, nil
}

// AddWithID inserts v under the caller-supplied id, rejecting a duplicate
// (DuplicateIdentifier). Used by snapshot restore and by Update, which must
// preserve the original id across a delete-then-reinsert.
func (idx *Index) AddWithID(id uint64, v []float32) error {
	if err := validateVector(v); err != nil {
		return err
	}

	idx.mu.Lock()
	if idx.dimension == 0 {
		idx.dimension = len(v)
	} else if len(v) != idx.dimension {
		idx.mu.Unlock()
		return vecerr.Wrap("hnsw.AddWithID", vecerr.ErrDimensionMismatch, "")
	}
	if _, exists := idx.nodes[id]; exists {
		idx.mu.Unlock()
		return vecerr.Wrapf("hnsw.AddWithID", vecerr.ErrDuplicateIdentifier, "id %d already present", id)
	}

	level := idx.randomLevel()

	// Empty graph: install as entry point with no neighbors and stop.
	if len(idx.nodes) == 0 {
		node := NewNode(id, v, level)
		idx.applyQuantization(node, v)
		idx.nodes[id] = node
		idx.entryPoint = id
		idx.hasEntry = true
		idx.topLayer = level
		idx.size++
		idx.mu.Unlock()
		return nil
	}

	entryID := idx.entryPoint
	topLayer := idx.topLayer
	entryNode := idx.nodes[entryID]
	idx.mu.Unlock()

	// Phase 1: greedy descent from entryPoint down to level+1, read-only.
	current := entryID
	currentDist := idx.distanceToNode(v, entryNode)
	for layer := topLayer; layer > level; layer-- {
		improved := true
		for improved {
			improved = false
			node := idx.GetNode(current)
			if node == nil {
				break
			}
			for _, nid := range node.Neighbors(layer) {
				n := idx.GetNode(nid)
				if n == nil {
					continue
				}
				d := idx.distanceToNode(v, n)
				if d < currentDist {
					current = nid
					currentDist = d
					improved = true
				}
			}
		}
	}

	// Phase 2: beam search + neighbor selection per layer, from
	// min(level, topLayer) down to 0.
	idx.mu.Lock()
	defer idx.mu.Unlock()

	node := NewNode(id, v, level)
	idx.applyQuantization(node, v)
	entrySet := []candItem{{id: current, distance: currentDist}}

	startLayer := level
	if topLayer < startLayer {
		startLayer = topLayer
	}
	for layer := startLayer; layer >= 0; layer-- {
		candidates := idx.searchLayerLocked(v, entrySet, idx.efConstruction, layer, id)
		selected := idx.selectNeighborsLocked(candidates, idx.Mmax(layer), id)
		node.SetNeighbors(layer, selected)

		for _, nbrID := range selected {
			nbr := idx.nodes[nbrID]
			if nbr == nil {
				continue
			}
			nbr.AddNeighbor(layer, id)
			if nbr.NeighborCount(layer) > idx.Mmax(layer) {
				before := nbr.Neighbors(layer)
				idx.pruneNeighborsLocked(nbr, layer)
				// Keep Inv-A: every node the prune dropped drops nbr too.
				for _, dropped := range before {
					if nbr.HasNeighbor(layer, dropped) {
						continue
					}
					if dropped == id {
						node.RemoveNeighbor(layer, nbrID)
					} else if d := idx.nodes[dropped]; d != nil {
						d.RemoveNeighbor(layer, nbrID)
					}
				}
			}
		}

		if len(candidates) > 0 {
			entrySet = candidates
		}
	}

	idx.nodes[id] = node
	idx.size++
	if level > idx.topLayer || (level == idx.topLayer && id < idx.entryPoint) {
		idx.topLayer = level
		idx.entryPoint = id
		idx.hasEntry = true
	}
	return nil
}

// searchLayerLocked runs a beam search of the given width over layer,
// starting from entrySet, excluding excludeID (the node under
// construction, not yet published) from exploration. The caller must hold
// idx.mu (read or write) for the duration of the call.
func (idx *Index) searchLayerLocked(query []float32, entrySet []candItem, ef int, layer int, excludeID uint64) []candItem {
	visited := make(map[uint64]bool, ef*2)
	candidates := &candMinHeap{}
	sel := topk.New(ef)

	for _, e := range entrySet {
		if visited[e.id] {
			continue
		}
		visited[e.id] = true
		heap.Push(candidates, e)
		sel.Offer(e.id, e.distance)
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candItem)
		if worst, ok := sel.Worst(); ok && sel.Full() && c.distance > worst.Distance {
			break
		}
		node := idx.nodes[c.id]
		if node == nil {
			continue
		}
		for _, nid := range node.Neighbors(layer) {
			if visited[nid] || nid == excludeID {
				continue
			}
			visited[nid] = true
			n := idx.nodes[nid]
			if n == nil {
				continue
			}
			d := idx.distanceToNode(query, n)
			worst, full := sel.Worst()
			if !full || d < worst.Distance {
				heap.Push(candidates, candItem{id: nid, distance: d})
				sel.Offer(nid, d)
			}
		}
	}

	pairs := sel.Drain()
	out := make([]candItem, len(pairs))
	for i, p := range pairs {
		out[i] = candItem{id: p.ID, distance: p.Distance}
	}
	return out
}

// selectNeighborsLocked implements spec.md §4.6's neighbor heuristic:
// iterate candidates in ascending distance to v (already captured in each
// candidate's c.distance, computed against v by the caller's beam search),
// admitting c only if it is closer to v than to every already-admitted
// neighbor, until max admits or candidates exhaust.
func (idx *Index) selectNeighborsLocked(candidates []candItem, max int, excludeID uint64) []uint64 {
	selected := make([]uint64, 0, max)
	selectedNodes := make([]*Node, 0, max)

	for _, c := range candidates {
		if c.id == excludeID {
			continue
		}
		if len(selected) >= max {
			break
		}
		n := idx.nodes[c.id]
		if n == nil {
			continue
		}
		admit := true
		for _, sn := range selectedNodes {
			if idx.distancePair(n, sn) <= c.distance {
				admit = false
				break
			}
		}
		if admit {
			selected = append(selected, c.id)
			selectedNodes = append(selectedNodes, n)
		}
	}
	return selected
}

// pruneNeighborsLocked re-applies the neighbor heuristic to bring an
// over-capacity node back within Mmax(layer), keeping its closest
// qualifying neighbors relative to its own vector.
func (idx *Index) pruneNeighborsLocked(n *Node, layer int) {
	cur := n.Neighbors(layer)
	candidates := make([]candItem, 0, len(cur))
	for _, id := range cur {
		other := idx.nodes[id]
		if other == nil {
			continue
		}
		candidates = append(candidates, candItem{id: id, distance: idx.distancePair(n, other)})
	}
	// Ascending distance, as the heuristic requires; candidate counts here
	// are bounded by Mmax so an insertion sort is plenty.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].distance < candidates[j-1].distance; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
	selected := idx.selectNeighborsLocked(candidates, idx.Mmax(layer), n.id)
	n.SetNeighbors(layer, selected)
}

func validateVector(v []float32) error {
	if len(v) == 0 {
		return vecerr.Wrap("hnsw.validateVector", vecerr.ErrDimensionMismatch, "vector must be non-empty")
	}
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return vecerr.Wrap("hnsw.validateVector", vecerr.ErrInvalidVector, "NaN or infinite sample")
		}
	}
	return nil
}
