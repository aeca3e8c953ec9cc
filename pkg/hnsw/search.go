package hnsw

import (
	"container/heap"
	"context"

	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/topk"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// Result is one (id, distance) search hit.
type Result struct {
	ID       uint64
	Distance float32
}

// SearchResult holds the outcome of a Search call.
type SearchResult struct {
	Results []Result
	Visited int // number of distinct nodes the beam touched, for diagnostics
}

// Search performs spec.md §4.6's k-NN query: greedy descent through layers
// topLayer..1, then a beam search of width ef = max(efOverride, k) at layer
// 0. ctx is checked between candidate pops (spec.md §5's cancellation
// discipline); a cancelled context aborts the search and returns
// vecerr.ErrCancelled with no structural side effects.
func (idx *Index) Search(ctx context.Context, query []float32, k int, efOverride int) (*SearchResult, error) {
	if err := validateVector(query); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, vecerr.Wrap("hnsw.Search", vecerr.ErrBadConfig, "k must be >= 1")
	}

	idx.mu.RLock()
	if idx.dimension == 0 || len(query) != idx.dimension {
		idx.mu.RUnlock()
		if idx.dimension == 0 {
			return &SearchResult{}, nil
		}
		return nil, vecerr.Wrap("hnsw.Search", vecerr.ErrDimensionMismatch, "")
	}
	if !idx.hasEntry {
		idx.mu.RUnlock()
		return &SearchResult{}, nil
	}
	ef := idx.efSearch
	if efOverride > 0 {
		ef = efOverride
	}
	if ef < k {
		ef = k
	}
	current := idx.entryPoint
	topLayer := idx.topLayer
	idx.mu.RUnlock()

	// Phase 1: greedy descent, single best per layer, no candidate set.
	currentNode := idx.GetNode(current)
	currentDist := idx.distanceToNode(query, currentNode)
	visited := 1
	for layer := topLayer; layer > 0; layer-- {
		select {
		case <-ctx.Done():
			return nil, vecerr.Wrap("hnsw.Search", vecerr.ErrCancelled, "")
		default:
		}
		improved := true
		for improved {
			improved = false
			for _, nid := range idx.mustGetNode(current).Neighbors(layer) {
				n := idx.GetNode(nid)
				if n == nil {
					continue
				}
				visited++
				d := idx.distanceToNode(query, n)
				if d < currentDist {
					current = nid
					currentDist = d
					improved = true
				}
			}
		}
	}

	// Phase 2: beam search of width ef at layer 0.
	candidates, v, err := idx.searchLayerForQuery(ctx, query, current, currentDist, ef)
	if err != nil {
		return nil, err
	}
	visited += v

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: c.id, Distance: c.distance}
	}
	return &SearchResult{Results: results, Visited: visited}, nil
}

// searchLayerForQuery runs layer-0 beam search per spec.md §4.6: a min-heap
// of candidates and a bounded max-heap (via pkg/topk) of results, popping
// the closest candidate, stopping once it is farther than the current
// worst retained result.
func (idx *Index) searchLayerForQuery(ctx context.Context, query []float32, entryID uint64, entryDist float32, ef int) ([]candItem, int, error) {
	visitedSet := map[uint64]bool{entryID: true}
	candidates := &candMinHeap{}
	sel := topk.New(ef)
	heap.Push(candidates, candItem{id: entryID, distance: entryDist})
	sel.Offer(entryID, entryDist)
	visited := 1

	for candidates.Len() > 0 {
		select {
		case <-ctx.Done():
			return nil, visited, vecerr.Wrap("hnsw.searchLayerForQuery", vecerr.ErrCancelled, "")
		default:
		}

		c := heap.Pop(candidates).(candItem)
		if worst, ok := sel.Worst(); ok && sel.Full() && c.distance > worst.Distance {
			break
		}
		node := idx.GetNode(c.id)
		if node == nil {
			continue
		}
		for _, nid := range node.Neighbors(0) {
			if visitedSet[nid] {
				continue
			}
			visitedSet[nid] = true
			n := idx.GetNode(nid)
			if n == nil {
				continue
			}
			visited++
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
	return out, visited, nil
}

// KNNSearch is a convenience wrapper using efSearch = max(k*2, 50), the
// teacher's KNNSearch default.
func (idx *Index) KNNSearch(ctx context.Context, query []float32, k int) (*SearchResult, error) {
	ef := k * 2
	if ef < 50 {
		ef = 50
	}
	return idx.Search(ctx, query, k, ef)
}

// GetVector returns a defensive copy of the vector stored for id. For a
// Scalar8-quantized node this dequantizes the stored code, an approximation
// of the original input (spec.md §4.3). Binary quantization discards
// magnitude entirely and cannot reconstruct a meaningful float vector, so a
// Binary-quantized node returns vecerr.ErrBadConfig instead of silently
// returning garbage.
func (idx *Index) GetVector(id uint64) ([]float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	node := idx.nodes[id]
	if node == nil {
		return nil, vecerr.Wrapf("hnsw.GetVector", vecerr.ErrNoSuchIndex, "no node with id %d", id)
	}
	if node.code == nil {
		v := make([]float32, len(node.vector))
		copy(v, node.vector)
		return v, nil
	}
	if idx.quantization == codec.Binary {
		return nil, vecerr.Wrapf("hnsw.GetVector", vecerr.ErrBadConfig, "node %d is binary-quantized; no float reconstruction is available", id)
	}
	return idx.scalarQuant.Decode(node.code)
}

// Update replaces the vector stored at id, implemented as Remove followed
// by AddWithID under the same id. Unlike the teacher's Update (which
// reinserts under a fresh id via Insert), this preserves the caller-visible
// identifier — a column value's row id must not change because the
// embedding it backs was updated.
func (idx *Index) Update(id uint64, newVector []float32) error {
	idx.mu.RLock()
	_, exists := idx.nodes[id]
	idx.mu.RUnlock()
	if !exists {
		return vecerr.Wrapf("hnsw.Update", vecerr.ErrNoSuchIndex, "no node with id %d", id)
	}

	if err := idx.Remove(id); err != nil {
		return err
	}
	return idx.AddWithID(id, newVector)
}
