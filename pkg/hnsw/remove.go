package hnsw

import "github.com/annexsearch/vecann/pkg/vecerr"

// Remove deletes id from the index (spec.md §4.6's Remove). It strips id
// from every neighbor list that contains it on every layer it appeared on,
// preserving Inv-A, then deletes the node itself. If id was the entry
// point, a replacement is chosen: the node of maximum current layer, ties
// broken by smallest id; if no nodes remain, the graph reverts to empty.
func (idx *Index) Remove(id uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	node := idx.nodes[id]
	if node == nil {
		return vecerr.Wrapf("hnsw.Remove", vecerr.ErrNoSuchIndex, "no node with id %d", id)
	}

	for layer := 0; layer <= node.level; layer++ {
		for _, nbrID := range node.Neighbors(layer) {
			if nbr := idx.nodes[nbrID]; nbr != nil {
				nbr.RemoveNeighbor(layer, id)
			}
		}
	}

	delete(idx.nodes, id)
	idx.size--

	if idx.hasEntry && idx.entryPoint == id {
		var (
			replacement uint64
			found       bool
			maxLevel    = -1
		)
		for nid, n := range idx.nodes {
			if n.level > maxLevel || (n.level == maxLevel && nid < replacement) {
				maxLevel = n.level
				replacement = nid
				found = true
			}
		}
		if found {
			idx.entryPoint = replacement
			idx.topLayer = maxLevel
		} else {
			idx.hasEntry = false
			idx.entryPoint = 0
			idx.topLayer = -1
		}
	}

	return nil
}
