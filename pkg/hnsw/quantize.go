package hnsw

import (
	"github.com/annexsearch/vecann/internal/quantize"
	"github.com/annexsearch/vecann/pkg/codec"
)

// applyQuantization encodes v into node's quantized code when the index is
// configured for Scalar8 or Binary (spec.md §4.3), clearing node.vector once
// a code is produced so quantized storage actually saves the memory it
// promises. The caller must hold idx.mu for writing and must call this
// before node is published into idx.nodes.
//
// Binary has no calibration step: the quantizer is built lazily from the
// first vector's dimension and every node is encoded immediately. Scalar8
// needs a trained calibration first: nodes inserted before
// quantize.MinTrainingSamples have accumulated keep their full-precision
// vector (code stays nil) until trainScalarLocked runs.
func (idx *Index) applyQuantization(node *Node, v []float32) {
	switch idx.quantization {
	case codec.Binary:
		if idx.binaryQuant == nil {
			idx.binaryQuant = quantize.NewBinary(len(v))
		}
		code, err := idx.binaryQuant.Encode(v)
		if err != nil {
			return
		}
		node.code = code
		node.vector = nil

	case codec.Scalar8:
		idx.trainBuffer = append(idx.trainBuffer, append([]float32(nil), v...))
		if idx.scalarQuant == nil && len(idx.trainBuffer) >= quantize.MinTrainingSamples {
			idx.trainScalarLocked()
		}
		if idx.scalarQuant != nil {
			code, err := idx.scalarQuant.Encode(v)
			if err == nil {
				node.code = code
				node.vector = nil
			}
		}
	}
}

// trainScalarLocked calibrates Scalar8 from the buffered training sample
// and retroactively re-encodes every already-stored node, freeing their
// full-precision vectors. idx.mu must be held for writing.
func (idx *Index) trainScalarLocked() {
	q, err := quantize.TrainScalar8(idx.trainBuffer)
	if err != nil {
		return
	}
	idx.scalarQuant = q
	idx.trainBuffer = nil
	for _, n := range idx.nodes {
		if n.vector == nil {
			continue
		}
		code, err := q.Encode(n.vector)
		if err != nil {
			continue
		}
		n.code = code
		n.vector = nil
	}
}

// installScalarCalibration installs a previously-serialized Scalar8
// calibration, used by snapshot restore to resume a quantized index without
// re-training from scratch.
func (idx *Index) installScalarCalibration(q *quantize.Scalar8) {
	idx.scalarQuant = q
	idx.trainBuffer = nil
}

// installBinaryQuantizer installs a Binary quantizer of the given
// dimension, used by snapshot restore.
func (idx *Index) installBinaryQuantizer(dimension int) {
	idx.binaryQuant = quantize.NewBinary(dimension)
}
