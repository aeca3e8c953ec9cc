package quantize

import (
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// Binary quantizes each dimension to a single sign bit: 1 iff the sample is
// strictly positive. It carries no calibration beyond the dimension count,
// per spec.md §4.3 ("no calibration beyond the sign convention").
type Binary struct {
	dimension int
}

// NewBinary builds a Binary quantizer for the given dimension.
func NewBinary(dimension int) *Binary {
	return &Binary{dimension: dimension}
}

// Dimension reports the quantizer's configured dimension.
func (q *Binary) Dimension() int { return q.dimension }

// Encode packs v into ⌈D/8⌉ bytes, bit d set iff v[d] > 0.
func (q *Binary) Encode(v []float32) ([]byte, error) {
	if len(v) != q.dimension {
		return nil, vecerr.Wrap("quantize.Binary.Encode", vecerr.ErrDimensionMismatch, "")
	}
	out := make([]byte, (q.dimension+7)/8)
	for i, x := range v {
		if x > 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out, nil
}

// Distance computes the Hamming distance between two packed-bit codes.
// Binary quantization supports only the Hamming metric (spec.md §4.3);
// rerank against cosine/L2 is deliberately out of scope.
func (q *Binary) Distance(a, b []byte) uint32 {
	return kernel.HammingBits(a, b)
}
