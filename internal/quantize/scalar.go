// Package quantize implements the Scalar8 and Binary vector quantizers of
// spec.md §4.3. Unlike the teacher's internal/quantization package, which
// calibrates a single global (min, max) across an entire training sample,
// Scalar8 here calibrates one (min, max) pair *per dimension* — the spec's
// asymmetric-distance contract only holds when dequantization tracks each
// dimension's own scale.
package quantize

import (
	"encoding/binary"
	"math"

	"github.com/annexsearch/vecann/pkg/vecerr"
)

const scalar8Levels = 255

// MinTrainingSamples is the sample size spec.md §4.3 recommends calibrating
// Scalar8 from: "a sample of at least 1024 vectors (or all, if fewer)".
// Callers that buffer inserts until a training batch is ready should use
// this as their trigger threshold.
const MinTrainingSamples = 1024

// Scalar8 holds the sealed per-dimension calibration of a trained
// quantizer. Calibration is immutable after Train; serialize/deserialize
// are used by the HNSW snapshot writer.
type Scalar8 struct {
	min []float32
	max []float32
}

// TrainScalar8 calibrates per-dimension (min, max) from a sample of
// vectors, all of the same dimension. spec.md recommends at least 1024
// samples (or all, if fewer); this function does not enforce a minimum —
// that policy decision belongs to the caller assembling the sample.
func TrainScalar8(samples [][]float32) (*Scalar8, error) {
	if len(samples) == 0 {
		return nil, vecerr.Wrap("quantize.TrainScalar8", vecerr.ErrBadConfig, "no training samples")
	}
	d := len(samples[0])
	if d == 0 {
		return nil, vecerr.Wrap("quantize.TrainScalar8", vecerr.ErrDimensionMismatch, "zero-dimension sample")
	}
	min := make([]float32, d)
	max := make([]float32, d)
	copy(min, samples[0])
	copy(max, samples[0])

	for _, s := range samples[1:] {
		if len(s) != d {
			return nil, vecerr.Wrap("quantize.TrainScalar8", vecerr.ErrDimensionMismatch, "inconsistent sample dimension")
		}
		for i, x := range s {
			if x < min[i] {
				min[i] = x
			}
			if x > max[i] {
				max[i] = x
			}
		}
	}
	// A dimension with zero spread would divide by zero at encode time;
	// widen it by an epsilon so every sample quantizes to the same code.
	for i := range min {
		if max[i] == min[i] {
			max[i] = min[i] + 1e-6
		}
	}
	return &Scalar8{min: min, max: max}, nil
}

// Dimension reports the calibration's trained dimension.
func (q *Scalar8) Dimension() int { return len(q.min) }

// Encode quantizes v into D bytes using q's calibration: round((x-min)/(max-min)*255), clamped to [0,255].
func (q *Scalar8) Encode(v []float32) ([]byte, error) {
	if len(v) != len(q.min) {
		return nil, vecerr.Wrap("quantize.Scalar8.Encode", vecerr.ErrDimensionMismatch, "")
	}
	out := make([]byte, len(v))
	for i, x := range v {
		scale := (x - q.min[i]) / (q.max[i] - q.min[i])
		code := math.Round(float64(scale) * scalar8Levels)
		if code < 0 {
			code = 0
		} else if code > scalar8Levels {
			code = scalar8Levels
		}
		out[i] = byte(code)
	}
	return out, nil
}

// Decode dequantizes code into an approximate float32 vector.
func (q *Scalar8) Decode(code []byte) ([]float32, error) {
	if len(code) != len(q.min) {
		return nil, vecerr.Wrap("quantize.Scalar8.Decode", vecerr.ErrDimensionMismatch, "")
	}
	out := make([]float32, len(code))
	for i, c := range code {
		span := q.max[i] - q.min[i]
		out[i] = q.min[i] + float32(c)*span/scalar8Levels
	}
	return out, nil
}

// decodeInto dequantizes into a caller-provided buffer to avoid an
// allocation per compared candidate in hot search loops.
func (q *Scalar8) decodeInto(code []byte, dst []float32) {
	for i, c := range code {
		span := q.max[i] - q.min[i]
		dst[i] = q.min[i] + float32(c)*span/scalar8Levels
	}
}

// AsymmetricDistance computes a distance between a full-precision query and
// a quantized database vector by dequantizing the database side on the fly,
// preserving the mathematical form of the given float-float kernel fn
// (cosine/l2/dot from pkg/kernel).
func (q *Scalar8) AsymmetricDistance(query []float32, code []byte, fn func(a, b []float32) float32, scratch []float32) float32 {
	q.decodeInto(code, scratch)
	return fn(query, scratch)
}

// CalibrationBytes serializes (min[d], max[d]) pairs as 2D little-endian
// f32 words, per spec.md §4.3's calibration-serialization contract.
func (q *Scalar8) CalibrationBytes() []byte {
	buf := make([]byte, len(q.min)*8)
	for i := range q.min {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(q.min[i]))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(q.max[i]))
	}
	return buf
}

// LoadScalar8Calibration reconstructs a Scalar8 from the bytes produced by
// CalibrationBytes.
func LoadScalar8Calibration(buf []byte) (*Scalar8, error) {
	if len(buf)%8 != 0 {
		return nil, vecerr.Wrap("quantize.LoadScalar8Calibration", vecerr.ErrBadHeader, "calibration length not a multiple of 8")
	}
	d := len(buf) / 8
	min := make([]float32, d)
	max := make([]float32, d)
	for i := 0; i < d; i++ {
		min[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8:]))
		max[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*8+4:]))
	}
	return &Scalar8{min: min, max: max}, nil
}
