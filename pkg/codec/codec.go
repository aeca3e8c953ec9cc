// Package codec implements the fixed 12-byte vector header and payload
// encoding used both for column values and for HNSW graph snapshots
// (spec.md §4.2). It is deliberately agnostic to what writes the resulting
// bytes to disk — the storage provider's encryption and page layout sit
// entirely outside this package.
package codec

import (
	"encoding/binary"
	"math"

	"github.com/annexsearch/vecann/pkg/vecerr"
)

const (
	headerSize = 12
	version1   = 1
)

var magic = [4]byte{'V', 'E', 'C', 0}

// Quantization identifies the payload form a header declares.
type Quantization uint8

const (
	None Quantization = iota
	Scalar8
	Binary
)

const (
	flagQuantMask     = 0x03
	flagPreNormalized = 0x04
	flagReservedMask  = 0xF8
)

// Header is the parsed form of the 12-byte on-disk header.
type Header struct {
	Version        uint8
	Quantization   Quantization
	PreNormalized  bool
	Dimension      uint16
}

// EncodeFloat32 encodes an unquantized (None) vector: header followed by
// D little-endian float32 samples. It rejects NaN/Inf values and
// dimensions beyond maxDim.
func EncodeFloat32(v []float32, maxDim int, preNormalized bool) ([]byte, error) {
	if err := validateDimension(len(v), maxDim); err != nil {
		return nil, err
	}
	if err := validateFinite(v); err != nil {
		return nil, err
	}

	buf := make([]byte, headerSize+len(v)*4)
	writeHeader(buf, Header{
		Version:       version1,
		Quantization:  None,
		PreNormalized: preNormalized,
		Dimension:     uint16(len(v)),
	})
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[headerSize+i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// DecodeFloat32 validates the header against columnDim and returns a
// decoded copy of the float payload. Only None-quantized payloads are
// accepted here; Scalar8/Binary payloads must go through internal/quantize.
func DecodeFloat32(buf []byte, columnDim int) ([]float32, error) {
	h, err := decodeHeader(buf, columnDim)
	if err != nil {
		return nil, err
	}
	if h.Quantization != None {
		return nil, vecerr.Wrap("codec.DecodeFloat32", vecerr.ErrBadHeader, "payload is quantized, not None")
	}
	payload := buf[headerSize:]
	want := int(h.Dimension) * 4
	if len(payload) != want {
		return nil, vecerr.Wrapf("codec.DecodeFloat32", vecerr.ErrBadHeader, "payload length %d, want %d", len(payload), want)
	}
	out := make([]float32, h.Dimension)
	for i := range out {
		bits := binary.LittleEndian.Uint32(payload[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}

// ViewFloat32 returns a zero-copy view of a None payload's floats when the
// underlying slice is 4-byte aligned on a little-endian host, which is the
// only architecture family this package targets. ok is false when no view
// is returned: for a payload that is not None, v is nil; for a misaligned
// None payload, v is a decoded copy, as from DecodeFloat32.
func ViewFloat32(buf []byte, columnDim int) (v []float32, ok bool, err error) {
	h, err := decodeHeader(buf, columnDim)
	if err != nil {
		return nil, false, err
	}
	if h.Quantization != None {
		return nil, false, nil
	}
	payload := buf[headerSize:]
	if len(payload) != int(h.Dimension)*4 {
		return nil, false, vecerr.Wrap("codec.ViewFloat32", vecerr.ErrBadHeader, "payload length mismatch")
	}
	if uintptrAlign4(payload) {
		return unsafeFloat32View(payload), true, nil
	}
	out, err := DecodeFloat32(buf, columnDim)
	return out, false, err
}

// EncodeQuantized wraps a Scalar8 or Binary code with the same 12-byte
// header used for None payloads, so a quantized "vector payload per codec"
// (spec.md §4.7) is self-describing the same way a full-precision one is.
// dimension is the vector's original float dimension, not len(code).
func EncodeQuantized(code []byte, quantization Quantization, dimension int) ([]byte, error) {
	if quantization == None {
		return nil, vecerr.Wrap("codec.EncodeQuantized", vecerr.ErrBadConfig, "use EncodeFloat32 for None")
	}
	if err := validateDimension(dimension, 0); err != nil {
		return nil, err
	}
	want := QuantizedPayloadLen(quantization, dimension)
	if len(code) != want {
		return nil, vecerr.Wrapf("codec.EncodeQuantized", vecerr.ErrBadHeader, "code length %d, want %d", len(code), want)
	}

	buf := make([]byte, headerSize+len(code))
	writeHeader(buf, Header{
		Version:      version1,
		Quantization: quantization,
		Dimension:    uint16(dimension),
	})
	copy(buf[headerSize:], code)
	return buf, nil
}

// DecodeQuantizedPayload validates a quantized payload's header against
// columnDim and the expected quantization kind, and returns the raw code
// bytes (still in their quantized form — the caller decodes them via
// internal/quantize).
func DecodeQuantizedPayload(buf []byte, columnDim int, quantization Quantization) ([]byte, error) {
	h, err := decodeHeader(buf, columnDim)
	if err != nil {
		return nil, err
	}
	if h.Quantization != quantization {
		return nil, vecerr.Wrapf("codec.DecodeQuantizedPayload", vecerr.ErrBadHeader, "payload quantization %d, want %d", h.Quantization, quantization)
	}
	payload := buf[headerSize:]
	want := QuantizedPayloadLen(quantization, int(h.Dimension))
	if len(payload) != want {
		return nil, vecerr.Wrapf("codec.DecodeQuantizedPayload", vecerr.ErrBadHeader, "payload length %d, want %d", len(payload), want)
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}

// QuantizedPayloadLen reports how many payload bytes (not counting the
// 12-byte header) a quantized vector of the given dimension occupies:
// dimension bytes for Scalar8, ⌈dimension/8⌉ for Binary. Exported so
// callers that need to size a read buffer before decoding (the HNSW
// snapshot reader) don't have to duplicate the formula.
func QuantizedPayloadLen(quantization Quantization, dimension int) int {
	if quantization == Binary {
		return PackedBitLen(dimension)
	}
	return dimension
}

// PeekHeader decodes and validates just the header, useful for routing to
// the right quantizer decode path without touching the payload.
func PeekHeader(buf []byte, columnDim int) (Header, error) {
	return decodeHeader(buf, columnDim)
}

func writeHeader(buf []byte, h Header) {
	copy(buf[0:4], magic[:])
	buf[4] = h.Version
	var flags uint8
	flags |= uint8(h.Quantization) & flagQuantMask
	if h.PreNormalized {
		flags |= flagPreNormalized
	}
	buf[5] = flags
	binary.LittleEndian.PutUint16(buf[6:8], h.Dimension)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
}

func decodeHeader(buf []byte, columnDim int) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, vecerr.Wrap("codec.decodeHeader", vecerr.ErrBadHeader, "buffer shorter than header")
	}
	if buf[0] != magic[0] || buf[1] != magic[1] || buf[2] != magic[2] || buf[3] != magic[3] {
		return Header{}, vecerr.Wrap("codec.decodeHeader", vecerr.ErrBadHeader, "bad magic")
	}
	version := buf[4]
	if version != version1 {
		return Header{}, vecerr.Wrapf("codec.decodeHeader", vecerr.ErrBadHeader, "unknown version %d", version)
	}
	flags := buf[5]
	if flags&flagReservedMask != 0 {
		return Header{}, vecerr.Wrap("codec.decodeHeader", vecerr.ErrBadHeader, "reserved flag bits set")
	}
	reserved := binary.LittleEndian.Uint32(buf[8:12])
	if reserved != 0 {
		return Header{}, vecerr.Wrap("codec.decodeHeader", vecerr.ErrBadHeader, "reserved word nonzero")
	}
	dim := binary.LittleEndian.Uint16(buf[6:8])
	if columnDim > 0 && int(dim) != columnDim {
		return Header{}, vecerr.Wrapf("codec.decodeHeader", vecerr.ErrDimensionMismatch, "header dimension %d, column dimension %d", dim, columnDim)
	}
	return Header{
		Version:       version,
		Quantization:  Quantization(flags & flagQuantMask),
		PreNormalized: flags&flagPreNormalized != 0,
		Dimension:     dim,
	}, nil
}

func validateDimension(d, maxDim int) error {
	if d < 1 {
		return vecerr.Wrap("codec.validateDimension", vecerr.ErrDimensionMismatch, "dimension must be >= 1")
	}
	if maxDim > 0 && d > maxDim {
		return vecerr.Wrapf("codec.validateDimension", vecerr.ErrDimensionMismatch, "dimension %d exceeds configured limit %d", d, maxDim)
	}
	if d > math.MaxUint16 {
		return vecerr.Wrapf("codec.validateDimension", vecerr.ErrDimensionMismatch, "dimension %d exceeds header's u16 field", d)
	}
	return nil
}

func validateFinite(v []float32) error {
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return vecerr.Wrap("codec.validateFinite", vecerr.ErrInvalidVector, "NaN or infinite sample")
		}
	}
	return nil
}

// HeaderSize reports the fixed header length, exported for callers that
// need to size payload buffers (e.g. the snapshot writer).
func HeaderSize() int { return headerSize }

// PackedBitLen returns ⌈D/8⌉, the Binary payload length for dimension D.
func PackedBitLen(d int) int { return (d + 7) / 8 }
