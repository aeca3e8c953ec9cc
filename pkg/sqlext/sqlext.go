// Package sqlext is the function/type-extension provider of spec.md §6.1,
// exposed to a host SQL engine as the capability-record pattern described
// in spec.md §9: `{ names() → set, invoke(name, args) → value, accept_type
// (decl) → bound-type }`. The host's planner holds onto these records and
// calls Invoke only after resolving a function name at plan time — this
// package never reaches into the host's own AST or catalog.
package sqlext

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/annexsearch/vecann/pkg/codec"
	"github.com/annexsearch/vecann/pkg/kernel"
	"github.com/annexsearch/vecann/pkg/vecerr"
)

// ValueKind tags the tiny dynamic-typed argument union of spec.md §9:
// `{ f32_vec(bytes, D), bytes, text, i64, f64, null }`.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindF32Vec
	KindBytes
	KindText
	KindI64
	KindF64
)

// Value is one dynamically typed argument or return value crossing the
// host/provider boundary.
type Value struct {
	Kind ValueKind
	Vec  []float32
	B    []byte
	Text string
	I64  int64
	F64  float64
}

// F32Vec wraps a float32 vector as a Value.
func F32Vec(v []float32) Value { return Value{Kind: KindF32Vec, Vec: v} }

// Bytes wraps a raw byte payload (e.g. a bit-packed Hamming operand).
func Bytes(b []byte) Value { return Value{Kind: KindBytes, B: b} }

// Text wraps a string.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Int64 wraps an integer.
func Int64(n int64) Value { return Value{Kind: KindI64, I64: n} }

// Float64 wraps a float, used for f32 results widened to the union's f64 slot.
func Float64(f float64) Value { return Value{Kind: KindF64, F64: f} }

func (v Value) vector(op string) ([]float32, error) {
	if v.Kind != KindF32Vec {
		return nil, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected a vector argument, got kind %d", v.Kind)
	}
	return v.Vec, nil
}

func (v Value) bytes(op string) ([]byte, error) {
	if v.Kind != KindBytes {
		return nil, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected a bytes argument, got kind %d", v.Kind)
	}
	return v.B, nil
}

func (v Value) text(op string) (string, error) {
	if v.Kind != KindText {
		return "", vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected a text argument, got kind %d", v.Kind)
	}
	return v.Text, nil
}

// Functions is the capability record for spec.md §6.1's function surface:
// distance_cosine/l2/dot/hamming and the vector_* helpers.
type Functions struct{}

// Names reports every function name this provider can invoke.
func (Functions) Names() []string {
	return []string{
		"distance_cosine",
		"distance_l2",
		"distance_dot",
		"distance_hamming",
		"vector_from_json",
		"vector_to_json",
		"vector_normalize",
		"vector_dimensions",
	}
}

// Invoke dispatches name against args, pattern-matching on the value union
// the way spec.md §9 describes ("provider functions pattern-match on the
// union and coerce accordingly").
func (f Functions) Invoke(name string, args []Value) (Value, error) {
	op := "sqlext." + name
	switch name {
	case "distance_cosine":
		return f.distance2(op, args, kernel.CosineDistance)
	case "distance_l2":
		return f.distance2(op, args, kernel.L2Distance)
	case "distance_dot":
		return f.distance2(op, args, kernel.DotDistance)
	case "distance_hamming":
		return f.distanceHamming(op, args)
	case "vector_from_json":
		return f.vectorFromJSON(op, args)
	case "vector_to_json":
		return f.vectorToJSON(op, args)
	case "vector_normalize":
		return f.vectorNormalize(op, args)
	case "vector_dimensions":
		return f.vectorDimensions(op, args)
	default:
		return Value{}, vecerr.Wrapf(op, vecerr.ErrNoSuchColumn, "unknown function %q", name)
	}
}

func (f Functions) distance2(op string, args []Value, fn kernel.Func) (Value, error) {
	if len(args) != 2 {
		return Value{}, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected 2 arguments, got %d", len(args))
	}
	a, err := args[0].vector(op)
	if err != nil {
		return Value{}, err
	}
	b, err := args[1].vector(op)
	if err != nil {
		return Value{}, err
	}
	if len(a) != len(b) {
		return Value{}, vecerr.Wrap(op, vecerr.ErrDimensionMismatch, "")
	}
	return Float64(float64(fn(a, b))), nil
}

func (f Functions) distanceHamming(op string, args []Value) (Value, error) {
	if len(args) != 2 {
		return Value{}, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected 2 arguments, got %d", len(args))
	}
	a, err := args[0].bytes(op)
	if err != nil {
		return Value{}, err
	}
	b, err := args[1].bytes(op)
	if err != nil {
		return Value{}, err
	}
	if len(a) != len(b) {
		return Value{}, vecerr.Wrap(op, vecerr.ErrDimensionMismatch, "")
	}
	return Int64(int64(kernel.HammingBits(a, b))), nil
}

func (f Functions) vectorFromJSON(op string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected 1 argument, got %d", len(args))
	}
	text, err := args[0].text(op)
	if err != nil {
		return Value{}, err
	}
	v, err := ParseVectorJSON(text)
	if err != nil {
		return Value{}, vecerr.Wrap(op, vecerr.ErrInvalidVector, err.Error())
	}
	return F32Vec(v), nil
}

func (f Functions) vectorToJSON(op string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected 1 argument, got %d", len(args))
	}
	v, err := args[0].vector(op)
	if err != nil {
		return Value{}, err
	}
	text, err := FormatVectorJSON(v)
	if err != nil {
		return Value{}, vecerr.Wrap(op, vecerr.ErrInvalidVector, err.Error())
	}
	return Text(text), nil
}

func (f Functions) vectorNormalize(op string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected 1 argument, got %d", len(args))
	}
	v, err := args[0].vector(op)
	if err != nil {
		return Value{}, err
	}
	return F32Vec(Normalize(v)), nil
}

func (f Functions) vectorDimensions(op string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Value{}, vecerr.Wrapf(op, vecerr.ErrBadConfig, "expected 1 argument, got %d", len(args))
	}
	v, err := args[0].vector(op)
	if err != nil {
		return Value{}, err
	}
	return Int64(int64(len(v))), nil
}

// ParseVectorJSON accepts only `[num, num, …]`, per spec.md §9's "JSON
// parsing accepts only [num, num, …]".
func ParseVectorJSON(text string) ([]float32, error) {
	var raw []float64
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("vector_from_json: %w", err)
	}
	v := make([]float32, len(raw))
	for i, f := range raw {
		v[i] = float32(f)
	}
	return v, nil
}

// FormatVectorJSON renders v as a JSON array of numbers.
func FormatVectorJSON(v []float32) (string, error) {
	raw := make([]float64, len(v))
	for i, f := range v {
		raw[i] = float64(f)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Normalize L2-normalizes v; a zero vector is returned unchanged per
// spec.md §6.1.
func Normalize(v []float32) []float32 {
	var sumSq float64
	for _, f := range v {
		sumSq += float64(f) * float64(f)
	}
	if sumSq == 0 {
		out := make([]float32, len(v))
		copy(out, v)
		return out
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = f * norm
	}
	return out
}

// VectorType is the type-extension provider for spec.md §6.1's VECTOR(D)
// column type: it binds a host-supplied value (float array, encoded
// bytes, or JSON text) to the canonical codec byte form, rejecting
// dimension mismatch or invalid JSON at bind time.
type VectorType struct {
	Dimension int
}

// Name renders the SQL type declaration, e.g. "VECTOR(768)".
func (t VectorType) Name() string {
	return fmt.Sprintf("VECTOR(%d)", t.Dimension)
}

// Bind validates and encodes v into the on-disk column payload format.
func (t VectorType) Bind(v Value) ([]byte, error) {
	switch v.Kind {
	case KindF32Vec:
		if len(v.Vec) != t.Dimension {
			return nil, vecerr.Wrap("sqlext.VectorType.Bind", vecerr.ErrDimensionMismatch, "")
		}
		return codec.EncodeFloat32(v.Vec, t.Dimension, false)
	case KindBytes:
		if _, err := codec.PeekHeader(v.B, t.Dimension); err != nil {
			return nil, err
		}
		return v.B, nil
	case KindText:
		parsed, err := ParseVectorJSON(v.Text)
		if err != nil {
			return nil, vecerr.Wrap("sqlext.VectorType.Bind", vecerr.ErrInvalidVector, err.Error())
		}
		if len(parsed) != t.Dimension {
			return nil, vecerr.Wrap("sqlext.VectorType.Bind", vecerr.ErrDimensionMismatch, "")
		}
		return codec.EncodeFloat32(parsed, t.Dimension, false)
	default:
		return nil, vecerr.Wrap("sqlext.VectorType.Bind", vecerr.ErrBadConfig, "unsupported value kind for VECTOR column")
	}
}

// Types is the capability record for spec.md §9's `accept_type(decl)`.
type Types struct{}

// AcceptType parses a declaration like "VECTOR(768)" and returns the bound
// type if recognized.
func (Types) AcceptType(decl string) (VectorType, bool) {
	decl = strings.TrimSpace(decl)
	upper := strings.ToUpper(decl)
	if !strings.HasPrefix(upper, "VECTOR(") || !strings.HasSuffix(decl, ")") {
		return VectorType{}, false
	}
	inner := decl[len("VECTOR(") : len(decl)-1]
	dim, err := strconv.Atoi(strings.TrimSpace(inner))
	if err != nil || dim <= 0 {
		return VectorType{}, false
	}
	return VectorType{Dimension: dim}, true
}
