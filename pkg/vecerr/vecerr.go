// Package vecerr defines the error kinds shared by every vecann package.
//
// Errors carry a Kind so callers can branch on behavior (errors.Is against
// the sentinel, or errors.As against *Error for the Kind and Op) instead of
// matching on message text. The kinds mirror the taxonomy in spec.md §7:
// validation and capacity and conflict and missing errors are never logged
// by the callee; corruption is always logged by the callee before it is
// returned.
package vecerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy purposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindCapacity
	KindConflict
	KindMissing
	KindCancelled
	KindCorruption
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindConflict:
		return "conflict"
	case KindMissing:
		return "missing"
	case KindCancelled:
		return "cancelled"
	case KindCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

// Sentinel errors. Use errors.Is(err, vecerr.ErrDimensionMismatch) etc.
var (
	ErrDimensionMismatch   = errors.New("dimension mismatch")
	ErrInvalidVector       = errors.New("invalid vector: contains NaN or infinite value")
	ErrBadHeader           = errors.New("malformed vector header")
	ErrBadConfig           = errors.New("invalid configuration")
	ErrMemoryBudgetExceeded = errors.New("memory budget exceeded")
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrIndexAlreadyExists  = errors.New("index already exists")
	ErrNoSuchIndex         = errors.New("no such index")
	ErrNoSuchColumn        = errors.New("no such column")
	ErrCancelled           = errors.New("operation cancelled")
	ErrIndexCorrupt        = errors.New("index corrupt")
	ErrSnapshotCorrupt     = errors.New("snapshot corrupt")
)

var kindOf = map[error]Kind{
	ErrDimensionMismatch:    KindValidation,
	ErrInvalidVector:        KindValidation,
	ErrBadHeader:            KindValidation,
	ErrBadConfig:            KindValidation,
	ErrMemoryBudgetExceeded: KindCapacity,
	ErrDuplicateIdentifier:  KindConflict,
	ErrIndexAlreadyExists:   KindConflict,
	ErrNoSuchIndex:          KindMissing,
	ErrNoSuchColumn:         KindMissing,
	ErrCancelled:            KindCancelled,
	ErrIndexCorrupt:         KindCorruption,
	ErrSnapshotCorrupt:      KindCorruption,
}

// Error wraps a sentinel with the operation and free-form context that
// produced it, while remaining matchable via errors.Is/errors.As.
type Error struct {
	Op   string // e.g. "hnsw.Insert", "codec.Decode"
	Kind Kind
	Err  error
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap builds an *Error around one of the sentinels above, recording the
// operation name and an optional detail message.
func Wrap(op string, sentinel error, detail string) *Error {
	return &Error{Op: op, Kind: kindOf[sentinel], Err: sentinel, msg: detail}
}

// Wrapf is Wrap with a formatted detail message.
func Wrapf(op string, sentinel error, format string, args ...interface{}) *Error {
	return Wrap(op, sentinel, fmt.Sprintf(format, args...))
}

// KindOf reports the propagation Kind of err, walking Unwrap chains and
// falling back to KindUnknown for errors this package does not recognize.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for sentinel, kind := range kindOf {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindUnknown
}

// ShouldLog reports whether the propagation policy in spec.md §7 wants this
// error logged by the component that produced it. Only corruption is logged
// at the source; validation/capacity/conflict/missing/cancelled errors are
// surfaced silently and it is the caller's decision whether to log them.
func ShouldLog(err error) bool {
	return KindOf(err) == KindCorruption
}
