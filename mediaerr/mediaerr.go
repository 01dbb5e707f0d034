// Package mediaerr defines the error taxonomy shared by every demuxer and
// codec in the pipeline: a small set of sentinel kinds that callers can
// switch on with errors.Is, plus a wrapping Error type that carries a
// free-form detail string and the underlying cause.
package mediaerr

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Io means the underlying byte source failed.
	Io Kind = iota
	// NeedMore means a bit/byte reader ran out of buffered input; the
	// caller should feed more bytes and retry rather than treat this as
	// a format violation.
	NeedMore
	// Format means the input violates the container or codec's structure
	// (bad magic, an out-of-range size field, a reserved bit pattern).
	Format
	// Unsupported means the feature or codec is recognized but not
	// implemented; there is no fallback.
	Unsupported
	// CrcMismatch means a frame failed its integrity check; recovery is
	// policy-dependent (skip, accept with warning, or abort).
	CrcMismatch
	// Truncated means the input ended in the middle of a structure.
	Truncated
	// Overflow means an arithmetic or length-field computation would
	// overflow; the input is rejected rather than silently wrapped.
	Overflow
	// Memory means a buffer pool or accountant denied an allocation
	// request.
	Memory
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case NeedMore:
		return "need_more"
	case Format:
		return "format"
	case Unsupported:
		return "unsupported"
	case CrcMismatch:
		return "crc_mismatch"
	case Truncated:
		return "truncated"
	case Overflow:
		return "overflow"
	case Memory:
		return "memory"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by demuxers and codecs. Wrap it
// with fmt.Errorf("...: %w", err) at higher layers; Unwrap exposes both the
// underlying cause and the sentinel for the Kind so errors.Is works either
// way.
type Error struct {
	Kind   Kind
	Op     string // component/operation, e.g. "ogg.parseContainer"
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinels[e.Kind]
}

// Is reports whether target is the sentinel for this error's Kind, so that
// errors.Is(err, mediaerr.Format) works without unwrapping to Cause.
func (e *Error) Is(target error) bool {
	return target == sentinels[e.Kind]
}

var sentinels = map[Kind]error{
	Io:          errors.New("io error"),
	NeedMore:    errors.New("need more input"),
	Format:      errors.New("format error"),
	Unsupported: errors.New("unsupported"),
	CrcMismatch: errors.New("crc mismatch"),
	Truncated:   errors.New("truncated"),
	Overflow:    errors.New("overflow"),
	Memory:      errors.New("memory"),
}

// New builds an Error for op with a free-form detail and no wrapped cause.
func New(kind Kind, op, detail string) error {
	return &Error{Kind: kind, Op: op, Detail: detail}
}

// Wrap builds an Error for op around an existing cause.
func Wrap(kind Kind, op string, cause error) error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// Wrapf builds an Error for op around an existing cause with a formatted detail.
func Wrapf(kind Kind, op string, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is ultimately of the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, sentinels[kind])
}
