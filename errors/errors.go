// Package errors defines the error type shared by the orbitsketch packages.
//
// Every failure carries one of four kinds. Both the top-level orbitsketch
// package and the hashfamily package build errors from here, so errors.Is
// checks against the kind sentinels work across package boundaries.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Callers branch on Kind, never on message text.
type Kind uint8

const (
	// IOError is a read or write failure on the underlying stream or scratch storage.
	IOError Kind = iota + 1
	// MalformedInput is a line that violates the record grammar.
	MalformedInput
	// InvalidParameters is an out-of-range error rate or confidence, or a
	// degenerate sketch geometry.
	InvalidParameters
	// UnsupportedDepth means more hash rows were requested than the family implements.
	UnsupportedDepth
)

func (k Kind) String() string {
	switch k {
	case IOError:
		return "io error"
	case MalformedInput:
		return "malformed input"
	case InvalidParameters:
		return "invalid parameters"
	case UnsupportedDepth:
		return "unsupported depth"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Kind sentinels. errors.Is(err, ErrMalformedInput) is true for any *Error
// of that kind, whatever its detail.
var (
	ErrIO                = &Error{Kind: IOError}
	ErrMalformedInput    = &Error{Kind: MalformedInput}
	ErrInvalidParameters = &Error{Kind: InvalidParameters}
	ErrUnsupportedDepth  = &Error{Kind: UnsupportedDepth}
)

// Error is the tagged error returned by orbitsketch.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "parse node pair".
	Op string
	// Line is the 1-based input line for MalformedInput and read errors, 0 otherwise.
	Line int
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := "orbitsketch: " + e.Kind.String()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" (line %d)", e.Line)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a kind sentinel (or any *Error) of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns an *Error of the given kind whose cause is a formatted message.
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// AtLine returns an *Error of the given kind tied to an input line.
func AtLine(kind Kind, op string, line int, err error) *Error {
	return &Error{Kind: kind, Op: op, Line: line, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
