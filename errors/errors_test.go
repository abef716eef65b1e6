package errors

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := AtLine(MalformedInput, "parse node pair", 7, errors.New("missing ':'"))

	if !errors.Is(err, ErrMalformedInput) {
		t.Error("expected match on kind sentinel")
	}
	for _, other := range []error{ErrIO, ErrInvalidParameters, ErrUnsupportedDepth} {
		if errors.Is(err, other) {
			t.Errorf("unexpected match on %v", other)
		}
	}

	// A target with an Op must agree on it.
	if !errors.Is(err, &Error{Kind: MalformedInput, Op: "parse node pair"}) {
		t.Error("expected match on kind and op")
	}
	if errors.Is(err, &Error{Kind: MalformedInput, Op: "parse orbit pair"}) {
		t.Error("unexpected match on different op")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	inner := New(IOError, "read line", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("ingest: %w", inner)

	if !errors.Is(wrapped, ErrIO) {
		t.Error("kind lost through fmt.Errorf wrapping")
	}
	if !errors.Is(wrapped, io.ErrUnexpectedEOF) {
		t.Error("cause lost through wrapping")
	}
	joined := errors.Join(errors.New("close failed"), wrapped)
	if k, ok := KindOf(joined); !ok || k != IOError {
		t.Errorf("KindOf(joined) = %v, %v", k, ok)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf reported a kind for a plain error")
	}
	if _, ok := KindOf(nil); ok {
		t.Error("KindOf reported a kind for nil")
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{ErrUnsupportedDepth, "orbitsketch: unsupported depth"},
		{Newf(InvalidParameters, "new sketch", "error rate %g out of range", 2.0),
			"orbitsketch: invalid parameters: new sketch: error rate 2 out of range"},
		{AtLine(MalformedInput, "parse connectivity", 3, errors.New(`connectivity "x" must be 0 or 1`)),
			`orbitsketch: malformed input: parse connectivity (line 3): connectivity "x" must be 0 or 1`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
	if !strings.Contains(Kind(42).String(), "42") {
		t.Errorf("unknown kind string = %q", Kind(42).String())
	}
}
