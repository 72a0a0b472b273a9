package codec

import (
	"fmt"
	"strings"
)

// LengthError reports a fixed-size record that arrived with the wrong byte count.
type LengthError struct {
	Record   string
	Expected int
	Actual   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s: expected %d bytes, got %d", e.Record, e.Expected, e.Actual)
}

// ParseError reports a byte that did not match an expected enumerated value.
type ParseError struct {
	Field    string
	Expected []byte
	Position int
	Actual   byte
}

func (e *ParseError) Error() string {
	want := make([]string, 0, len(e.Expected))
	for _, b := range e.Expected {
		want = append(want, fmt.Sprintf("%#02x", b))
	}
	return fmt.Sprintf("%s: unexpected byte %#02x at position %d (expected one of [%s])",
		e.Field, e.Actual, e.Position, strings.Join(want, " "))
}

// checkLength returns a LengthError unless len(b) == n.
func checkLength(record string, b []byte, n int) error {
	if len(b) != n {
		return &LengthError{Record: record, Expected: n, Actual: len(b)}
	}
	return nil
}

// byteRange lists every value in [lo, hi] for ParseError diagnostics.
func byteRange(lo, hi byte) []byte {
	out := make([]byte, 0, int(hi-lo)+1)
	for v := int(lo); v <= int(hi); v++ {
		out = append(out, byte(v))
	}
	return out
}
