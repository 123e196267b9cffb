package verify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingVerifier means a routed chain family has no verifier installed.
// It is a wiring defect, not a property of the request.
var ErrMissingVerifier = errors.New("no verifier registered for chain family")

// UnsupportedCombinationError is returned for (family, operation) pairs that
// have no route, before any cryptography runs.
type UnsupportedCombinationError struct {
	ChainFamily   string
	OperationType string
	Err           error
}

func (e *UnsupportedCombinationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported combination: %v", e.Err)
	}
	return fmt.Sprintf("unsupported combination: %s signing is not available for %s", e.OperationType, e.ChainFamily)
}

func (e *UnsupportedCombinationError) Unwrap() error {
	return e.Err
}

// lengthError is a signature that decodes but has the wrong size for
// its family.
type lengthError struct {
	want []int
	got  int
}

func (e *lengthError) Error() string {
	sizes := make([]string, len(e.want))
	for i, n := range e.want {
		sizes[i] = strconv.Itoa(n)
	}
	expected := sizes[len(sizes)-1]
	if len(sizes) > 1 {
		expected = strings.Join(sizes[:len(sizes)-1], ", ") + " or " + expected
	}
	return fmt.Sprintf("invalid signature length: expected %s bytes, got %d", expected, e.got)
}
