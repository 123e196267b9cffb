package encoding

import "fmt"

const maxQuotedInput = 24

// DecodeError reports a string that does not decode under the encoding it was
// declared with.
type DecodeError struct {
	Input    string
	Encoding Encoding
	Err      error
}

func (e *DecodeError) Error() string {
	input := e.Input
	if len(input) > maxQuotedInput {
		input = input[:maxQuotedInput] + "..."
	}
	return fmt.Sprintf("cannot decode %q as %s: %v", input, e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
