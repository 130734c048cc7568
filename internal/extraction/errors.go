package extraction

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials is returned when no OpenAI API key is configured.
	ErrMissingCredentials = errors.New("missing OpenAI credentials: set OPENAI_API_KEY")

	// ErrUpstreamFailure is returned when the extraction service call fails
	// (network error, non-2xx response, service-side rejection).
	ErrUpstreamFailure = errors.New("extraction service call failed")

	// ErrTimeout is returned when the caller-supplied deadline fires before
	// the extraction call completes. It is a transient failure and is not
	// counted against quota unless the call in fact completed server-side.
	ErrTimeout = errors.New("extraction call timed out")

	// ErrMalformedResponse is returned when the response could not be parsed
	// even after the bounded repair pass. A schema-valid response with zero
	// items is not this error.
	ErrMalformedResponse = errors.New("extraction response is not valid JSON")

	// ErrEmptyDocument is returned when no document bytes were supplied.
	ErrEmptyDocument = errors.New("document is empty")
)

// Error wraps extraction failures with the failing operation and context.
type Error struct {
	// Op is the operation that failed (e.g. "ExtractImage", "ParseText").
	Op string

	// Err is the underlying sentinel or transport error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extraction: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extraction: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}
