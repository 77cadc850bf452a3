package recommend

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by Generate when no model client is set.
var ErrNotConfigured = errors.New("AI service not configured")

// ParseError indicates the model returned text that is not valid JSON
// even after extraction.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parsing model response: %v", e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError indicates well-formed JSON with the wrong shape or
// missing fields.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid model response: " + e.Reason }

// TransportError wraps a failed call to the upstream model service.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("model call failed: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }
