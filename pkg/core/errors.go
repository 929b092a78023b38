package core

import (
	"fmt"
)

// Error represents a categorized core error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Component  string    `json:"component,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Component, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors per the core's failure taxonomy.
type ErrorType string

const (
	// ErrAnalysis covers auxiliary-model call errors and timeouts.
	// Handled by the circuit breaker; never surfaced to the caller.
	ErrAnalysis ErrorType = "analysis_error"
	// ErrTool covers lookup/store failures inside tool handlers.
	ErrTool ErrorType = "tool_error"
	// ErrParse covers malformed structured output from the analysis engine.
	ErrParse ErrorType = "parse_error"
	// ErrState covers state-machine misuse. These are advisory: the
	// offending operation is a no-op, not a failure.
	ErrState ErrorType = "state_error"
	// ErrStore covers persistence-layer failures outside tool handlers.
	ErrStore ErrorType = "store_error"
	// ErrTransport covers gateway/bridge connection failures.
	ErrTransport ErrorType = "transport_error"
)

// NewAnalysisError creates an analysis error.
func NewAnalysisError(component string, underlying error) *Error {
	return &Error{
		Type:       ErrAnalysis,
		Component:  component,
		Message:    underlying.Error(),
		Underlying: underlying,
	}
}

// NewToolError creates a tool error.
func NewToolError(tool string, underlying error) *Error {
	return &Error{
		Type:       ErrTool,
		Component:  tool,
		Message:    underlying.Error(),
		Underlying: underlying,
	}
}

// NewParseError creates a parse error for malformed analysis output.
func NewParseError(message string) *Error {
	return &Error{
		Type:    ErrParse,
		Message: message,
	}
}

// NewStateError creates a state-machine misuse error.
func NewStateError(component, message string) *Error {
	return &Error{
		Type:      ErrState,
		Component: component,
		Message:   message,
	}
}

// NewStoreError creates a persistence error.
func NewStoreError(op string, underlying error) *Error {
	return &Error{
		Type:       ErrStore,
		Component:  op,
		Message:    underlying.Error(),
		Underlying: underlying,
	}
}

// NewTransportError creates a gateway transport error.
func NewTransportError(message string) *Error {
	return &Error{
		Type:    ErrTransport,
		Message: message,
	}
}

// IsRetryable returns true if the operation that produced the error may
// succeed on retry.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrAnalysis, ErrStore, ErrTransport:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}
