package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the canonical category of an engine error. It is the
// value surfaced to polling clients when a task fails.
type ErrorKind string

const (
	// ErrorKindInvalidCategory indicates an unrecognized contract category.
	ErrorKindInvalidCategory ErrorKind = "invalid_category"

	// ErrorKindEmptyInput indicates blank or oversized contract text.
	ErrorKindEmptyInput ErrorKind = "empty_input"

	// ErrorKindNotFound indicates an unknown task identifier.
	ErrorKindNotFound ErrorKind = "not_found"

	// ErrorKindUpstreamUnavailable indicates a transient network or
	// timeout failure talking to the model service. Eligible for retry.
	ErrorKindUpstreamUnavailable ErrorKind = "upstream_unavailable"

	// ErrorKindUpstreamRejected indicates an explicit provider-side
	// rejection (rate limit, content policy, bad credentials). Not retried.
	ErrorKindUpstreamRejected ErrorKind = "upstream_rejected"

	// ErrorKindSchemaViolation indicates a stage exhausted its repair
	// budget without producing schema-conformant output.
	ErrorKindSchemaViolation ErrorKind = "schema_violation"

	// ErrorKindConflict indicates a request that cannot apply to the
	// task's current lifecycle state, such as cancelling a task that
	// already reached a terminal state.
	ErrorKindConflict ErrorKind = "conflict"

	// ErrorKindInternal indicates an unexpected engine failure.
	ErrorKindInternal ErrorKind = "internal"
)

// APIError is the canonical error carried through the pipeline and
// rendered at the HTTP surface.
type APIError struct {
	// Kind is the error category.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Stage names the pipeline stage the error originated from, if any.
	Stage Stage `json:"stage,omitempty"`

	// Violations lists the unmet schema constraints for schema_violation
	// errors.
	Violations []string `json:"violations,omitempty"`

	// RawOutput preserves the last raw model output for operator
	// diagnosis of schema_violation errors. Never rendered to clients.
	RawOutput string `json:"-"`

	// Err is the wrapped cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the error is transient and eligible for
// automatic retry with backoff.
func (e *APIError) Retryable() bool {
	return e.Kind == ErrorKindUpstreamUnavailable
}

// HTTPStatusCode maps the error kind to an HTTP status.
func (e *APIError) HTTPStatusCode() int {
	switch e.Kind {
	case ErrorKindInvalidCategory, ErrorKindEmptyInput:
		return http.StatusBadRequest
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindConflict:
		return http.StatusConflict
	case ErrorKindUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrorKindUpstreamRejected:
		return http.StatusBadGateway
	case ErrorKindSchemaViolation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrInvalidCategory builds an invalid_category error.
func ErrInvalidCategory(category string) *APIError {
	return &APIError{
		Kind:    ErrorKindInvalidCategory,
		Message: fmt.Sprintf("unsupported contract category %q", category),
	}
}

// ErrEmptyInput builds an empty_input error.
func ErrEmptyInput(message string) *APIError {
	return &APIError{Kind: ErrorKindEmptyInput, Message: message}
}

// ErrNotFound builds a not_found error for a task identifier.
func ErrNotFound(taskID string) *APIError {
	return &APIError{
		Kind:    ErrorKindNotFound,
		Message: fmt.Sprintf("task %s not found", taskID),
	}
}

// ErrConflict builds a conflict error for a request that does not
// apply to the task's current state.
func ErrConflict(message string) *APIError {
	return &APIError{Kind: ErrorKindConflict, Message: message}
}

// ErrUpstreamUnavailable builds a retryable upstream error.
func ErrUpstreamUnavailable(message string, cause error) *APIError {
	return &APIError{
		Kind:    ErrorKindUpstreamUnavailable,
		Message: message,
		Err:     cause,
	}
}

// ErrUpstreamRejected builds a non-retryable provider rejection.
func ErrUpstreamRejected(message string, cause error) *APIError {
	return &APIError{
		Kind:    ErrorKindUpstreamRejected,
		Message: message,
		Err:     cause,
	}
}

// ErrSchemaViolation builds a schema_violation error preserving the
// unmet constraints and the last raw model output.
func ErrSchemaViolation(stage Stage, violations []string, rawOutput string) *APIError {
	return &APIError{
		Kind:       ErrorKindSchemaViolation,
		Stage:      stage,
		Message:    fmt.Sprintf("stage output failed validation after repair budget exhausted (%d unmet constraints)", len(violations)),
		Violations: violations,
		RawOutput:  rawOutput,
	}
}

// ErrInternal builds an internal error wrapping its cause.
func ErrInternal(message string, cause error) *APIError {
	return &APIError{Kind: ErrorKindInternal, Message: message, Err: cause}
}

// AsAPIError coerces err into an APIError, tagging it with the stage it
// surfaced from. Errors without a canonical kind become internal.
func AsAPIError(err error, stage Stage) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Stage == "" {
			apiErr.Stage = stage
		}
		return apiErr
	}
	return &APIError{Kind: ErrorKindInternal, Message: err.Error(), Stage: stage, Err: err}
}
