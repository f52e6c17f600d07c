// Package admission implements the Admission Pipeline (C2): the
// multi-step gate every incoming RSocket setup must clear before a
// responder handler is constructed and registered.
package admission

import "fmt"

// Stable error codes surfaced in rejection messages (spec.md §6).
const (
	CodeParseFailure        = "RST-500402"
	CodeAuthFailure         = "RST-500405"
	CodeConstructionFailure = "RST-500406"
	CodeDuplicateInstance   = "RST-500409"
	CodeMalformedUUID       = "RST-500410"
	CodeMissingDescriptor   = "RST-500411"
	CodeUnexpectedFailure   = "RST-600500"

	// Log-only codes, never returned as a rejection.
	CodeAcceptSuccess = "RST-500200"
	CodeDisposal      = "RST-500202"
	CodeNotifyConnect = "RST-300203"
	CodeNotifyStop    = "RST-300204"
)

// ClientError is a malformed-input/auth-failure/uniqueness-violation
// rejection reported to the client as a Rejected-Setup signal. Never
// logged at error level (spec.md §7).
type ClientError struct {
	Code    string
	Message string
}

func (e *ClientError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func newClientError(code, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// DependencyError wraps a collaborator failure (auth service down, routing
// selector unavailable). Retried by the caller at the transport level;
// logged at Warn, never at Error.
type DependencyError struct {
	Cause error
}

func (e *DependencyError) Error() string { return fmt.Sprintf("dependency failure: %v", e.Cause) }
func (e *DependencyError) Unwrap() error { return e.Cause }

// InternalError is an unexpected failure in admission or construction.
// Logged with stack and cause, mapped to RST-600500 or RST-500406 for the
// client.
type InternalError struct {
	Code  string
	Cause error
}

func (e *InternalError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Cause) }
func (e *InternalError) Unwrap() error { return e.Cause }

// RejectError is the terminal REJECTED(errorCode) state: a stable code plus
// the human-readable message, returned to the transport so it can dispose
// the socket and signal the client.
type RejectError struct {
	Code    string
	Message string
}

func (e *RejectError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// reject builds the ClientError for a rejection code and message, then
// flattens it into the RejectError returned across the transport boundary.
// Every rejection the pipeline issues for malformed input, auth failure or
// a uniqueness violation passes through here, so ClientError classification
// is load-bearing rather than decorative.
func reject(code, format string, args ...any) *RejectError {
	ce := newClientError(code, format, args...)
	return &RejectError{Code: ce.Code, Message: ce.Message}
}
