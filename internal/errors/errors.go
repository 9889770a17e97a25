// Package errors defines stable error codes for the graph engine's failure
// modes. Only SNAPSHOT_NOT_COMMITTED and CONCURRENT_BUILD_CONFLICT are hard
// failures; everything else is surfaced as structured metadata alongside a
// best-effort result.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure code.
type ErrorCode string

const (
	// ParseError indicates a per-file parse failure. Recoverable: the file is
	// recorded as errored on the snapshot's completeness report.
	ParseError ErrorCode = "PARSE_ERROR"
	// SnapshotNotFound indicates the snapshot id does not exist.
	SnapshotNotFound ErrorCode = "SNAPSHOT_NOT_FOUND"
	// SnapshotNotCommitted indicates a read was attempted against a snapshot
	// that never reached its committed marker.
	SnapshotNotCommitted ErrorCode = "SNAPSHOT_NOT_COMMITTED"
	// ConcurrentBuildConflict indicates a second writer tried to build the
	// same snapshot id while the first build was in flight.
	ConcurrentBuildConflict ErrorCode = "CONCURRENT_BUILD_CONFLICT"
	// DependencyUnavailable indicates a best-effort external dependency
	// (the embedding service) was unreachable. Degrade, do not fail.
	DependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
	// BudgetExceeded indicates a traversal hit its depth or node cap. The
	// affected branch is truncated and marked; the call still succeeds.
	BudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
	// SymbolNotFound indicates a node id or qualified name lookup missed.
	SymbolNotFound ErrorCode = "SYMBOL_NOT_FOUND"
	// InvalidArgument indicates a malformed request parameter.
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// InternalError indicates an unexpected failure.
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// EngineError carries a stable code alongside a human-readable message and
// the underlying cause.
type EngineError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates an EngineError with the given code and message.
func New(code ErrorCode, message string) *EngineError {
	return &EngineError{Code: code, Message: message}
}

// Newf creates an EngineError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an EngineError wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured detail to the error.
func (e *EngineError) WithDetails(details interface{}) *EngineError {
	e.Details = details
	return e
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.cause
}

// CodeOf extracts the error code from err, or INTERNAL_ERROR if err is not
// an EngineError.
func CodeOf(err error) ErrorCode {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsHardFailure reports whether err must abort the call rather than be
// accumulated into result metadata.
func IsHardFailure(err error) bool {
	switch CodeOf(err) {
	case SnapshotNotCommitted, ConcurrentBuildConflict:
		return true
	}
	return false
}
