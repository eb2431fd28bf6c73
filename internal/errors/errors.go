package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InvalidInput indicates training data or arguments that cannot define a model
	InvalidInput ErrorCode = "INVALID_INPUT"
	// NoSuchModel indicates the type is not present in an otherwise valid archive
	NoSuchModel ErrorCode = "NO_SUCH_MODEL"
	// PoolExhausted indicates the concurrent borrow cap was reached
	PoolExhausted ErrorCode = "POOL_EXHAUSTED"
	// NotFound indicates no model archive is known for a dependency
	NotFound ErrorCode = "NOT_FOUND"
	// NoCompatibleVersion indicates the artifact is known but no version matched
	NoCompatibleVersion ErrorCode = "NO_COMPATIBLE_VERSION"
	// CorruptArchive indicates a missing or unreadable manifest or model entry
	CorruptArchive ErrorCode = "CORRUPT_ARCHIVE"
	// ArchiveClosed indicates use of an archive or lease after Close
	ArchiveClosed ErrorCode = "ARCHIVE_CLOSED"
	// NotBorrowed indicates a release of an instance that is not currently borrowed
	NotBorrowed ErrorCode = "NOT_BORROWED"
	// TransportFailed indicates the archive could not be made available locally
	TransportFailed ErrorCode = "TRANSPORT_FAILED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a callrec error with a stable code and message
type Error struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error       // Underlying error (not exported to JSON)
}

// New creates a new Error
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Newf creates a new Error without a cause, formatting the message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain,
// or InternalError if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// HasCode reports whether err's chain contains an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsUnavailable reports whether err means "no model for this request".
// These outcomes are expected and are never surfaced to the user.
func IsUnavailable(err error) bool {
	switch CodeOf(err) {
	case NotFound, NoCompatibleVersion, NoSuchModel, PoolExhausted, CorruptArchive, TransportFailed, ArchiveClosed:
		return true
	}
	return false
}
