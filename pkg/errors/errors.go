package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"

	// Remote API errors
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrEntitlement     ErrorCode = "ENTITLEMENT"
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrLinkUnavailable ErrorCode = "LINK_UNAVAILABLE"
	ErrRemote          ErrorCode = "REMOTE"

	// Local filesystem errors
	ErrLocalIO        ErrorCode = "LOCAL_IO"
	ErrCorruptArchive ErrorCode = "CORRUPT_ARCHIVE"
	ErrUnsupported    ErrorCode = "UNSUPPORTED_FORMAT"

	// State store errors
	ErrStateNotFound ErrorCode = "STATE_NOT_FOUND"
	ErrStateInvalid  ErrorCode = "STATE_INVALID"
	ErrStatePersist  ErrorCode = "STATE_PERSIST"

	// Manifest errors
	ErrManifestInvalid ErrorCode = "MANIFEST_INVALID"
	ErrManifestMissing ErrorCode = "MANIFEST_MISSING"

	// Load order errors
	ErrRequirementMissing ErrorCode = "REQUIREMENT_MISSING"

	// Deployment errors
	ErrDeployPlacement ErrorCode = "DEPLOY_PLACEMENT"
	ErrTargetMissing   ErrorCode = "TARGET_MISSING"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"
)

// ModstageError represents a structured error with code and details
type ModstageError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *ModstageError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *ModstageError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *ModstageError) Is(target error) bool {
	var targetErr *ModstageError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new ModstageError with the given code and message
func New(code ErrorCode, message string) *ModstageError {
	return &ModstageError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new ModstageError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *ModstageError {
	return &ModstageError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a ModstageError
func Wrap(err error, code ErrorCode, message string) *ModstageError {
	if err == nil {
		return nil
	}
	return &ModstageError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *ModstageError {
	if err == nil {
		return nil
	}
	return &ModstageError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *ModstageError) WithDetail(key string, value interface{}) *ModstageError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var msErr *ModstageError
	if errors.As(err, &msErr) {
		return msErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a ModstageError
func GetErrorCode(err error) ErrorCode {
	var msErr *ModstageError
	if errors.As(err, &msErr) {
		return msErr.Code
	}
	return ErrUnknown
}

// IsTransient reports whether an error is worth retrying against the remote API.
func IsTransient(err error) bool {
	return IsErrorCode(err, ErrRateLimited)
}
