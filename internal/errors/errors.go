// Package errors provides centralized error definitions and error handling
// utilities for the codeloom codebase. It defines domain-specific errors,
// semantic error types, error constructors with context wrapping, and error
// classification helpers.
//
// # Error Types
//
// The package provides two categories of errors:
//
// Domain-specific errors represent errors from specific subsystems:
//   - StageError: a pipeline stage could not proceed; terminal for its session
//   - FileError: errors from the per-session file store
//   - InvariantError: a programming contract was violated (e.g. a stage
//     attempted to redefine an existing artifact kind); fatal to the session
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input, rejected before a session is created
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewStageError("planner", "model returned malformed plan")
//	err := errors.NewNotFoundError("session", "abc123")
//	err := errors.NewFileError("write rejected", errors.ErrInvalidPath).WithPath("../etc/passwd")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Session-related sentinel errors
var (
	// ErrSessionNotFound indicates that a session could not be found.
	ErrSessionNotFound = New("session not found")
	// ErrSessionTerminal indicates an operation that requires an active
	// session was attempted against a completed or failed one.
	ErrSessionTerminal = New("session already terminal")
	// ErrCancelled indicates that a session run was cancelled.
	ErrCancelled = New("cancelled")
)

// File store sentinel errors
var (
	// ErrFileNotFound indicates that a file does not exist in the session tree.
	ErrFileNotFound = New("file not found")
	// ErrInvalidPath indicates a path that normalizes outside the session root.
	ErrInvalidPath = New("path escapes session root")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrArtifactExists indicates that a stage attempted to redefine an
	// artifact kind that the session already holds.
	ErrArtifactExists = New("artifact kind already defined")
)

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// StageError represents a pipeline stage that could not proceed. It is
// recorded on the owning session and is terminal for that session; a fresh
// submission is required to retry.
//
// Example:
//
//	err := errors.NewStageError("planner", "model returned malformed plan")
//	fmt.Println(err) // "stage error [stage=planner]: model returned malformed plan"
type StageError struct {
	Stage  string
	Reason string
	cause  error
}

// NewStageError creates a new StageError.
func NewStageError(stage, reason string) *StageError {
	return &StageError{Stage: stage, Reason: reason}
}

// WithCause adds an underlying error to the StageError.
func (e *StageError) WithCause(cause error) *StageError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	prefix := "stage error"
	if e.Stage != "" {
		prefix = fmt.Sprintf("stage error [stage=%s]", e.Stage)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Reason)
}

// Unwrap returns the underlying error, if any.
func (e *StageError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// FileError represents errors from the per-session file store.
//
// Example:
//
//	err := errors.NewFileError("write rejected", errors.ErrInvalidPath).WithPath("../x")
type FileError struct {
	Path    string
	message string
	cause   error
}

// NewFileError creates a new FileError.
func NewFileError(message string, cause error) *FileError {
	return &FileError{message: message, cause: cause}
}

// WithPath adds the offending path to the error context.
func (e *FileError) WithPath(path string) *FileError {
	e.Path = path
	return e
}

// Error returns the formatted error message.
func (e *FileError) Error() string {
	prefix := "file error"
	if e.Path != "" {
		prefix = fmt.Sprintf("file error [path=%s]", e.Path)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying error, if any.
func (e *FileError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *FileError) Is(target error) bool {
	if _, ok := target.(*FileError); ok {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// InvariantError represents a violated programming contract, such as a stage
// redefining an existing artifact kind. It is fatal to the owning session,
// always logged, and never silently ignored.
type InvariantError struct {
	message string
	cause   error
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(message string, cause error) *InvariantError {
	return &InvariantError{message: message, cause: cause}
}

// Error returns the formatted error message.
func (e *InvariantError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invariant violation: %s: %v", e.message, e.cause)
	}
	return fmt.Sprintf("invariant violation: %s", e.message)
}

// Unwrap returns the underlying error, if any.
func (e *InvariantError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *InvariantError) Is(target error) bool {
	if _, ok := target.(*InvariantError); ok {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("session", "abc123")
//	fmt.Println(err) // "session 'abc123' not found"
type NotFoundError struct {
	ResourceType string
	ResourceID   string
	cause        error
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{ResourceType: resourceType, ResourceID: resourceID}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Unwrap returns the underlying error, if any.
func (e *NotFoundError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// ValidationError represents invalid input. Validation failures are rejected
// synchronously, before a session is created; they never enter the session
// state machine.
//
// Example:
//
//	err := errors.NewValidationError("prompt cannot be empty").WithField("prompt")
type ValidationError struct {
	Field   string
	Value   any
	message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{message: message}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying error, if any.
func (e *ValidationError) Unwrap() error { return e.cause }

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end
// users: semantic errors, stage failures, and file store errors caused by
// the caller (bad path, missing file). File store errors wrapping raw IO
// failures stay internal, so the API layer reports them generically.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	var validation *ValidationError
	var stage *StageError
	if As(err, &notFound) || As(err, &validation) || As(err, &stage) {
		return true
	}

	var file *FileError
	if As(err, &file) {
		return Is(err, ErrInvalidPath) || Is(err, ErrFileNotFound)
	}
	return false
}

// IsNotFound returns true if the error indicates a missing resource of any
// kind (semantic NotFoundError, or the session/file sentinels).
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	var notFound *NotFoundError
	if As(err, &notFound) {
		return true
	}
	return Is(err, ErrSessionNotFound) || Is(err, ErrFileNotFound)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to process request")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to process session %s", sessionID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
