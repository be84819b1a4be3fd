// Package errors provides centralized error definitions and error handling utilities
// for duo. It defines the sentinel errors of the session coordination engine,
// semantic error types carrying context, and classification helpers.
//
// # Error Types
//
// Engine errors:
//   - TransitionError: an operation is illegal in the session's current status
//   - ConflictError: an optimistic-concurrency version check failed
//   - ConcurrentModificationError: the bounded conflict retry loop was exhausted
//   - SessionError: persistence failures for a specific session
//
// Semantic errors:
//   - NotFoundError, AlreadyExistsError, ValidationError, TimeoutError
//
// Collaborator errors:
//   - AgentError: an external agent was unavailable or its invocation failed
//
// # Usage
//
//	err := errors.NewNotFoundError("session", "s1").WithCause(errors.ErrSessionNotFound)
//	if errors.Is(err, errors.ErrSessionNotFound) { ... }
//
//	var conflict *errors.ConflictError
//	if errors.As(err, &conflict) { reload() }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
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
	// ErrSessionNotFound indicates that no session is persisted under an ID.
	ErrSessionNotFound = New("session not found")
	// ErrSessionExists indicates a duplicate create.
	ErrSessionExists = New("session already exists")
	// ErrSessionCorrupted indicates that persisted session data cannot be decoded
	// or violates a session invariant.
	ErrSessionCorrupted = New("session data corrupted")
	// ErrInvalidState indicates an operation that is illegal in the session's status.
	ErrInvalidState = New("invalid session state")
)

// Concurrency sentinel errors
var (
	// ErrConflict indicates that a compare-and-save lost against another writer.
	ErrConflict = New("version conflict")
	// ErrConcurrentModification indicates the conflict retry budget was exhausted.
	ErrConcurrentModification = New("concurrent modification")
)

// Agent sentinel errors. The engine never produces these; they pass through
// from agent implementations.
var (
	// ErrAgentUnavailable indicates that an external agent cannot be invoked.
	ErrAgentUnavailable = New("agent unavailable")
	// ErrAgentInvocation indicates that an agent invocation failed.
	ErrAgentInvocation = New("agent invocation failed")
	// ErrRoundLimit indicates that a driven session reached agents.max_rounds
	// without a terminal verdict.
	ErrRoundLimit = New("round limit reached")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled by its caller.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// DuoError is the base interface for all duo errors.
type DuoError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// IsRetryable returns true if the operation may succeed when repeated
	// against fresh state.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

func (e *baseError) IsRetryable() bool {
	return e.retryable
}

func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatPrefix renders "kind [k=v, ...]" from non-empty context parts.
func formatPrefix(kind string, parts []string) string {
	if len(parts) == 0 {
		return kind
	}
	return fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents persistence failures for a session.
//
// Example:
//
//	err := errors.NewSessionError("decode session", errors.ErrSessionCorrupted).WithSessionID("s1")
//	fmt.Println(err) // "session error [session=s1]: decode session: session data corrupted"
type SessionError struct {
	baseError
	SessionID string
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	prefix := formatPrefix("session error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransitionError reports an operation that is not valid from the session's
// current status, such as submitting code while a review is pending.
//
// Example:
//
//	err := errors.NewTransitionError("submit_code", "awaiting_review").WithSessionID("s1")
//	fmt.Println(err) // "invalid state [session=s1, status=awaiting_review]: submit_code not allowed"
type TransitionError struct {
	baseError
	SessionID string
	Operation string
	Status    string
}

// NewTransitionError creates a TransitionError for operation attempted in status.
func NewTransitionError(operation, status string) *TransitionError {
	return &TransitionError{
		baseError: baseError{
			message:    fmt.Sprintf("%s not allowed", operation),
			userFacing: true,
		},
		Operation: operation,
		Status:    status,
	}
}

// WithSessionID adds a session ID to the error context.
func (e *TransitionError) WithSessionID(id string) *TransitionError {
	e.SessionID = id
	return e
}

// WithReason replaces the default message with a more specific one.
func (e *TransitionError) WithReason(reason string) *TransitionError {
	e.message = fmt.Sprintf("%s not allowed: %s", e.Operation, reason)
	return e
}

// Error returns the formatted error message.
func (e *TransitionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.Status != "" {
		parts = append(parts, fmt.Sprintf("status=%s", e.Status))
	}
	return fmt.Sprintf("%s: %s", formatPrefix("invalid state", parts), e.message)
}

// Is checks if this error matches the target.
func (e *TransitionError) Is(target error) bool {
	if _, ok := target.(*TransitionError); ok {
		return true
	}
	if target == ErrInvalidState {
		return true
	}
	return e.baseError.Is(target)
}

// ConflictError reports a compare-and-save whose base version no longer
// matches the stored version. Callers reload and retry.
type ConflictError struct {
	baseError
	SessionID       string
	ExpectedVersion int64
	// ActualVersion is the stored version when known, otherwise 0.
	ActualVersion int64
}

// NewConflictError creates a ConflictError for a save based on expected.
func NewConflictError(sessionID string, expected, actual int64) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message:   "stored version changed",
			retryable: true,
		},
		SessionID:       sessionID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
	}
}

// Error returns the formatted error message.
func (e *ConflictError) Error() string {
	parts := []string{fmt.Sprintf("session=%s", e.SessionID), fmt.Sprintf("expected=%d", e.ExpectedVersion)}
	if e.ActualVersion > 0 {
		parts = append(parts, fmt.Sprintf("actual=%d", e.ActualVersion))
	}
	return fmt.Sprintf("%s: %s", formatPrefix("version conflict", parts), e.message)
}

// Is checks if this error matches the target.
func (e *ConflictError) Is(target error) bool {
	if _, ok := target.(*ConflictError); ok {
		return true
	}
	return target == ErrConflict || e.baseError.Is(target)
}

// ConcurrentModificationError is returned once an operation has lost the
// version race more times than its retry budget allows.
type ConcurrentModificationError struct {
	baseError
	SessionID string
	Operation string
	Attempts  int
}

// NewConcurrentModificationError wraps the last conflict seen by operation.
func NewConcurrentModificationError(sessionID, operation string, attempts int, last error) *ConcurrentModificationError {
	return &ConcurrentModificationError{
		baseError: baseError{
			message:    fmt.Sprintf("%s gave up after %d attempts", operation, attempts),
			cause:      last,
			userFacing: true,
		},
		SessionID: sessionID,
		Operation: operation,
		Attempts:  attempts,
	}
}

// Error returns the formatted error message.
func (e *ConcurrentModificationError) Error() string {
	prefix := formatPrefix("concurrent modification", []string{fmt.Sprintf("session=%s", e.SessionID)})
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ConcurrentModificationError) Is(target error) bool {
	if _, ok := target.(*ConcurrentModificationError); ok {
		return true
	}
	return target == ErrConcurrentModification || e.baseError.Is(target)
}

// AgentError reports a failure of an external agent. Cause is either
// ErrAgentUnavailable or ErrAgentInvocation, possibly joined with the
// underlying process error.
//
// Example:
//
//	err := errors.NewAgentError("codex", errors.ErrAgentUnavailable).WithDetail("codex not found in PATH")
type AgentError struct {
	baseError
	Agent    string
	ExitCode int
	Stderr   string
}

// NewAgentError creates an AgentError for the named agent.
func NewAgentError(agent string, cause error) *AgentError {
	return &AgentError{
		baseError: baseError{
			message:    "agent failed",
			cause:      cause,
			userFacing: true,
		},
		Agent:    agent,
		ExitCode: -1,
	}
}

// WithDetail sets a human-readable description of the failure.
func (e *AgentError) WithDetail(detail string) *AgentError {
	e.message = detail
	return e
}

// WithExitCode records the process exit code.
func (e *AgentError) WithExitCode(code int) *AgentError {
	e.ExitCode = code
	return e
}

// WithStderr records trailing stderr output of the agent process.
func (e *AgentError) WithStderr(stderr string) *AgentError {
	e.Stderr = stderr
	return e
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	parts := []string{fmt.Sprintf("agent=%s", e.Agent)}
	if e.ExitCode >= 0 {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	msg := fmt.Sprintf("%s: %s", formatPrefix("agent error", parts), e.message)
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s (stderr: %s)", msg, e.Stderr)
	}
	return msg
}

// Is checks if this error matches the target.
func (e *AgentError) Is(target error) bool {
	if _, ok := target.(*AgentError); ok {
		return true
	}
	return e.baseError.Is(target)
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
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewAlreadyExistsError creates a new AlreadyExistsError.
func NewAlreadyExistsError(resourceType, resourceID string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' already exists", resourceType, resourceID),
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *AlreadyExistsError) WithCause(cause error) *AlreadyExistsError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("unknown verdict").WithField("verdict").WithValue("maybe")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			userFacing: true,
		},
	}
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
	prefix := formatPrefix("validation error", parts)
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for review of round 2", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for review of round 2 (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a condition that may
// clear when the operation is repeated against freshly loaded state.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var duoErr DuoError
	if As(err, &duoErr) {
		return duoErr.IsRetryable()
	}

	return Is(err, ErrTimeout) || Is(err, ErrConflict)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var duoErr DuoError
	if As(err, &duoErr) {
		return duoErr.IsUserFacing()
	}
	return false
}

// Canceled wraps a context error so that it matches both ErrCanceled and the
// original context error.
func Canceled(operation string, ctxErr error) error {
	if ctxErr == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, ErrCanceled, ctxErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
