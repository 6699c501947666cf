// Package services implements the server-side operations on workflows and
// tasks: draft saves, publishes, creation, deletion, and task transitions,
// all under the optimistic-concurrency discipline.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. Version conflicts and structural stage blocks are
// not listed here; they come from pkg/persistence so every layer shares one
// definition of "conflict".
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrWorkflowNameRequired  = errors.New("workflow name is required")
	ErrBlockedReasonRequired = errors.New("blocked reason is required")
	ErrUnknownStage          = errors.New("destination stage not in workflow")
	ErrWorkflowNil           = errors.New("workflow cannot be nil")

	// Transition refusals (403 Forbidden). Fail-closed outcomes land here:
	// an unresolvable workflow and a role without a matching transition are
	// indistinguishable to the caller.
	ErrTransitionNotAllowed = errors.New("transition not allowed for role")
	ErrTerminalStage        = errors.New("task stage is terminal")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should
// surface as HTTP 400 and must never reach the storage layer.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrBlockedReasonRequired) ||
		errors.Is(err, ErrUnknownStage) ||
		errors.Is(err, ErrWorkflowNil)
}

// IsTransitionRefused checks if an error is a role/terminal transition
// refusal that should surface as HTTP 403.
func IsTransitionRefused(err error) bool {
	return errors.Is(err, ErrTransitionNotAllowed) ||
		errors.Is(err, ErrTerminalStage)
}
