// Package persistence provides standardized error types shared by every
// storage backend.
package persistence

import (
	"errors"
	"fmt"
	"strings"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrVersionConflict indicates the caller's version stamp did not match the
	// stored version at commit time. This is the only condition reported as a
	// conflict; structural rejections use StageBlockedError instead.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDefaultWorkflowProtected indicates an attempt to delete the tenant's
	// default workflow, which can never be removed.
	ErrDefaultWorkflowProtected = errors.New("default workflow cannot be deleted")

	// ErrWorkflowAlreadyExists indicates a workflow with the same identifier already exists.
	ErrWorkflowAlreadyExists = errors.New("workflow already exists")
)

// BlockedStage names one stage whose deletion was refused, with the number of
// tasks currently occupying it.
type BlockedStage struct {
	Name      string `json:"name"`
	TaskCount int64  `json:"task_count"`
}

// StageBlockedError is the structural rejection returned when a draft save
// would delete stages that still hold active tasks. No mutation is applied
// when it is returned.
type StageBlockedError struct {
	WorkflowID    string
	BlockedStages []BlockedStage
}

func (e *StageBlockedError) Error() string {
	parts := make([]string, 0, len(e.BlockedStages))
	for _, blocked := range e.BlockedStages {
		parts = append(parts, fmt.Sprintf("%s (%d)", blocked.Name, blocked.TaskCount))
	}

	return fmt.Sprintf("cannot delete stages with active tasks: %s", strings.Join(parts, ", "))
}

// AsStageBlocked unwraps a StageBlockedError from an error chain.
func AsStageBlocked(err error) (*StageBlockedError, bool) {
	var blocked *StageBlockedError
	if errors.As(err, &blocked) {
		return blocked, true
	}

	return nil, false
}

// WorkflowError wraps workflow-related errors with operation context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Update", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// TaskError wraps task-related errors with operation context.
type TaskError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s operation failed for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

func (e *TaskError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTaskError creates a new task error with context.
func NewTaskError(op, taskID string, err error) *TaskError {
	return &TaskError{
		Op:     op,
		TaskID: taskID,
		Err:    err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsVersionConflict checks if an error indicates an optimistic-lock mismatch.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsDefaultWorkflowProtected checks if an error indicates a refused deletion
// of the default workflow.
func IsDefaultWorkflowProtected(err error) bool {
	return errors.Is(err, ErrDefaultWorkflowProtected)
}
