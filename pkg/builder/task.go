package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/resolution"
	"github.com/rathbookie/stageflow/pkg/services"
)

// ErrReasonRequired refuses a blocked-destination submission before any
// network call when no justification was supplied. The server enforces the
// same rule independently; this check is a convenience, not the authority.
var ErrReasonRequired = errors.New("a reason is required when blocking a task")

// TaskAPI is the server surface the task updater drives.
type TaskAPI interface {
	GetByID(ctx context.Context, taskID string) (*models.Task, error)
	Options(ctx context.Context, taskID string, role models.Role) ([]resolution.Option, error)
	ApplyTransition(ctx context.Context, taskID string, role models.Role, req services.TransitionRequest) (*models.Task, error)
}

// TaskUpdater applies previously-resolved transitions to tasks under the
// same no-retry, no-merge discipline as the workflow syncer. A conflict
// means the task changed elsewhere; the caller must re-fetch before any
// further action.
type TaskUpdater struct {
	api   TaskAPI
	state State
}

// NewTaskUpdater creates a task updater.
func NewTaskUpdater(api TaskAPI) *TaskUpdater {
	return &TaskUpdater{
		api:   api,
		state: StateIdle,
	}
}

// State returns the outcome of the most recent operation.
func (u *TaskUpdater) State() State {
	return u.state
}

// Options returns the legal next stages for the task under the given role.
func (u *TaskUpdater) Options(ctx context.Context, taskID string, role models.Role) ([]resolution.Option, error) {
	return u.api.Options(ctx, taskID, role)
}

// Apply moves a task along the chosen option. When the destination maps onto
// the blocked state a non-empty reason is required before the request is
// even sent. The returned task is the authoritative server state after an
// accepted transition.
func (u *TaskUpdater) Apply(ctx context.Context, task *models.Task, role models.Role, option resolution.Option, reason string) (*models.Task, error) {
	if option.ToStatus == models.StatusBlocked && strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}

	u.state = StatePending

	updated, err := u.api.ApplyTransition(ctx, task.ID, role, services.TransitionRequest{
		ToStage:       option.ToStage,
		BlockedReason: reason,
		Version:       task.Version,
	})
	if err != nil {
		if persistence.IsVersionConflict(err) {
			u.state = StateConflict

			return nil, fmt.Errorf("task updated elsewhere, refresh: %w", err)
		}

		u.state = StateIdle

		return nil, err
	}

	u.state = StateCommitted

	return updated, nil
}

// Refresh re-fetches the current task state, the mandatory step after a
// conflict before any further transition attempt.
func (u *TaskUpdater) Refresh(ctx context.Context, taskID string) (*models.Task, error) {
	task, err := u.api.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	u.state = StateIdle

	return task, nil
}
