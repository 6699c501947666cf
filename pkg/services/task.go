package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rathbookie/stageflow/pkg/eventbus"
	"github.com/rathbookie/stageflow/pkg/events"
	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/otelhelper"
	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/resolution"
)

// Task implements the server side of task stage transitions. Destination
// legality is decided by the resolution engine against the task's workflow
// graph; tasks without an explicit workflow ride the tenant's default.
type Task struct {
	persistence persistence.Persistence
	workflows   *Workflow
	eventBus    eventbus.EventPublisher
	validate    *validator.Validate
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewTask creates a new task service.
func NewTask(
	persistence persistence.Persistence,
	workflows *Workflow,
	eventBus eventbus.EventPublisher,
	logger *slog.Logger,
) *Task {
	return &Task{
		persistence: persistence,
		workflows:   workflows,
		eventBus:    eventBus,
		validate:    validator.New(),
		tracer:      otel.Tracer("stageflow.services.task"),
		logger:      logger.With("module", "task_service"),
	}
}

// GetByID returns a single task by id.
func (t *Task) GetByID(ctx context.Context, id string) (*models.Task, error) {
	return t.persistence.TaskRepository().GetByID(ctx, id)
}

// ListByWorkflow returns all tasks attached to a workflow.
func (t *Task) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error) {
	return t.persistence.TaskRepository().ListByWorkflow(ctx, workflowID)
}

// CreateTaskRequest contains the input for creating a task.
type CreateTaskRequest struct {
	Title      string `json:"title"       validate:"required,min=1"`
	WorkflowID string `json:"workflow_id"`
	StageID    string `json:"stage_id"`
}

// Create persists a new task at version 1. Without an explicit stage the task
// starts on the first stage of its workflow; without an explicit workflow it
// attaches to the tenant default.
func (t *Task) Create(ctx context.Context, req CreateTaskRequest) (*models.Task, error) {
	if err := t.validate.Struct(req); err != nil {
		return nil, NewValidationError("Create", err.Error(), ErrInvalidRequest)
	}

	workflow, err := t.workflowFor(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	stageID := req.StageID
	if stageID == "" {
		if len(workflow.Stages) == 0 {
			return nil, fmt.Errorf("workflow %s has no stages", workflow.ID)
		}

		workflow.SortStages()
		stageID = workflow.Stages[0].ID
	} else if workflow.StageByID(stageID) == nil {
		return nil, NewValidationError("Create", fmt.Sprintf("stage %q", stageID), ErrUnknownStage)
	}

	now := time.Now().UTC()
	task := &models.Task{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Title:      strings.TrimSpace(req.Title),
		WorkflowID: workflow.ID,
		StageID:    stageID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if stage := workflow.StageByID(stageID); stage != nil {
		if status, ok := models.StageStatus(stage.Name); ok {
			task.Status = status
		}
	}

	if err := t.persistence.TaskRepository().Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return task, nil
}

// Options returns the legal next stages for the task under the given role.
// Unresolvable input fails closed to an empty list, never an error.
func (t *Task) Options(ctx context.Context, taskID string, role models.Role) ([]resolution.Option, error) {
	task, err := t.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	workflow, err := t.workflowFor(ctx, task.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return []resolution.Option{}, nil
		}

		return nil, err
	}

	return resolution.Resolve(workflow, task, role), nil
}

// TransitionRequest is the payload for moving a task to a new stage. The
// destination is a stage id, or a legacy flat status value for old clients.
// BlockedReason is mandatory exactly when the destination maps onto the
// blocked state.
type TransitionRequest struct {
	ToStage       string `json:"to_stage"`
	Status        string `json:"status"`
	BlockedReason string `json:"blocked_reason"`
	Version       int    `json:"version" validate:"min=1"`
}

// ApplyTransition moves the task to the requested stage after checking the
// role gate and the version stamp, then returns the task re-read from
// storage as the authoritative post-transition state.
func (t *Task) ApplyTransition(ctx context.Context, taskID string, role models.Role, req TransitionRequest) (*models.Task, error) {
	ctx, span := otelhelper.StartSpan(ctx, t.tracer, "task.apply_transition",
		attribute.String(otelhelper.TaskIDKey, taskID),
		attribute.String(otelhelper.RoleKey, string(role)),
	)
	defer span.End()

	if err := t.validate.Struct(req); err != nil {
		return nil, NewValidationError("ApplyTransition", err.Error(), ErrInvalidRequest)
	}

	if req.ToStage == "" && req.Status == "" {
		return nil, NewValidationError("ApplyTransition", "destination stage or status is required", ErrInvalidRequest)
	}

	task, err := t.persistence.TaskRepository().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if req.Version != task.Version {
		return nil, persistence.NewTaskError("ApplyTransition", taskID, persistence.ErrVersionConflict)
	}

	workflow, err := t.workflowFor(ctx, task.WorkflowID)
	if err != nil {
		return nil, err
	}

	destination := t.resolveDestination(workflow, req)
	if destination == nil {
		return nil, NewValidationError("ApplyTransition",
			fmt.Sprintf("destination %q", req.ToStage+req.Status), ErrUnknownStage)
	}

	if current := task.CurrentStage(workflow); current != nil && current.IsTerminal {
		return nil, NewValidationError("ApplyTransition", current.Name, ErrTerminalStage)
	}

	if !resolution.Allows(workflow, task, role, destination.ID) {
		return nil, NewValidationError("ApplyTransition",
			fmt.Sprintf("role %s cannot move task to %s", role, destination.Name), ErrTransitionNotAllowed)
	}

	status, mapped := models.StageStatus(destination.Name)
	if mapped && status == models.StatusBlocked && strings.TrimSpace(req.BlockedReason) == "" {
		return nil, NewValidationError("ApplyTransition", destination.Name, ErrBlockedReasonRequired)
	}

	fromStage := ""
	if current := task.CurrentStage(workflow); current != nil {
		fromStage = current.ID
	}

	task.StageID = destination.ID
	task.UpdatedAt = time.Now().UTC()

	// The flat status mirrors the stage only when the stage name maps onto a
	// canonical value. Custom stage names clear it rather than lie.
	if mapped {
		task.Status = status
	} else {
		task.Status = ""
	}

	if mapped && status == models.StatusBlocked {
		task.BlockedReason = strings.TrimSpace(req.BlockedReason)
	} else {
		task.BlockedReason = ""
	}

	if err := t.persistence.TaskRepository().Update(ctx, task, req.Version); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	t.publishEvent(ctx, workflow.ID, events.TaskTransitioned{
		BaseEvent: events.NewBaseEvent(events.TaskTransitionedEvent, workflow.ID),
		TaskID:    task.ID,
		FromStage: fromStage,
		ToStage:   destination.ID,
		Status:    task.Status,
		Role:      role,
		Version:   task.Version,
	})

	// Re-read rather than trust the in-memory copy; storage is authoritative
	// for the committed version stamp.
	return t.persistence.TaskRepository().GetByID(ctx, taskID)
}

// resolveDestination finds the requested destination stage, by id first and
// by legacy status value second.
func (t *Task) resolveDestination(workflow *models.Workflow, req TransitionRequest) *models.Stage {
	if req.ToStage != "" {
		return workflow.StageByID(req.ToStage)
	}

	if status, ok := models.StageStatus(req.Status); ok {
		return workflow.StageByStatus(status)
	}

	return nil
}

// workflowFor loads the graph a task lives in, falling back to the tenant
// default when the task carries no workflow reference.
func (t *Task) workflowFor(ctx context.Context, workflowID string) (*models.Workflow, error) {
	if workflowID == "" {
		return t.workflows.DefaultWorkflow(ctx)
	}

	return t.workflows.PublishedGraph(ctx, workflowID)
}

func (t *Task) publishEvent(ctx context.Context, workflowID string, event eventbus.Event) {
	if t.eventBus == nil {
		return
	}

	if err := t.eventBus.Publish(ctx, workflowID, event); err != nil {
		t.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "workflow_id", workflowID, "error", err)
	}
}
