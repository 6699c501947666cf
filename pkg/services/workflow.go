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

	"github.com/rathbookie/stageflow/pkg/cache"
	"github.com/rathbookie/stageflow/pkg/config"
	"github.com/rathbookie/stageflow/pkg/eventbus"
	"github.com/rathbookie/stageflow/pkg/events"
	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/otelhelper"
	"github.com/rathbookie/stageflow/pkg/persistence"
)

// Workflow implements the server side of the workflow lifecycle: listing,
// creation, draft saves, publishing, and deletion. Every mutating operation
// that targets an existing workflow takes the caller's version stamp and
// commits only if it still matches the stored version.
type Workflow struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventPublisher
	graphs      cache.PublishedGraphs
	validate    *validator.Validate
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	persistence persistence.Persistence,
	eventBus eventbus.EventPublisher,
	graphs cache.PublishedGraphs,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: persistence,
		eventBus:    eventBus,
		graphs:      graphs,
		validate:    validator.New(),
		tracer:      otel.Tracer("stageflow.services.workflow"),
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns all workflows with transition names freshly derived from
// their stage sets.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		workflow.SortStages()
		workflow.HydrateTransitionNames()
	}

	return workflows, nil
}

// GetByID returns a single workflow by id.
func (w *Workflow) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.SortStages()
	workflow.HydrateTransitionNames()

	return workflow, nil
}

// PublishedGraph returns the workflow definition used for transition
// resolution, served from the cache when possible. Only published graphs are
// written back to the cache.
func (w *Workflow) PublishedGraph(ctx context.Context, id string) (*models.Workflow, error) {
	cached, err := w.graphs.Get(ctx, id)
	if err == nil && cached != nil {
		return cached, nil
	}

	workflow, err := w.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.IsPublished {
		if err := w.graphs.Set(ctx, workflow); err != nil {
			w.logger.WarnContext(ctx, "failed to cache published graph", "workflow_id", id, "error", err)
		}
	}

	return workflow, nil
}

// CreateRequest contains the input for creating a workflow.
type CreateRequest struct {
	Name string `json:"name" validate:"required,min=2"`
}

// Create persists a new unpublished workflow seeded with a single opening
// stage, at version 1.
func (w *Workflow) Create(ctx context.Context, req CreateRequest) (*models.Workflow, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, NewValidationError("Create", err.Error(), ErrWorkflowNameRequired)
	}

	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Name:    strings.TrimSpace(req.Name),
		Version: 1,
		Stages: []*models.Stage{
			{
				ID:    uuid.Must(uuid.NewV7()).String(),
				Name:  "Not Started",
				Order: 0,
			},
		},
		Transitions: []*models.Transition{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := w.persistence.WorkflowRepository().Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.publishEvent(ctx, workflow.ID, events.WorkflowCreated{
		BaseEvent: events.NewBaseEvent(events.WorkflowCreatedEvent, workflow.ID),
		Name:      workflow.Name,
	})

	return workflow, nil
}

// CreateFromPreset materializes a preset definition into a new unpublished
// workflow at version 1, assigning fresh ids throughout. Presets with a name
// that already exists are skipped by SeedPresets; this method itself does
// not check.
func (w *Workflow) CreateFromPreset(ctx context.Context, preset config.WorkflowPreset) (*models.Workflow, error) {
	now := time.Now().UTC()

	workflow := &models.Workflow{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Name:        preset.Name,
		Version:     1,
		Stages:      make([]*models.Stage, 0, len(preset.Stages)),
		Transitions: make([]*models.Transition, 0, len(preset.Transitions)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	byName := make(map[string]*models.Stage, len(preset.Stages))

	for i, stage := range preset.Stages {
		created := &models.Stage{
			ID:                  uuid.Must(uuid.NewV7()).String(),
			Name:                stage.Name,
			Order:               i,
			IsTerminal:          stage.IsTerminal,
			RequiresAttachments: stage.RequiresAttachments,
			RequiresApproval:    stage.RequiresApproval,
		}

		workflow.Stages = append(workflow.Stages, created)
		byName[stage.Name] = created
	}

	for _, transition := range preset.Transitions {
		role, ok := models.ParseRole(transition.Role)
		if !ok {
			return nil, NewValidationError("CreateFromPreset",
				fmt.Sprintf("invalid role %q", transition.Role), ErrInvalidRequest)
		}

		workflow.Transitions = append(workflow.Transitions, &models.Transition{
			ID:          uuid.Must(uuid.NewV7()).String(),
			FromStage:   byName[transition.From].ID,
			ToStage:     byName[transition.To].ID,
			AllowedRole: role,
		})
	}

	workflow.HydrateTransitionNames()

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError("CreateFromPreset", err.Error(), ErrInvalidRequest)
	}

	if err := w.persistence.WorkflowRepository().Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow from preset: %w", err)
	}

	w.publishEvent(ctx, workflow.ID, events.WorkflowCreated{
		BaseEvent: events.NewBaseEvent(events.WorkflowCreatedEvent, workflow.ID),
		Name:      workflow.Name,
	})

	return workflow, nil
}

// SeedPresets creates a workflow for every preset whose name does not exist
// yet. Existing workflows are left untouched.
func (w *Workflow) SeedPresets(ctx context.Context, presets []config.WorkflowPreset) error {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	existing := make(map[string]bool, len(workflows))
	for _, workflow := range workflows {
		existing[workflow.Name] = true
	}

	for _, preset := range presets {
		if existing[preset.Name] {
			continue
		}

		if _, err := w.CreateFromPreset(ctx, preset); err != nil {
			return err
		}

		w.logger.InfoContext(ctx, "seeded workflow from preset", "name", preset.Name)
	}

	return nil
}

// StageSubmission is one stage in a draft-save payload. A nil or
// session-local id marks a stage created since the last save; the server
// assigns the real id.
type StageSubmission struct {
	ID                  *string `json:"id"`
	Name                string  `json:"name"                 validate:"required,min=1"`
	Order               int     `json:"order"                validate:"min=0"`
	IsTerminal          bool    `json:"is_terminal"`
	RequiresAttachments bool    `json:"requires_attachments"`
	RequiresApproval    bool    `json:"requires_approval"`
}

// TransitionSubmission is one transition in a draft-save payload. Endpoints
// may reference session-local stage ids; they are remapped to the assigned
// ids during the save.
type TransitionSubmission struct {
	ID          *string     `json:"id"`
	FromStage   string      `json:"from_stage"   validate:"required"`
	ToStage     string      `json:"to_stage"     validate:"required"`
	AllowedRole models.Role `json:"allowed_role" validate:"required"`
}

// SaveDraftRequest is the full draft-save payload: the complete intended
// graph plus the version the client last observed.
type SaveDraftRequest struct {
	Name        string                 `json:"name"`
	Version     int                    `json:"version"     validate:"min=1"`
	Stages      []StageSubmission      `json:"stages"      validate:"required,min=1,dive"`
	Transitions []TransitionSubmission `json:"transitions" validate:"dive"`
}

// SaveDraft replaces the workflow's stage graph with the submitted one and
// bumps the version by exactly one.
//
// The operation is all-or-nothing. It fails with a version conflict when the
// client's stamp is stale, and with a StageBlockedError when the submission
// drops persisted stages that still hold tasks. In both cases nothing is
// written.
func (w *Workflow) SaveDraft(ctx context.Context, workflowID string, req SaveDraftRequest) (*models.Workflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.save_draft",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.WorkflowVersionKey, req.Version),
	)
	defer span.End()

	if err := w.validate.Struct(req); err != nil {
		return nil, NewValidationError("SaveDraft", err.Error(), ErrInvalidRequest)
	}

	current, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	// Early stale-stamp check. The repository re-checks atomically at commit
	// time; this only avoids counting tasks on a save that cannot succeed.
	if req.Version != current.Version {
		return nil, persistence.NewWorkflowError("SaveDraft", workflowID, persistence.ErrVersionConflict)
	}

	if err := w.checkRemovedStages(ctx, current, req.Stages); err != nil {
		return nil, err
	}

	updated, err := w.buildGraph(current, req)
	if err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Update(ctx, updated, req.Version); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := w.graphs.Invalidate(ctx, workflowID); err != nil {
		w.logger.WarnContext(ctx, "failed to invalidate cached graph", "workflow_id", workflowID, "error", err)
	}

	w.publishEvent(ctx, workflowID, events.WorkflowDraftSaved{
		BaseEvent:       events.NewBaseEvent(events.WorkflowDraftSavedEvent, workflowID),
		Version:         updated.Version,
		StageCount:      len(updated.Stages),
		TransitionCount: len(updated.Transitions),
	})

	updated.SortStages()

	return updated, nil
}

// checkRemovedStages refuses the save when a persisted stage missing from the
// submission still holds tasks. A task occupies a stage either by explicit
// stage id or, for legacy flat-status tasks, through the stage its status
// resolves onto. Blocked stages are reported in the stored graph's stage
// order.
func (w *Workflow) checkRemovedStages(ctx context.Context, current *models.Workflow, stages []StageSubmission) error {
	submitted := make(map[string]bool, len(stages))

	for _, stage := range stages {
		if stage.ID != nil {
			submitted[*stage.ID] = true
		}
	}

	current.SortStages()

	removed := make([]string, 0)
	legacyStatus := make(map[string]string)

	for _, stage := range current.Stages {
		if submitted[stage.ID] {
			continue
		}

		removed = append(removed, stage.ID)

		if status, ok := models.StageStatus(stage.Name); ok {
			if target := current.StageByStatus(status); target != nil && target.ID == stage.ID {
				legacyStatus[stage.ID] = status
			}
		}
	}

	if len(removed) == 0 {
		return nil
	}

	counts, err := w.persistence.TaskRepository().CountByStage(ctx, current.ID, removed)
	if err != nil {
		return fmt.Errorf("failed to count tasks on removed stages: %w", err)
	}

	statusCounts := map[string]int64{}

	if len(legacyStatus) > 0 {
		statuses := make([]string, 0, len(legacyStatus))
		for _, status := range legacyStatus {
			statuses = append(statuses, status)
		}

		statusCounts, err = w.persistence.TaskRepository().CountByStatus(ctx, current.ID, statuses)
		if err != nil {
			return fmt.Errorf("failed to count legacy tasks on removed stages: %w", err)
		}
	}

	blocked := make([]persistence.BlockedStage, 0)

	for _, stage := range current.Stages {
		count := counts[stage.ID]
		if status, ok := legacyStatus[stage.ID]; ok {
			count += statusCounts[status]
		}

		if count > 0 {
			blocked = append(blocked, persistence.BlockedStage{
				Name:      stage.Name,
				TaskCount: count,
			})
		}
	}

	if len(blocked) > 0 {
		return &persistence.StageBlockedError{
			WorkflowID:    current.ID,
			BlockedStages: blocked,
		}
	}

	return nil
}

// buildGraph materializes the submitted graph onto a copy of the stored
// workflow, assigning real ids to locally-created stages and remapping
// transition endpoints that referenced them.
func (w *Workflow) buildGraph(current *models.Workflow, req SaveDraftRequest) (*models.Workflow, error) {
	updated := current.Clone()

	if name := strings.TrimSpace(req.Name); name != "" {
		updated.Name = name
	}

	idMap := make(map[string]string, len(req.Stages))
	updated.Stages = make([]*models.Stage, 0, len(req.Stages))

	for _, submission := range req.Stages {
		stageID := ""
		if submission.ID != nil {
			stageID = *submission.ID
		}

		if stageID == "" || models.IsLocalID(stageID) {
			assigned := uuid.Must(uuid.NewV7()).String()
			if stageID != "" {
				idMap[stageID] = assigned
			}

			stageID = assigned
		}

		updated.Stages = append(updated.Stages, &models.Stage{
			ID:                  stageID,
			Name:                strings.TrimSpace(submission.Name),
			Order:               submission.Order,
			IsTerminal:          submission.IsTerminal,
			RequiresAttachments: submission.RequiresAttachments,
			RequiresApproval:    submission.RequiresApproval,
		})
	}

	updated.Transitions = make([]*models.Transition, 0, len(req.Transitions))

	for _, submission := range req.Transitions {
		transitionID := ""
		if submission.ID != nil && !models.IsLocalID(*submission.ID) {
			transitionID = *submission.ID
		}

		if transitionID == "" {
			transitionID = uuid.Must(uuid.NewV7()).String()
		}

		fromStage := submission.FromStage
		if assigned, ok := idMap[fromStage]; ok {
			fromStage = assigned
		}

		toStage := submission.ToStage
		if assigned, ok := idMap[toStage]; ok {
			toStage = assigned
		}

		role, ok := models.ParseRole(string(submission.AllowedRole))
		if !ok {
			return nil, NewValidationError("SaveDraft",
				fmt.Sprintf("invalid role %q", submission.AllowedRole), ErrInvalidRequest)
		}

		updated.Transitions = append(updated.Transitions, &models.Transition{
			ID:          transitionID,
			FromStage:   fromStage,
			ToStage:     toStage,
			AllowedRole: role,
		})
	}

	if err := updated.Validate(); err != nil {
		return nil, NewValidationError("SaveDraft", err.Error(), ErrInvalidRequest)
	}

	updated.HydrateTransitionNames()
	updated.UpdatedAt = time.Now().UTC()

	return updated, nil
}

// PublishRequest carries the version stamp a publish must match.
type PublishRequest struct {
	Version int `json:"version" validate:"min=1"`
}

// Publish marks the workflow published and stamps publishedAt, bumping the
// version by one. It assumes the content was already saved; it never writes
// stages or transitions.
func (w *Workflow) Publish(ctx context.Context, workflowID string, req PublishRequest) (*models.Workflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "workflow.publish",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
		attribute.Int(otelhelper.WorkflowVersionKey, req.Version),
	)
	defer span.End()

	if err := w.validate.Struct(req); err != nil {
		return nil, NewValidationError("Publish", err.Error(), ErrInvalidRequest)
	}

	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if req.Version != workflow.Version {
		return nil, persistence.NewWorkflowError("Publish", workflowID, persistence.ErrVersionConflict)
	}

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError("Publish", err.Error(), ErrInvalidRequest)
	}

	now := time.Now().UTC()
	workflow.IsPublished = true
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Update(ctx, workflow, req.Version); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := w.graphs.Set(ctx, workflow); err != nil {
		w.logger.WarnContext(ctx, "failed to cache published graph", "workflow_id", workflowID, "error", err)
	}

	w.publishEvent(ctx, workflowID, events.WorkflowPublished{
		BaseEvent:   events.NewBaseEvent(events.WorkflowPublishedEvent, workflowID),
		Version:     workflow.Version,
		PublishedAt: now,
	})

	return workflow, nil
}

// Delete removes a workflow permanently. The default workflow is protected
// and can never be deleted.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return err
	}

	if workflow.IsDefault {
		return persistence.NewWorkflowError("Delete", workflowID, persistence.ErrDefaultWorkflowProtected)
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return err
	}

	if err := w.graphs.Invalidate(ctx, workflowID); err != nil {
		w.logger.WarnContext(ctx, "failed to invalidate cached graph", "workflow_id", workflowID, "error", err)
	}

	w.publishEvent(ctx, workflowID, events.WorkflowDeleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowDeletedEvent, workflowID),
		Name:      workflow.Name,
	})

	return nil
}

// SeedDefault ensures the tenant has its protected default workflow: the
// classic flat-status lifecycle expressed as a published stage graph. It is
// idempotent; an existing default is returned untouched.
func (w *Workflow) SeedDefault(ctx context.Context) (*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if workflow.IsDefault {
			return workflow, nil
		}
	}

	workflow := defaultWorkflow()

	if err := w.persistence.WorkflowRepository().Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to seed default workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "seeded default workflow", "workflow_id", workflow.ID)

	return workflow, nil
}

// defaultWorkflow builds the published default graph. Stage names deliberately
// map onto the canonical status values so legacy flat-status tasks resolve
// onto it without migration.
func defaultWorkflow() *models.Workflow {
	now := time.Now().UTC()

	notStarted := &models.Stage{ID: uuid.Must(uuid.NewV7()).String(), Name: "Not Started", Order: 0}
	inProgress := &models.Stage{ID: uuid.Must(uuid.NewV7()).String(), Name: "In Progress", Order: 1}
	blocked := &models.Stage{ID: uuid.Must(uuid.NewV7()).String(), Name: "Blocked", Order: 2}
	waitingReview := &models.Stage{ID: uuid.Must(uuid.NewV7()).String(), Name: "Waiting Review", Order: 3}
	done := &models.Stage{ID: uuid.Must(uuid.NewV7()).String(), Name: "Done", Order: 4, IsTerminal: true}
	cancelled := &models.Stage{ID: uuid.Must(uuid.NewV7()).String(), Name: "Cancelled", Order: 5, IsTerminal: true}

	edge := func(from, to *models.Stage, role models.Role) *models.Transition {
		return &models.Transition{
			ID:          uuid.Must(uuid.NewV7()).String(),
			FromStage:   from.ID,
			ToStage:     to.ID,
			AllowedRole: role,
		}
	}

	workflow := &models.Workflow{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Name:        "Default",
		IsDefault:   true,
		IsPublished: true,
		PublishedAt: &now,
		Version:     1,
		Stages:      []*models.Stage{notStarted, inProgress, blocked, waitingReview, done, cancelled},
		Transitions: []*models.Transition{
			edge(notStarted, inProgress, models.RoleTaskReceiver),
			edge(notStarted, cancelled, models.RoleTaskCreator),
			edge(inProgress, blocked, models.RoleTaskReceiver),
			edge(inProgress, waitingReview, models.RoleTaskReceiver),
			edge(inProgress, cancelled, models.RoleTaskCreator),
			edge(blocked, inProgress, models.RoleTaskReceiver),
			edge(blocked, cancelled, models.RoleTaskCreator),
			edge(waitingReview, done, models.RoleTaskCreator),
			edge(waitingReview, inProgress, models.RoleTaskCreator),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	workflow.HydrateTransitionNames()

	return workflow
}

// DefaultWorkflow returns the tenant's default workflow.
func (w *Workflow) DefaultWorkflow(ctx context.Context) (*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, workflow := range workflows {
		if workflow.IsDefault {
			workflow.SortStages()
			workflow.HydrateTransitionNames()

			return workflow, nil
		}
	}

	return nil, persistence.ErrWorkflowNotFound
}

func (w *Workflow) publishEvent(ctx context.Context, workflowID string, event eventbus.Event) {
	if w.eventBus == nil {
		return
	}

	if err := w.eventBus.Publish(ctx, workflowID, event); err != nil {
		w.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "workflow_id", workflowID, "error", err)
	}
}
