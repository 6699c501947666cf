package builder

import (
	"context"
	"fmt"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/services"
)

// State is the observable outcome of the most recent network operation. The
// distinction between Conflict and StructuralError is never collapsed; they
// demand different user recoveries.
type State string

const (
	StateIdle            State = "idle"
	StatePending         State = "pending"
	StateConflict        State = "conflict"
	StateStructuralError State = "structural-error"
	StateCommitted       State = "committed"
)

// WorkflowAPI is the server surface the syncer drives. The workflow service
// satisfies it directly for in-process use; an HTTP client satisfies it for
// remote use.
type WorkflowAPI interface {
	Create(ctx context.Context, req services.CreateRequest) (*models.Workflow, error)
	SaveDraft(ctx context.Context, workflowID string, req services.SaveDraftRequest) (*models.Workflow, error)
	Publish(ctx context.Context, workflowID string, req services.PublishRequest) (*models.Workflow, error)
	Delete(ctx context.Context, workflowID string) error
}

// Syncer moves a session's draft to durable storage under optimistic
// concurrency. It never retries and never merges: a conflict leaves the
// local edits untouched for the user to resolve, and a structural rejection
// reports the blocking stages and changes nothing anywhere.
type Syncer struct {
	api     WorkflowAPI
	session *Session

	state   State
	blocked []persistence.BlockedStage
}

// NewSyncer creates a syncer over the given session.
func NewSyncer(api WorkflowAPI, session *Session) *Syncer {
	return &Syncer{
		api:     api,
		session: session,
		state:   StateIdle,
	}
}

// State returns the outcome of the most recent operation.
func (s *Syncer) State() State {
	return s.state
}

// BlockedStages returns the stages that caused the last structural
// rejection, by name and task count. Empty unless State is
// StateStructuralError.
func (s *Syncer) BlockedStages() []persistence.BlockedStage {
	return s.blocked
}

// SaveDraft submits the session's graph with the version last observed. On
// success the session is replaced with the server's canonical copy and the
// dirty baseline rebases; on conflict or structural rejection local edits
// are left exactly as they were.
func (s *Syncer) SaveDraft(ctx context.Context) error {
	workflow := s.session.Workflow()
	if workflow == nil {
		return ErrNoWorkflow
	}

	s.state = StatePending
	s.blocked = nil

	canonical, err := s.api.SaveDraft(ctx, workflow.ID, buildSaveRequest(workflow))
	if err != nil {
		return s.fail(err)
	}

	s.session.Replace(canonical)
	s.state = StateCommitted

	return nil
}

// Publish flips the workflow to published. A dirty session is saved first;
// publish is never attempted against unsaved local edits. Save and publish
// remain two independent calls: when the save commits and the publish then
// conflicts, the save's effect stands.
func (s *Syncer) Publish(ctx context.Context) error {
	if s.session.Workflow() == nil {
		return ErrNoWorkflow
	}

	if s.session.Dirty() {
		if err := s.SaveDraft(ctx); err != nil {
			return err
		}
	}

	s.state = StatePending
	s.blocked = nil

	workflow := s.session.Workflow()

	canonical, err := s.api.Publish(ctx, workflow.ID, services.PublishRequest{Version: workflow.Version})
	if err != nil {
		return s.fail(err)
	}

	s.session.Replace(canonical)
	s.state = StateCommitted

	return nil
}

// CreateWorkflow creates a workflow server-side and loads it into the
// session. A dirty session refuses the switch unless discardChanges is set.
func (s *Syncer) CreateWorkflow(ctx context.Context, name string, discardChanges bool) (*models.Workflow, error) {
	if s.session.Dirty() && !discardChanges {
		return nil, ErrSessionDirty
	}

	s.state = StatePending
	s.blocked = nil

	workflow, err := s.api.Create(ctx, services.CreateRequest{Name: name})
	if err != nil {
		return nil, s.fail(err)
	}

	if err := s.session.Select(workflow, true); err != nil {
		return nil, s.fail(err)
	}

	s.state = StateCommitted

	return workflow, nil
}

// DeleteWorkflow irreversibly deletes a workflow. The default workflow is
// refused server-side; the caller is expected to have gathered explicit
// user confirmation and must select a fallback workflow afterwards.
func (s *Syncer) DeleteWorkflow(ctx context.Context, workflowID string) error {
	s.state = StatePending
	s.blocked = nil

	if err := s.api.Delete(ctx, workflowID); err != nil {
		return s.fail(err)
	}

	if current := s.session.Workflow(); current != nil && current.ID == workflowID {
		s.session.workflow = nil
		s.session.selectedStage = ""
		s.session.Rebase()
	}

	s.state = StateCommitted

	return nil
}

// fail maps an operation error onto the observable state. Conflicts and
// structural rejections get their own states; anything else returns the
// syncer to idle as a transient failure.
func (s *Syncer) fail(err error) error {
	switch {
	case persistence.IsVersionConflict(err):
		s.state = StateConflict

		return fmt.Errorf("changed elsewhere, discard or reload: %w", err)
	default:
		if blocked, ok := persistence.AsStageBlocked(err); ok {
			s.state = StateStructuralError
			s.blocked = blocked.BlockedStages

			return err
		}

		s.state = StateIdle

		return err
	}
}

// buildSaveRequest flattens the session graph into the draft-save payload.
// Stages that were created locally keep their session-local id as the create
// marker. Transitions are submitted only when both endpoints resolve in the
// current stage set; edges referencing stale ids are dropped, not sent.
func buildSaveRequest(workflow *models.Workflow) services.SaveDraftRequest {
	req := services.SaveDraftRequest{
		Name:        workflow.Name,
		Version:     workflow.Version,
		Stages:      make([]services.StageSubmission, 0, len(workflow.Stages)),
		Transitions: make([]services.TransitionSubmission, 0, len(workflow.Transitions)),
	}

	valid := make(map[string]bool, len(workflow.Stages))

	for _, stage := range workflow.Stages {
		valid[stage.ID] = true

		submission := services.StageSubmission{
			Name:                stage.Name,
			Order:               stage.Order,
			IsTerminal:          stage.IsTerminal,
			RequiresAttachments: stage.RequiresAttachments,
			RequiresApproval:    stage.RequiresApproval,
		}

		id := stage.ID
		submission.ID = &id

		req.Stages = append(req.Stages, submission)
	}

	for _, transition := range workflow.Transitions {
		if !valid[transition.FromStage] || !valid[transition.ToStage] {
			continue
		}

		submission := services.TransitionSubmission{
			FromStage:   transition.FromStage,
			ToStage:     transition.ToStage,
			AllowedRole: transition.AllowedRole,
		}

		if !models.IsLocalID(transition.ID) {
			id := transition.ID
			submission.ID = &id
		}

		req.Transitions = append(req.Transitions, submission)
	}

	return req
}
