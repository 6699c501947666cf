// Package builder implements the client half of the workflow editor: an
// in-memory editing session over one workflow graph, dirty detection against
// a canonical baseline, and the save/publish protocol with its explicit
// conflict and structural-error outcomes.
//
// The session is single-threaded by design. All mutations happen on one
// in-memory copy between network calls; there is no internal locking because
// there is no concurrent local mutation path.
package builder

import (
	"errors"

	"github.com/rathbookie/stageflow/pkg/models"
)

// Local structural refusals. None of these consume a version or touch the
// network; the session state is unchanged when they are returned.
var (
	ErrNoWorkflow         = errors.New("no workflow selected")
	ErrSessionDirty       = errors.New("session has unsaved changes")
	ErrLastStage          = errors.New("cannot delete the only stage")
	ErrNeedTwoStages      = errors.New("at least two stages are required for a transition")
	ErrStageNotFound      = errors.New("stage not in session")
	ErrTransitionNotFound = errors.New("transition not in session")
)

// Session holds one workflow's graph under local edit. Edits never change the
// version stamp; only an accepted save or publish does that, via the syncer.
type Session struct {
	workflow      *models.Workflow
	baseline      string
	selectedStage string
}

// NewSession creates an empty session with no workflow selected.
func NewSession() *Session {
	return &Session{}
}

// Workflow returns the graph under edit, or nil.
func (s *Session) Workflow() *models.Workflow {
	return s.workflow
}

// SelectedStage returns the stage currently selected for configuration, or
// nil.
func (s *Session) SelectedStage() *models.Stage {
	if s.workflow == nil || s.selectedStage == "" {
		return nil
	}

	return s.workflow.StageByID(s.selectedStage)
}

// SelectStage marks a stage as the one under configuration.
func (s *Session) SelectStage(stageID string) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	if s.workflow.StageByID(stageID) == nil {
		return ErrStageNotFound
	}

	s.selectedStage = stageID

	return nil
}

// Select loads a workflow into the session, capturing the dirty baseline.
// When the current session is dirty the switch is refused unless the caller
// explicitly confirms discarding the unsaved edits.
func (s *Session) Select(workflow *models.Workflow, discardChanges bool) error {
	if s.Dirty() && !discardChanges {
		return ErrSessionDirty
	}

	s.workflow = workflow.Clone()
	s.workflow.SortStages()
	s.selectedStage = ""
	s.Rebase()

	return nil
}

// Replace swaps in the canonical workflow returned by an accepted save or
// publish and rebases the dirty baseline. Unlike Select it never refuses;
// the server copy supersedes local state by definition.
func (s *Session) Replace(workflow *models.Workflow) {
	selected := s.selectedStage

	s.workflow = workflow.Clone()
	s.workflow.SortStages()
	s.selectedStage = ""

	if selected != "" && s.workflow.StageByID(selected) != nil {
		s.selectedStage = selected
	}

	s.Rebase()
}

// Rebase captures the current graph as the not-dirty reference point.
func (s *Session) Rebase() {
	s.baseline = canonicalize(s.workflow)
}

// Dirty reports whether the graph differs semantically from the baseline.
func (s *Session) Dirty() bool {
	if s.workflow == nil {
		return false
	}

	return canonicalize(s.workflow) != s.baseline
}

// SetName renames the workflow.
func (s *Session) SetName(name string) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	s.workflow.Name = name

	return nil
}

// StagePatch carries field-level stage edits; nil fields are left untouched.
type StagePatch struct {
	Name                *string
	IsTerminal          *bool
	RequiresAttachments *bool
	RequiresApproval    *bool
}

// UpdateStage applies a patch to one stage. A rename invalidates the
// denormalized names on every transition touching the stage, so they are
// recomputed immediately.
func (s *Session) UpdateStage(stageID string, patch StagePatch) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	stage := s.workflow.StageByID(stageID)
	if stage == nil {
		return ErrStageNotFound
	}

	if patch.Name != nil {
		stage.Name = *patch.Name
	}

	if patch.IsTerminal != nil {
		stage.IsTerminal = *patch.IsTerminal
	}

	if patch.RequiresAttachments != nil {
		stage.RequiresAttachments = *patch.RequiresAttachments
	}

	if patch.RequiresApproval != nil {
		stage.RequiresApproval = *patch.RequiresApproval
	}

	s.workflow.HydrateTransitionNames()

	return nil
}

// AddStage appends a new stage with a session-local id at the end of the
// ordering and returns it.
func (s *Session) AddStage() (*models.Stage, error) {
	if s.workflow == nil {
		return nil, ErrNoWorkflow
	}

	stage := &models.Stage{
		ID:    models.NewLocalID(),
		Name:  "New Stage",
		Order: len(s.workflow.Stages),
	}

	s.workflow.Stages = append(s.workflow.Stages, stage)

	return stage, nil
}

// DeleteStage removes a stage, every transition referencing it, and restores
// the dense ordering. Deleting the only stage is refused locally. If the
// deleted stage was selected, selection falls back to the first remaining
// stage.
func (s *Session) DeleteStage(stageID string) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	if len(s.workflow.Stages) <= 1 {
		return ErrLastStage
	}

	if !s.workflow.RemoveStage(stageID) {
		return ErrStageNotFound
	}

	if s.selectedStage == stageID {
		s.selectedStage = ""
		if len(s.workflow.Stages) > 0 {
			s.selectedStage = s.workflow.Stages[0].ID
		}
	}

	return nil
}

// ReorderStage splices the moved stage to the target stage's position and
// reassigns every order to its new index. Moving a stage onto itself is a
// silent no-op.
func (s *Session) ReorderStage(movedID, targetID string) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	if movedID == targetID {
		return nil
	}

	s.workflow.SortStages()

	movedIndex, targetIndex := -1, -1

	for i, stage := range s.workflow.Stages {
		switch stage.ID {
		case movedID:
			movedIndex = i
		case targetID:
			targetIndex = i
		}
	}

	if movedIndex < 0 || targetIndex < 0 {
		return ErrStageNotFound
	}

	moved := s.workflow.Stages[movedIndex]
	stages := append(s.workflow.Stages[:movedIndex], s.workflow.Stages[movedIndex+1:]...)

	stages = append(stages, nil)
	copy(stages[targetIndex+1:], stages[targetIndex:])
	stages[targetIndex] = moved

	s.workflow.Stages = stages

	for i, stage := range s.workflow.Stages {
		stage.Order = i
	}

	return nil
}

// AddTransition appends a transition defaulting to the first two stages in
// order, allowed for the task creator. It requires at least two stages.
func (s *Session) AddTransition() (*models.Transition, error) {
	if s.workflow == nil {
		return nil, ErrNoWorkflow
	}

	if len(s.workflow.Stages) < 2 {
		return nil, ErrNeedTwoStages
	}

	s.workflow.SortStages()

	transition := &models.Transition{
		ID:          models.NewLocalID(),
		FromStage:   s.workflow.Stages[0].ID,
		ToStage:     s.workflow.Stages[1].ID,
		AllowedRole: models.RoleTaskCreator,
	}

	s.workflow.Transitions = append(s.workflow.Transitions, transition)
	s.workflow.HydrateTransitionNames()

	return transition, nil
}

// TransitionPatch carries field-level transition edits; nil fields are left
// untouched.
type TransitionPatch struct {
	FromStage   *string
	ToStage     *string
	AllowedRole *models.Role
}

// UpdateTransition applies a patch to one transition. Endpoint changes
// recompute the denormalized display names from the current stage set.
func (s *Session) UpdateTransition(transitionID string, patch TransitionPatch) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	var transition *models.Transition

	for _, candidate := range s.workflow.Transitions {
		if candidate.ID == transitionID {
			transition = candidate

			break
		}
	}

	if transition == nil {
		return ErrTransitionNotFound
	}

	if patch.FromStage != nil {
		transition.FromStage = *patch.FromStage
	}

	if patch.ToStage != nil {
		transition.ToStage = *patch.ToStage
	}

	if patch.AllowedRole != nil {
		transition.AllowedRole = *patch.AllowedRole
	}

	s.workflow.HydrateTransitionNames()

	return nil
}

// RemoveTransition deletes a transition from the session.
func (s *Session) RemoveTransition(transitionID string) error {
	if s.workflow == nil {
		return ErrNoWorkflow
	}

	for i, transition := range s.workflow.Transitions {
		if transition.ID == transitionID {
			s.workflow.Transitions = append(s.workflow.Transitions[:i], s.workflow.Transitions[i+1:]...)

			return nil
		}
	}

	return ErrTransitionNotFound
}
