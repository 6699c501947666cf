// Package models defines the core domain models for tenant task lifecycles:
// workflows, their stage graphs, role-gated transitions, and the tasks that
// move through them.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks ids that exist only inside an editing session and have
// never been persisted. The wire format for such stages is `"id": null`.
const LocalIDPrefix = "local-"

// NewLocalID returns a fresh session-scoped stage or transition id.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether an id was generated locally and is not persisted.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Structural invariant violations.
var (
	ErrNoStages            = errors.New("workflow must have at least one stage")
	ErrOrderNotDense       = errors.New("stage orders must form a dense 0..N-1 permutation")
	ErrDanglingTransition  = errors.New("transition references a stage not in the workflow")
	ErrInvalidRole         = errors.New("transition role is not a valid role")
	ErrDuplicateStageID    = errors.New("duplicate stage id")
	ErrStageNameRequired   = errors.New("stage name is required")
)

// Stage is a named node in a workflow's lifecycle graph.
type Stage struct {
	ID                  string `json:"id"`
	Name                string `json:"name"                 validate:"required,min=1"`
	Order               int    `json:"order"`
	IsTerminal          bool   `json:"is_terminal"`
	RequiresAttachments bool   `json:"requires_attachments"`
	RequiresApproval    bool   `json:"requires_approval"`
}

// Transition is a directed, role-scoped edge between two stages. It holds
// stage ids only; the display names are denormalized and must be recomputed
// from the current stage set whenever a stage is renamed or removed.
type Transition struct {
	ID            string `json:"id"`
	FromStage     string `json:"from_stage"`
	FromStageName string `json:"from_stage_name"`
	ToStage       string `json:"to_stage"`
	ToStageName   string `json:"to_stage_name"`
	AllowedRole   Role   `json:"allowed_role"`
}

// Workflow is the named, versioned container of stages and transitions
// defining a tenant task lifecycle. Version is the optimistic-lock token:
// it increases by exactly one on every accepted save or publish.
type Workflow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"         validate:"required,min=2"`
	IsDefault   bool          `json:"is_default"`
	IsPublished bool          `json:"is_published"`
	PublishedAt *time.Time    `json:"published_at"`
	Version     int           `json:"version"`
	Stages      []*Stage      `json:"stages"`
	Transitions []*Transition `json:"transitions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// StageByID returns the stage with the given id, or nil.
func (w *Workflow) StageByID(id string) *Stage {
	for _, stage := range w.Stages {
		if stage.ID == id {
			return stage
		}
	}

	return nil
}

// StageByStatus returns the stage whose name maps onto the given canonical
// status value, or nil. Used to resolve legacy flat-status tasks onto the
// stage graph.
func (w *Workflow) StageByStatus(status string) *Stage {
	for _, stage := range w.Stages {
		if mapped, ok := StageStatus(stage.Name); ok && mapped == status {
			return stage
		}
	}

	return nil
}

// SortStages orders the stage slice by the stages' Order fields.
func (w *Workflow) SortStages() {
	sort.SliceStable(w.Stages, func(i, j int) bool {
		return w.Stages[i].Order < w.Stages[j].Order
	})
}

// NormalizeOrders sorts stages by their current order and reassigns each
// stage's Order to its index, restoring the dense 0..N-1 permutation after
// a reorder or removal.
func (w *Workflow) NormalizeOrders() {
	w.SortStages()

	for i, stage := range w.Stages {
		stage.Order = i
	}
}

// HydrateTransitionNames recomputes every transition's denormalized display
// names from the current stage set. Stale names from a previous rename are
// overwritten; names for endpoints that no longer resolve are left as-is.
func (w *Workflow) HydrateTransitionNames() {
	for _, transition := range w.Transitions {
		if from := w.StageByID(transition.FromStage); from != nil {
			transition.FromStageName = from.Name
		}

		if to := w.StageByID(transition.ToStage); to != nil {
			transition.ToStageName = to.Name
		}
	}
}

// RemoveStage deletes the stage with the given id together with every
// transition naming it as source or destination, then re-derives the dense
// ordering. It reports whether the stage existed. Removing the last stage is
// the caller's refusal to enforce; RemoveStage itself only guarantees no
// dangling references survive.
func (w *Workflow) RemoveStage(stageID string) bool {
	index := -1

	for i, stage := range w.Stages {
		if stage.ID == stageID {
			index = i

			break
		}
	}

	if index < 0 {
		return false
	}

	w.Stages = append(w.Stages[:index], w.Stages[index+1:]...)

	kept := w.Transitions[:0]
	for _, transition := range w.Transitions {
		if transition.FromStage == stageID || transition.ToStage == stageID {
			continue
		}

		kept = append(kept, transition)
	}

	w.Transitions = kept
	w.NormalizeOrders()

	return true
}

// Validate checks the workflow's structural invariants: at least one stage,
// a dense gapless ordering, unique stage ids, named stages, resolvable
// transition endpoints, and valid roles.
func (w *Workflow) Validate() error {
	if len(w.Stages) == 0 {
		return ErrNoStages
	}

	seen := make(map[string]bool, len(w.Stages))
	orders := make(map[int]bool, len(w.Stages))

	for _, stage := range w.Stages {
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("stage %q: %w", stage.ID, ErrStageNameRequired)
		}

		if seen[stage.ID] {
			return fmt.Errorf("stage %q: %w", stage.ID, ErrDuplicateStageID)
		}

		seen[stage.ID] = true

		if stage.Order < 0 || stage.Order >= len(w.Stages) || orders[stage.Order] {
			return fmt.Errorf("stage %q order %d: %w", stage.ID, stage.Order, ErrOrderNotDense)
		}

		orders[stage.Order] = true
	}

	for _, transition := range w.Transitions {
		if !seen[transition.FromStage] || !seen[transition.ToStage] {
			return fmt.Errorf("transition %q (%s -> %s): %w",
				transition.ID, transition.FromStage, transition.ToStage, ErrDanglingTransition)
		}

		if !transition.AllowedRole.IsValid() {
			return fmt.Errorf("transition %q role %q: %w", transition.ID, transition.AllowedRole, ErrInvalidRole)
		}
	}

	return nil
}

// Clone returns a deep copy of the workflow so edits on the copy can never
// alias the original's stages or transitions.
func (w *Workflow) Clone() *Workflow {
	clone := &Workflow{
		ID:          w.ID,
		Name:        w.Name,
		IsDefault:   w.IsDefault,
		IsPublished: w.IsPublished,
		Version:     w.Version,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}

	if w.PublishedAt != nil {
		publishedAt := *w.PublishedAt
		clone.PublishedAt = &publishedAt
	}

	clone.Stages = make([]*Stage, len(w.Stages))
	for i, stage := range w.Stages {
		copied := *stage
		clone.Stages[i] = &copied
	}

	clone.Transitions = make([]*Transition, len(w.Transitions))
	for i, transition := range w.Transitions {
		copied := *transition
		clone.Transitions[i] = &copied
	}

	return clone
}
