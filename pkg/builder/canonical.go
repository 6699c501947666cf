package builder

import (
	"encoding/json"
	"sort"

	"github.com/rathbookie/stageflow/pkg/models"
)

// canonicalStage keeps only the fields whose change makes a draft worth
// saving. Denormalized data and timestamps are excluded.
type canonicalStage struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Order               int    `json:"order"`
	IsTerminal          bool   `json:"is_terminal"`
	RequiresAttachments bool   `json:"requires_attachments"`
	RequiresApproval    bool   `json:"requires_approval"`
}

// canonicalTransition identifies a transition by its semantic content, not
// its id or slice position. Display names are derived data and ignored.
type canonicalTransition struct {
	FromStage   string      `json:"from_stage"`
	ToStage     string      `json:"to_stage"`
	AllowedRole models.Role `json:"allowed_role"`
}

func (c canonicalTransition) key() string {
	return c.FromStage + ":" + c.ToStage + ":" + string(c.AllowedRole)
}

type canonicalWorkflow struct {
	Name        string                `json:"name"`
	Stages      []canonicalStage      `json:"stages"`
	Transitions []canonicalTransition `json:"transitions"`
}

// canonicalize reduces a workflow to a stable string form for dirty
// comparison. Stages are sorted by order and transitions by their
// from:to:role key, so reordering slice entries without changing content
// never flips the dirty bit, while any field-level change does.
func canonicalize(workflow *models.Workflow) string {
	if workflow == nil {
		return ""
	}

	canonical := canonicalWorkflow{
		Name:        workflow.Name,
		Stages:      make([]canonicalStage, 0, len(workflow.Stages)),
		Transitions: make([]canonicalTransition, 0, len(workflow.Transitions)),
	}

	for _, stage := range workflow.Stages {
		canonical.Stages = append(canonical.Stages, canonicalStage{
			ID:                  stage.ID,
			Name:                stage.Name,
			Order:               stage.Order,
			IsTerminal:          stage.IsTerminal,
			RequiresAttachments: stage.RequiresAttachments,
			RequiresApproval:    stage.RequiresApproval,
		})
	}

	sort.Slice(canonical.Stages, func(i, j int) bool {
		return canonical.Stages[i].Order < canonical.Stages[j].Order
	})

	for _, transition := range workflow.Transitions {
		canonical.Transitions = append(canonical.Transitions, canonicalTransition{
			FromStage:   transition.FromStage,
			ToStage:     transition.ToStage,
			AllowedRole: transition.AllowedRole,
		})
	}

	sort.Slice(canonical.Transitions, func(i, j int) bool {
		return canonical.Transitions[i].key() < canonical.Transitions[j].key()
	})

	data, err := json.Marshal(canonical)
	if err != nil {
		// Marshaling plain structs of strings, ints, and bools cannot fail.
		return ""
	}

	return string(data)
}
