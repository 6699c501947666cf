// Package resolution computes, for a task and an acting role, the set of
// legal next stages from a published workflow graph. It is a pure read-only
// function over its inputs: it never mutates the graph or the task, and it
// fails closed whenever the graph or the task's stage cannot be resolved.
package resolution

import (
	"github.com/rathbookie/stageflow/pkg/models"
)

// Option is one legal next step for a task: the transition plus the
// destination's display name recomputed from the current stage set.
type Option struct {
	TransitionID string      `json:"transition_id"`
	ToStage      string      `json:"to_stage"`
	ToStageName  string      `json:"to_stage_name"`
	ToStatus     string      `json:"to_status,omitempty"`
	AllowedRole  models.Role `json:"allowed_role"`
}

// Resolve returns the legal next stages for the task under the given role.
//
// Ordering of the checks matters: a terminal current stage yields an empty
// result before the transition table is even consulted, and an unresolvable
// workflow or stage yields an empty result rather than "allow anything".
func Resolve(workflow *models.Workflow, task *models.Task, role models.Role) []Option {
	if workflow == nil || task == nil || !role.IsValid() {
		return []Option{}
	}

	current := task.CurrentStage(workflow)
	if current == nil {
		return []Option{}
	}

	if current.IsTerminal {
		return []Option{}
	}

	options := make([]Option, 0)

	for _, transition := range workflow.Transitions {
		if transition.FromStage != current.ID || transition.AllowedRole != role {
			continue
		}

		destination := workflow.StageByID(transition.ToStage)
		if destination == nil {
			continue
		}

		option := Option{
			TransitionID: transition.ID,
			ToStage:      destination.ID,
			ToStageName:  destination.Name,
			AllowedRole:  transition.AllowedRole,
		}

		if status, ok := models.StageStatus(destination.Name); ok {
			option.ToStatus = status
		}

		options = append(options, option)
	}

	return options
}

// Allows reports whether the role may move the task to the given destination
// stage. It applies the same fail-closed rules as Resolve.
func Allows(workflow *models.Workflow, task *models.Task, role models.Role, toStage string) bool {
	for _, option := range Resolve(workflow, task, role) {
		if option.ToStage == toStage {
			return true
		}
	}

	return false
}
