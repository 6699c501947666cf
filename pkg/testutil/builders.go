// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/rathbookie/stageflow/pkg/models"
)

// CreateTestStage creates a stage with default values that can be overridden.
func CreateTestStage(name string, order int, overrides ...func(*models.Stage)) *models.Stage {
	stage := &models.Stage{
		ID:    uuid.New().String(),
		Name:  name,
		Order: order,
	}

	for _, override := range overrides {
		override(stage)
	}

	return stage
}

// WithTerminal marks the stage terminal.
func WithTerminal() func(*models.Stage) {
	return func(s *models.Stage) {
		s.IsTerminal = true
	}
}

// CreateTestWorkflow creates a published workflow with the given stages and
// no transitions. Use AddTransition to connect them.
func CreateTestWorkflow(name string, stages ...*models.Stage) *models.Workflow {
	now := time.Now().UTC()

	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        name,
		IsPublished: true,
		PublishedAt: &now,
		Version:     1,
		Stages:      stages,
		Transitions: []*models.Transition{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	return workflow
}

// AddTransition connects two stages with a role-gated edge and returns it.
func AddTransition(workflow *models.Workflow, from, to *models.Stage, role models.Role) *models.Transition {
	transition := &models.Transition{
		ID:          uuid.New().String(),
		FromStage:   from.ID,
		ToStage:     to.ID,
		AllowedRole: role,
	}

	workflow.Transitions = append(workflow.Transitions, transition)
	workflow.HydrateTransitionNames()

	return transition
}

// CreateTestTask creates a task positioned on the given stage of a workflow.
func CreateTestTask(workflow *models.Workflow, stage *models.Stage, overrides ...func(*models.Task)) *models.Task {
	now := time.Now().UTC()

	task := &models.Task{
		ID:         uuid.New().String(),
		Title:      "Test Task",
		WorkflowID: workflow.ID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if stage != nil {
		task.StageID = stage.ID

		if status, ok := models.StageStatus(stage.Name); ok {
			task.Status = status
		}
	}

	for _, override := range overrides {
		override(task)
	}

	return task
}

// WithLegacyStatus positions the task by flat status only, with no stage
// reference, the way pre-graph tasks are stored.
func WithLegacyStatus(status string) func(*models.Task) {
	return func(t *models.Task) {
		t.StageID = ""
		t.Status = status
	}
}
