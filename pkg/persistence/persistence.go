// Package persistence provides the data storage abstraction for workflow
// definitions and the task facets this service owns.
package persistence

import (
	"context"

	"github.com/rathbookie/stageflow/pkg/models"
)

// WorkflowRepository stores workflow definitions. Update is the optimistic
// concurrency commit point: it only succeeds when expectedVersion equals the
// stored version, and on success bumps the entity's version by exactly one.
type WorkflowRepository interface {
	List(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Create(ctx context.Context, workflow *models.Workflow) error
	Update(ctx context.Context, workflow *models.Workflow, expectedVersion int) error
	Delete(ctx context.Context, id string) error
}

// TaskRepository stores tasks. Update follows the same version-stamp
// discipline as WorkflowRepository.Update. CountByStage reports how many
// tasks currently occupy each of the given stages by explicit stage
// reference; CountByStatus reports how many legacy tasks (no stage
// reference) carry each of the given flat status values. Together they back
// the structural rejection of stage deletions.
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error)
	Create(ctx context.Context, task *models.Task) error
	Update(ctx context.Context, task *models.Task, expectedVersion int) error
	CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int64, error)
	CountByStatus(ctx context.Context, workflowID string, statuses []string) (map[string]int64, error)
}

// Persistence bundles the repositories behind one backend (file, postgres).
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TaskRepository() TaskRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
