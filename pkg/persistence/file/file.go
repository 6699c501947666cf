// Package file provides file-based persistence for workflows and tasks.
// It is intended for development and tests; every entity is one JSON file.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/rathbookie/stageflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	taskRepo     *TaskRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix on the root is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot),
		taskRepo:     NewTaskRepository(cleanRoot),
	}
}

// WorkflowRepository returns the workflow repository implementation.
func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

// TaskRepository returns the task repository implementation.
func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return fp.taskRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. Nothing to release for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
