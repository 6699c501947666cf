package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
)

// WorkflowRepository stores each workflow as <root>/workflows/<id>.json.
// A single mutex serializes read-modify-write cycles so the version check in
// Update is race-free within one process.
type WorkflowRepository struct {
	root string
	mu   sync.Mutex
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: root}
}

func (wr *WorkflowRepository) dir() string {
	return path.Join(wr.root, "workflows")
}

func (wr *WorkflowRepository) pathFor(id string) string {
	return filepath.Join(wr.dir(), id+".json")
}

// List returns all workflows sorted by creation time, newest first.
func (wr *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if _, err := os.Stat(wr.dir()); os.IsNotExist(err) {
		return []*models.Workflow{}, nil
	}

	entries, err := fs.Glob(os.DirFS(wr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(entries))

	for _, entry := range entries {
		workflow, err := wr.read(filepath.Join(wr.dir(), entry))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID returns the workflow with the given id.
func (wr *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	return wr.get(id)
}

func (wr *WorkflowRepository) get(id string) (*models.Workflow, error) {
	workflow, err := wr.read(wr.pathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, err
	}

	return workflow, nil
}

// Create persists a brand-new workflow as-is.
func (wr *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if _, err := os.Stat(wr.pathFor(workflow.ID)); err == nil {
		return persistence.NewWorkflowError("Create", workflow.ID, persistence.ErrWorkflowAlreadyExists)
	}

	return wr.write(workflow)
}

// Update commits the workflow only when expectedVersion matches the stored
// version; on success the entity's version is bumped by exactly one.
func (wr *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow, expectedVersion int) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	stored, err := wr.get(workflow.ID)
	if err != nil {
		return err
	}

	if stored.Version != expectedVersion {
		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrVersionConflict)
	}

	workflow.Version = expectedVersion + 1

	return wr.write(workflow)
}

// Delete removes a workflow file. The default-workflow guard lives in the
// service layer, not here.
func (wr *WorkflowRepository) Delete(ctx context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := os.Remove(wr.pathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
		}

		return fmt.Errorf("failed to delete workflow file: %w", err)
	}

	return nil
}

func (wr *WorkflowRepository) read(filePath string) (*models.Workflow, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var workflow models.Workflow
	if err := json.Unmarshal(data, &workflow); err != nil {
		return nil, fmt.Errorf("failed to decode workflow file %s: %w", filePath, err)
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) write(workflow *models.Workflow) error {
	if err := os.MkdirAll(wr.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow %s: %w", workflow.ID, err)
	}

	if err := os.WriteFile(wr.pathFor(workflow.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write workflow file: %w", err)
	}

	return nil
}
