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

// TaskRepository stores each task as <root>/tasks/<id>.json.
type TaskRepository struct {
	root string
	mu   sync.Mutex
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(root string) *TaskRepository {
	return &TaskRepository{root: root}
}

func (tr *TaskRepository) dir() string {
	return path.Join(tr.root, "tasks")
}

func (tr *TaskRepository) pathFor(id string) string {
	return filepath.Join(tr.dir(), id+".json")
}

// GetByID returns the task with the given id.
func (tr *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.get(id)
}

func (tr *TaskRepository) get(id string) (*models.Task, error) {
	data, err := os.ReadFile(tr.pathFor(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
		}

		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task file for %s: %w", id, err)
	}

	return &task, nil
}

// ListByWorkflow returns every task bound to the given workflow, oldest first.
func (tr *TaskRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error) {
	tasks, err := tr.all()
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Task, 0, len(tasks))

	for _, task := range tasks {
		if task.WorkflowID == workflowID {
			filtered = append(filtered, task)
		}
	}

	return filtered, nil
}

// Create persists a new task as-is.
func (tr *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	return tr.write(task)
}

// Update commits the task only when expectedVersion matches the stored
// version; on success the entity's version is bumped by exactly one.
func (tr *TaskRepository) Update(ctx context.Context, task *models.Task, expectedVersion int) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	stored, err := tr.get(task.ID)
	if err != nil {
		return err
	}

	if stored.Version != expectedVersion {
		return persistence.NewTaskError("Update", task.ID, persistence.ErrVersionConflict)
	}

	task.Version = expectedVersion + 1

	return tr.write(task)
}

// CountByStage reports how many tasks of the workflow occupy each given stage.
func (tr *TaskRepository) CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int64, error) {
	tasks, err := tr.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(stageIDs))
	for _, id := range stageIDs {
		wanted[id] = true
	}

	counts := make(map[string]int64, len(stageIDs))

	for _, task := range tasks {
		if wanted[task.StageID] {
			counts[task.StageID]++
		}
	}

	return counts, nil
}

// CountByStatus reports how many tasks of the workflow carry each given flat
// status without a stage reference.
func (tr *TaskRepository) CountByStatus(ctx context.Context, workflowID string, statuses []string) (map[string]int64, error) {
	tasks, err := tr.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	counts := make(map[string]int64, len(statuses))

	for _, task := range tasks {
		if task.StageID == "" && wanted[task.Status] {
			counts[task.Status]++
		}
	}

	return counts, nil
}

func (tr *TaskRepository) all() ([]*models.Task, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if _, err := os.Stat(tr.dir()); os.IsNotExist(err) {
		return []*models.Task{}, nil
	}

	entries, err := fs.Glob(os.DirFS(tr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list task files: %w", err)
	}

	tasks := make([]*models.Task, 0, len(entries))

	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(tr.dir(), entry))
		if err != nil {
			return nil, err
		}

		var task models.Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to decode task file %s: %w", entry, err)
		}

		tasks = append(tasks, &task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	return tasks, nil
}

func (tr *TaskRepository) write(task *models.Task) error {
	if err := os.MkdirAll(tr.dir(), 0o755); err != nil {
		return fmt.Errorf("failed to create tasks directory: %w", err)
	}

	data, err := json.MarshalIndent(task, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}

	if err := os.WriteFile(tr.pathFor(task.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}

	return nil
}
