package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
)

// TaskRepository handles task-related database operations.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

const taskColumns = `
	id
  , title
  , workflow_id
  , stage_id
  , status
  , blocked_reason
  , has_attachments
  , version
  , created_at
  , updated_at
`

// GetByID returns a task by its id.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTaskError("GetByID", id, persistence.ErrTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	return task, nil
}

// ListByWorkflow returns every task bound to the given workflow, oldest first.
func (r *TaskRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE workflow_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	now := time.Now().UTC()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}

	task.UpdatedAt = now

	query := `
		INSERT INTO tasks (id, title, workflow_id, stage_id, status, blocked_reason, has_attachments, version, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.WorkflowID,
		task.StageID,
		task.Status,
		task.BlockedReason,
		task.HasAttachments,
		task.Version,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// Update commits the task only when expectedVersion matches the stored row's
// version; on success the row and entity move to expectedVersion+1.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task, expectedVersion int) error {
	task.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE tasks
		SET title = $3
		  , stage_id = $4
		  , status = $5
		  , blocked_reason = $6
		  , has_attachments = $7
		  , version = version + 1
		  , updated_at = $8
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		task.ID,
		expectedVersion,
		task.Title,
		task.StageID,
		task.Status,
		task.BlockedReason,
		task.HasAttachments,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, task.ID); err != nil {
			return err
		}

		return persistence.NewTaskError("Update", task.ID, persistence.ErrVersionConflict)
	}

	task.Version = expectedVersion + 1

	return nil
}

// CountByStage reports how many tasks of the workflow occupy each given stage.
func (r *TaskRepository) CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(stageIDs))

	if len(stageIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT stage_id, COUNT(*)
		FROM tasks
		WHERE workflow_id = $1 AND stage_id = ANY($2)
		GROUP BY stage_id
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, pq.Array(stageIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by stage: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			stageID string
			count   int64
		)

		if err := rows.Scan(&stageID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}

		counts[stageID] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage counts: %w", err)
	}

	return counts, nil
}

// CountByStatus reports how many tasks of the workflow carry each given flat
// status without a stage reference.
func (r *TaskRepository) CountByStatus(ctx context.Context, workflowID string, statuses []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(statuses))

	if len(statuses) == 0 {
		return counts, nil
	}

	query := `
		SELECT status, COUNT(*)
		FROM tasks
		WHERE workflow_id = $1 AND stage_id = '' AND status = ANY($2)
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID, pq.Array(statuses))
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			status string
			count  int64
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}

		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		task       models.Task
		workflowID sql.NullString
	)

	err := row.Scan(
		&task.ID,
		&task.Title,
		&workflowID,
		&task.StageID,
		&task.Status,
		&task.BlockedReason,
		&task.HasAttachments,
		&task.Version,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.WorkflowID = workflowID.String

	return &task, nil
}
