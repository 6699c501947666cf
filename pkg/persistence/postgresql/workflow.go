package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , name
  , is_default
  , is_published
  , published_at
  , version
  , stages
  , transitions
  , created_at
  , updated_at
`

// List returns all workflows, newest first.
func (r *WorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

// GetByID returns a workflow by its id.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE id = $1`

	workflow, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// Create inserts a brand-new workflow.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	stagesJSON, transitionsJSON, err := graphJSON(workflow)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workflows (id, name, is_default, is_published, published_at, version, stages, transitions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.Name,
		workflow.IsDefault,
		workflow.IsPublished,
		workflow.PublishedAt,
		workflow.Version,
		stagesJSON,
		transitionsJSON,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workflow: %w", err)
	}

	return nil
}

// Update commits the workflow only when expectedVersion matches the stored
// row's version; on success the row and entity move to expectedVersion+1.
// The version predicate in the WHERE clause is the commit-time check: when
// it misses and the row still exists, the caller lost the race.
func (r *WorkflowRepository) Update(ctx context.Context, workflow *models.Workflow, expectedVersion int) error {
	workflow.UpdatedAt = time.Now().UTC()

	stagesJSON, transitionsJSON, err := graphJSON(workflow)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflows
		SET name = $3
		  , is_published = $4
		  , published_at = $5
		  , version = version + 1
		  , stages = $6
		  , transitions = $7
		  , updated_at = $8
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		expectedVersion,
		workflow.Name,
		workflow.IsPublished,
		workflow.PublishedAt,
		stagesJSON,
		transitionsJSON,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		if _, err := r.GetByID(ctx, workflow.ID); err != nil {
			return err
		}

		return persistence.NewWorkflowError("Update", workflow.ID, persistence.ErrVersionConflict)
	}

	workflow.Version = expectedVersion + 1

	return nil
}

// Delete removes a workflow row.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*models.Workflow, error) {
	var (
		workflow        models.Workflow
		publishedAt     sql.NullTime
		stagesJSON      []byte
		transitionsJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.IsDefault,
		&workflow.IsPublished,
		&publishedAt,
		&workflow.Version,
		&stagesJSON,
		&transitionsJSON,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if publishedAt.Valid {
		workflow.PublishedAt = &publishedAt.Time
	}

	if err := json.Unmarshal(stagesJSON, &workflow.Stages); err != nil {
		return nil, fmt.Errorf("failed to decode stages: %w", err)
	}

	if err := json.Unmarshal(transitionsJSON, &workflow.Transitions); err != nil {
		return nil, fmt.Errorf("failed to decode transitions: %w", err)
	}

	return &workflow, nil
}

func graphJSON(workflow *models.Workflow) ([]byte, []byte, error) {
	stagesJSON, err := json.Marshal(workflow.Stages)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode stages: %w", err)
	}

	transitionsJSON, err := json.Marshal(workflow.Transitions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode transitions: %w", err)
	}

	return stagesJSON, transitionsJSON, nil
}
