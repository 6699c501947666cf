package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of
// persistence.WorkflowRepository.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) List(ctx context.Context) ([]*models.Workflow, error) {
	args := m.Called(ctx)

	workflows, _ := args.Get(0).([]*models.Workflow)

	return workflows, args.Error(1)
}

func (m *MockWorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	args := m.Called(ctx, id)

	workflow, _ := args.Get(0).(*models.Workflow)

	return workflow, args.Error(1)
}

func (m *MockWorkflowRepository) Create(ctx context.Context, workflow *models.Workflow) error {
	args := m.Called(ctx, workflow)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Update(ctx context.Context, workflow *models.Workflow, expectedVersion int) error {
	args := m.Called(ctx, workflow, expectedVersion)

	return args.Error(0)
}

func (m *MockWorkflowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockTaskRepository is a mock implementation of persistence.TaskRepository.
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	args := m.Called(ctx, id)

	task, _ := args.Get(0).(*models.Task)

	return task, args.Error(1)
}

func (m *MockTaskRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Task, error) {
	args := m.Called(ctx, workflowID)

	tasks, _ := args.Get(0).([]*models.Task)

	return tasks, args.Error(1)
}

func (m *MockTaskRepository) Create(ctx context.Context, task *models.Task) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

func (m *MockTaskRepository) Update(ctx context.Context, task *models.Task, expectedVersion int) error {
	args := m.Called(ctx, task, expectedVersion)

	return args.Error(0)
}

func (m *MockTaskRepository) CountByStage(ctx context.Context, workflowID string, stageIDs []string) (map[string]int64, error) {
	args := m.Called(ctx, workflowID, stageIDs)

	counts, _ := args.Get(0).(map[string]int64)

	return counts, args.Error(1)
}

func (m *MockTaskRepository) CountByStatus(ctx context.Context, workflowID string, statuses []string) (map[string]int64, error) {
	args := m.Called(ctx, workflowID, statuses)

	counts, _ := args.Get(0).(map[string]int64)

	return counts, args.Error(1)
}

// MockPersistence is a mock implementation of persistence.Persistence.
type MockPersistence struct {
	mock.Mock

	WorkflowRepo *MockWorkflowRepository
	TaskRepo     *MockTaskRepository
}

// NewMockPersistence wires fresh repository mocks into a persistence mock.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WorkflowRepo: &MockWorkflowRepository{},
		TaskRepo:     &MockTaskRepository{},
	}
}

func (m *MockPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return m.WorkflowRepo
}

func (m *MockPersistence) TaskRepository() persistence.TaskRepository {
	return m.TaskRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
