package services_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rathbookie/stageflow/pkg/cache"
	"github.com/rathbookie/stageflow/pkg/eventbus"
	"github.com/rathbookie/stageflow/pkg/events"
	"github.com/rathbookie/stageflow/pkg/mocks"
	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence/file"
	"github.com/rathbookie/stageflow/pkg/services"
)

func TestWorkflow_LifecycleEvents(t *testing.T) {
	t.Parallel()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	workflows := services.NewWorkflow(p, bus, cache.NewNoop(), logger)

	created, err := workflows.Create(t.Context(), services.CreateRequest{Name: "Hiring"})
	require.NoError(t, err)

	_, err = workflows.Publish(t.Context(), created.ID, services.PublishRequest{Version: created.Version})
	require.NoError(t, err)

	require.NoError(t, workflows.Delete(t.Context(), created.ID))

	var types []events.EventType

	for _, call := range bus.Calls {
		event, ok := call.Arguments.Get(2).(eventbus.Event)
		require.True(t, ok)

		types = append(types, event.GetType())
	}

	assert.Equal(t, []events.EventType{
		events.WorkflowCreatedEvent,
		events.WorkflowPublishedEvent,
		events.WorkflowDeletedEvent,
	}, types)
}

func TestTask_TransitionEvent(t *testing.T) {
	t.Parallel()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	workflows := services.NewWorkflow(p, nil, cache.NewNoop(), logger)
	tasks := services.NewTask(p, workflows, bus, logger)

	workflow, err := workflows.SeedDefault(t.Context())
	require.NoError(t, err)

	task, err := tasks.Create(t.Context(), services.CreateTaskRequest{Title: "Order laptops"})
	require.NoError(t, err)

	inProgress := workflow.StageByStatus(models.StatusInProgress)
	require.NotNil(t, inProgress)

	_, err = tasks.ApplyTransition(t.Context(), task.ID, models.RoleTaskReceiver, services.TransitionRequest{
		ToStage: inProgress.ID,
		Version: task.Version,
	})
	require.NoError(t, err)

	require.Len(t, bus.Calls, 1)

	transitioned, ok := bus.Calls[0].Arguments.Get(2).(events.TaskTransitioned)
	require.True(t, ok)
	assert.Equal(t, task.ID, transitioned.TaskID)
	assert.Equal(t, inProgress.ID, transitioned.ToStage)
	assert.Equal(t, models.RoleTaskReceiver, transitioned.Role)
}

func TestWorkflow_EventPublishFailureDoesNotFailOperation(t *testing.T) {
	t.Parallel()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	workflows := services.NewWorkflow(p, bus, cache.NewNoop(), logger)

	created, err := workflows.Create(t.Context(), services.CreateRequest{Name: "Hiring"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	bus.AssertExpectations(t)
}

func TestWorkflow_ListPropagatesStorageErrors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := mocks.NewMockPersistence()
	p.WorkflowRepo.On("List", mock.Anything).Return(nil, errors.New("disk gone"))

	workflows := services.NewWorkflow(p, nil, cache.NewNoop(), logger)

	_, err := workflows.List(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestWorkflow_HealthCheck(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := mocks.NewMockPersistence()
	p.On("HealthCheck", mock.Anything).Return(nil).Once()

	workflows := services.NewWorkflow(p, nil, cache.NewNoop(), logger)

	message, healthy := workflows.HealthCheck(t.Context())
	assert.True(t, healthy)
	assert.NotEmpty(t, message)

	p.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	_, healthy = workflows.HealthCheck(t.Context())
	assert.False(t, healthy)
}
