package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rathbookie/stageflow/pkg/cache"
	"github.com/rathbookie/stageflow/pkg/models"
	"github.com/rathbookie/stageflow/pkg/persistence/file"
	"github.com/rathbookie/stageflow/pkg/services"
	"github.com/rathbookie/stageflow/pkg/web"
)

func setupApp(t *testing.T) (*fiber.App, *services.Workflow, *services.Task) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	workflowService := services.NewWorkflow(p, nil, cache.NewNoop(), logger)
	taskService := services.NewTask(p, workflowService, nil, logger)

	app := fiber.New()
	web.NewAPIHandlers(workflowService, taskService).RegisterRoutes(app)

	return app, workflowService, taskService
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NoError(t, resp.Body.Close())

	return out
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupApp(t)

	resp := doJSON(t, app, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWorkflowLifecycle(t *testing.T) {
	t.Parallel()

	app, _, _ := setupApp(t)

	resp := doJSON(t, app, http.MethodPost, "/workflows", fiber.Map{"name": "Hiring"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.Workflow](t, resp)
	assert.Equal(t, 1, created.Version)
	require.Len(t, created.Stages, 1)

	// Save a draft that adds a stage and a transition to it.
	draft := fiber.Map{
		"version": created.Version,
		"stages": []fiber.Map{
			{"id": created.Stages[0].ID, "name": created.Stages[0].Name, "order": 0},
			{"id": nil, "name": "Screening", "order": 1},
		},
		"transitions": []fiber.Map{},
	}

	resp = doJSON(t, app, http.MethodPatch, "/workflows/"+created.ID+"/builder", draft, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	saved := decode[models.Workflow](t, resp)
	assert.Equal(t, 2, saved.Version)
	require.Len(t, saved.Stages, 2)

	// Replaying the same stamp is a conflict.
	resp = doJSON(t, app, http.MethodPatch, "/workflows/"+created.ID+"/builder", draft, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/workflows/"+created.ID+"/publish", fiber.Map{"version": saved.Version}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	published := decode[models.Workflow](t, resp)
	assert.True(t, published.IsPublished)
	assert.Equal(t, 3, published.Version)

	resp = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp = doJSON(t, app, http.MethodDelete, "/workflows/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSaveDraft_MalformedPayload(t *testing.T) {
	t.Parallel()

	app, _, _ := setupApp(t)

	resp := doJSON(t, app, http.MethodPost, "/workflows", fiber.Map{"name": "Hiring"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.Workflow](t, resp)

	// Missing the stages array entirely; refused by the schema check.
	resp = doJSON(t, app, http.MethodPatch, "/workflows/"+created.ID+"/builder", fiber.Map{"version": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSaveDraft_BlockedStages(t *testing.T) {
	t.Parallel()

	app, workflowService, taskService := setupApp(t)

	resp := doJSON(t, app, http.MethodPost, "/workflows", fiber.Map{"name": "Hiring"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[models.Workflow](t, resp)

	saved, err := workflowService.SaveDraft(t.Context(), created.ID, services.SaveDraftRequest{
		Version: created.Version,
		Stages: []services.StageSubmission{
			{ID: &created.Stages[0].ID, Name: created.Stages[0].Name, Order: 0},
			{Name: "Screening", Order: 1},
		},
	})
	require.NoError(t, err)

	screening := saved.Stages[1]

	for range 2 {
		_, err := taskService.Create(t.Context(), services.CreateTaskRequest{
			Title:      "Candidate",
			WorkflowID: created.ID,
			StageID:    screening.ID,
		})
		require.NoError(t, err)
	}

	// Dropping the occupied stage is a structural rejection, not a conflict.
	resp = doJSON(t, app, http.MethodPatch, "/workflows/"+created.ID+"/builder", fiber.Map{
		"version": saved.Version,
		"stages": []fiber.Map{
			{"id": saved.Stages[0].ID, "name": saved.Stages[0].Name, "order": 0},
		},
	}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	blocked := decode[web.StageBlockedResponse](t, resp)
	require.Len(t, blocked.BlockedStages, 1)
	assert.Equal(t, "Screening", blocked.BlockedStages[0].Name)
	assert.Equal(t, int64(2), blocked.BlockedStages[0].TaskCount)
}

func TestTaskEndpoints(t *testing.T) {
	t.Parallel()

	app, workflowService, _ := setupApp(t)

	workflow, err := workflowService.SeedDefault(t.Context())
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodPost, "/tasks", fiber.Map{"title": "Order laptops"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	task := decode[models.Task](t, resp)
	assert.Equal(t, workflow.ID, task.WorkflowID)
	assert.Equal(t, 1, task.Version)

	resp = doJSON(t, app, http.MethodGet, "/tasks/"+task.ID, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// The transitions endpoint needs a valid active role.
	resp = doJSON(t, app, http.MethodGet, "/tasks/"+task.ID+"/transitions", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	receiver := map[string]string{web.ActiveRoleHeader: "TASK_RECEIVER"}

	resp = doJSON(t, app, http.MethodGet, "/tasks/"+task.ID+"/transitions", nil, receiver)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	options := decode[web.TransitionOptionsResponse](t, resp)
	require.Len(t, options.Results, 1)
	assert.Equal(t, "In Progress", options.Results[0].ToStageName)

	// The creator may not start work on the default graph.
	creator := map[string]string{web.ActiveRoleHeader: "TASK_CREATOR"}

	resp = doJSON(t, app, http.MethodPatch, "/tasks/"+task.ID, fiber.Map{
		"to_stage": options.Results[0].ToStage,
		"version":  task.Version,
	}, creator)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPatch, "/tasks/"+task.ID, fiber.Map{
		"to_stage": options.Results[0].ToStage,
		"version":  task.Version,
	}, receiver)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	moved := decode[models.Task](t, resp)
	assert.Equal(t, options.Results[0].ToStage, moved.StageID)
	assert.Equal(t, models.StatusInProgress, moved.Status)
	assert.Equal(t, 2, moved.Version)

	// A second writer holding the old stamp gets a conflict.
	resp = doJSON(t, app, http.MethodPatch, "/tasks/"+task.ID, fiber.Map{
		"to_stage": options.Results[0].ToStage,
		"version":  task.Version,
	}, receiver)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWorkflowTasksListing(t *testing.T) {
	t.Parallel()

	app, workflowService, taskService := setupApp(t)

	workflow, err := workflowService.SeedDefault(t.Context())
	require.NoError(t, err)

	_, err = taskService.Create(t.Context(), services.CreateTaskRequest{Title: "Only one"})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/workflows/"+workflow.ID+"/tasks", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing := decode[struct {
		Results []*models.Task `json:"results"`
	}](t, resp)
	assert.Len(t, listing.Results, 1)
}
