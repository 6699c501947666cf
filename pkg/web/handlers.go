// Package web provides the HTTP handlers for the workflow lifecycle API.
package web

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/rathbookie/stageflow/pkg/services"
)

type APIHandlers struct {
	workflowService *services.Workflow
	taskService     *services.Task
}

func NewAPIHandlers(workflowService *services.Workflow, taskService *services.Task) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		taskService:     taskService,
	}
}

// RegisterRoutes wires every endpoint onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	workflows := app.Group("/workflows")
	workflows.Get("/", h.GetWorkflows)
	workflows.Post("/", h.CreateWorkflow)
	workflows.Get("/:id", h.GetWorkflow)
	workflows.Patch("/:id/builder", h.SaveDraft)
	workflows.Post("/:id/publish", h.PublishWorkflow)
	workflows.Delete("/:id", h.DeleteWorkflow)
	workflows.Get("/:id/tasks", h.GetWorkflowTasks)

	tasks := app.Group("/tasks")
	tasks.Post("/", h.CreateTask)
	tasks.Get("/:id", h.GetTask)
	tasks.Get("/:id/transitions", h.GetTaskTransitions, RequireRole())
	tasks.Patch("/:id", h.UpdateTask, RequireRole())
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(ListWorkflowsResponse{Results: workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	workflow, err := h.workflowService.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req services.CreateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON format")
	}

	workflow, err := h.workflowService.Create(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

// SaveDraft replaces the workflow's graph with the submitted draft. The raw
// body is schema-checked before binding so malformed payloads fail as 400s
// with field-level detail.
func (h *APIHandlers) SaveDraft(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	if err := services.ValidateDraftPayload(c.Body()); err != nil {
		return badRequest(c, err.Error())
	}

	var req services.SaveDraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON format")
	}

	workflow, err := h.workflowService.SaveDraft(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) PublishWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	var req services.PublishRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON format")
	}

	workflow, err := h.workflowService.Publish(c.Context(), id, req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	if err := h.workflowService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowTasks(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	tasks, err := h.taskService.ListByWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"results": tasks})
}

func (h *APIHandlers) CreateTask(c fiber.Ctx) error {
	var req services.CreateTaskRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON format")
	}

	task, err := h.taskService.Create(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(task)
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "task id is required")
	}

	task, err := h.taskService.GetByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}

// GetTaskTransitions returns the legal next stages for the task under the
// caller's active role. An unresolvable task or workflow yields an empty
// list, never a guess.
func (h *APIHandlers) GetTaskTransitions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "task id is required")
	}

	options, err := h.taskService.Options(c.Context(), id, ActiveRole(c))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransitionOptionsResponse{Results: options})
}

// UpdateTask applies one stage transition to a task under the caller's
// active role and version stamp.
func (h *APIHandlers) UpdateTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "task id is required")
	}

	var req services.TransitionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid JSON format")
	}

	task, err := h.taskService.ApplyTransition(c.Context(), id, ActiveRole(c), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(task)
}
