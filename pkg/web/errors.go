package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/services"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service and persistence errors onto the API's
// error taxonomy. 409 is reserved exclusively for version conflicts; a
// structural stage rejection is 422 with the blocked stages spelled out so
// clients can show them verbatim.
func handleServiceError(c fiber.Ctx, err error) error {
	if blocked, ok := persistence.AsStageBlocked(err); ok {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(StageBlockedResponse{
			BlockedStages: blocked.BlockedStages,
		})
	}

	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsTransitionRefused(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("transition_refused").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case persistence.IsVersionConflict(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("version_conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case persistence.IsDefaultWorkflowProtected(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("default_workflow_protected").
			WithDetail("the default workflow cannot be deleted")

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case persistence.IsTaskNotFound(err):
		return notFound(c, "task not found")

	default:
		return internalError(c, err)
	}
}
