package web

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rathbookie/stageflow/pkg/models"
)

// ActiveRoleHeader carries the acting role for role-gated endpoints. The
// identity provider in front of this service sets it; legacy clients send
// free-form casing, which is normalized here.
const ActiveRoleHeader = "X-Active-Role"

const roleLocal = "active_role"

// ActiveRole extracts the acting role stored by RequireRole.
func ActiveRole(c fiber.Ctx) models.Role {
	if role, ok := c.Locals(roleLocal).(models.Role); ok {
		return role
	}

	return ""
}

// RequireRole rejects requests without a valid role header before the
// handler runs.
func RequireRole() fiber.Handler {
	return func(c fiber.Ctx) error {
		role, ok := models.ParseRole(c.Get(ActiveRoleHeader))
		if !ok {
			return badRequest(c, "a valid "+ActiveRoleHeader+" header is required")
		}

		c.Locals(roleLocal, role)

		return c.Next()
	}
}
