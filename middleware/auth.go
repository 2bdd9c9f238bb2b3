package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/logger"
	"github.com/drakejin/cday2025-minigame-sub000/models"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by the gateway.
// Missing headers are not an error here; RequireUser and RequireAdmin enforce them per route group.
func UserContextMiddleware(log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			r = strings.ToLower(strings.TrimSpace(r))
			if r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, roles)
		log.Debug("user context", "user_id", userID, "roles", roles, "path", c.Path())
		return c.Next()
	}
}

// ActorFrom builds the service-level actor from the request locals.
func ActorFrom(c *fiber.Ctx) models.Actor {
	userID, _ := c.Locals(localUserID).(string)
	roles, _ := c.Locals(localUserRoles).([]string)
	actor := models.Actor{UserID: userID, Role: models.RolePlayer}
	for _, r := range roles {
		if r == string(models.RoleAdmin) {
			actor.Role = models.RoleAdmin
			break
		}
	}
	return actor
}

// RequireUser rejects requests without X-User-ID.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ActorFrom(c).UserID == "" {
			return reject(c, apperr.CodeUnauthorized, "missing X-User-ID; request must come through the gateway with auth context")
		}
		return c.Next()
	}
}

// RequireAdmin rejects callers without the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := ActorFrom(c)
		if actor.UserID == "" {
			return reject(c, apperr.CodeUnauthorized, "missing X-User-ID; request must come through the gateway with auth context")
		}
		if !actor.IsAdmin() {
			return reject(c, apperr.CodeForbidden, "admin role required")
		}
		return c.Next()
	}
}

func reject(c *fiber.Ctx, code apperr.Code, message string) error {
	return c.Status(apperr.HTTPStatus(code)).JSON(fiber.Map{
		"errorCode": code,
		"message":   message,
	})
}
