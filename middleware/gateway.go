package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/logger"
)

// GatewayAuthMiddleware validates the Bearer token from the gateway.
func GatewayAuthMiddleware(expectedToken string, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Warn("gateway token missing", "path", c.Path())
			return reject(c, apperr.CodeUnauthorized, "gateway authentication token missing")
		}

		// the gateway may send the raw token without the Bearer prefix
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn("invalid gateway token", "path", c.Path())
			return reject(c, apperr.CodeUnauthorized, "invalid gateway authentication token")
		}
		return c.Next()
	}
}
