package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/drakejin/cday2025-minigame-sub000/apperr"
	"github.com/drakejin/cday2025-minigame-sub000/logger"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// errorLog is replaced by Setup so handler failures land in the service log.
var errorLog = logger.Nop()

// respondError maps err to its status and the {errorCode, message} body.
// Internal failures are logged with detail and answered generically.
func respondError(c *fiber.Ctx, err error) error {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	message := err.Error()

	if status >= fiber.StatusInternalServerError {
		errorLog.Error("request failed", "method", c.Method(), "path", c.Path(), "code", code, "error", err)
		message = "internal error"
		if e, ok := apperr.As(err); ok && e.Message != "" {
			message = e.Message
		}
	} else if e, ok := apperr.As(err); ok {
		message = e.Message
	}
	return c.Status(status).JSON(fiber.Map{
		"errorCode": code,
		"message":   message,
	})
}

// bind parses the JSON body into dst and runs its validate tags.
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperr.New(apperr.CodeInvalidArgument, "invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.New(apperr.CodeInvalidArgument, "%s", describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
