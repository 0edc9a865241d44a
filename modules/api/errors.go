package api

import (
	"errors"

	domain "github.com/example/campus-helpdesk-chat/domain/chat"
	"github.com/gofiber/fiber/v2"
)

// errorHandler renders every error returned by a handler as ErrorResponse.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code, status, message := classify(err)
	if status == fiber.StatusInternalServerError {
		m.logger.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// classify maps an error to its wire code, HTTP status and client message.
func classify(err error) (string, int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return statusCode(fe.Code), fe.Code, fe.Message
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return domain.CodeValidation, fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		// Authenticated but not allowed; anonymous callers never reach handlers.
		return domain.CodeUnauthorized, fiber.StatusForbidden, "you are not a participant of this room"
	case errors.Is(err, domain.ErrNotFound):
		return domain.CodeNotFound, fiber.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrConflict):
		return domain.CodeConflict, fiber.StatusConflict, err.Error()
	default:
		return "server_error", fiber.StatusInternalServerError, "Internal Server Error"
	}
}

func statusCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return domain.CodeValidation
	case fiber.StatusUnauthorized, fiber.StatusForbidden:
		return domain.CodeUnauthorized
	case fiber.StatusNotFound:
		return domain.CodeNotFound
	case fiber.StatusConflict:
		return domain.CodeConflict
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	default:
		return "server_error"
	}
}
