package response

import (
	"time"

	apperrors "bankcards/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Path      string            `json:"path"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindBadRequest:
		return fiber.StatusBadRequest
	case apperrors.KindUnauthorized:
		return fiber.StatusUnauthorized
	case apperrors.KindOwnershipViolation, apperrors.KindForbidden:
		return fiber.StatusForbidden
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindIdempotencyConflict, apperrors.KindConflict:
		return fiber.StatusConflict
	case apperrors.KindInvalidState, apperrors.KindExpired, apperrors.KindInsufficientFunds:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// Error writes a domain error.
func Error(c *fiber.Ctx, err *apperrors.DomainError) error {
	status := StatusFor(err.Kind)
	return write(c, status, err.Code, err.Message, err.Fields)
}

// Status writes an error that has no domain counterpart, e.g. 404 for an
// unknown route.
func Status(c *fiber.Ctx, status int, code, message string) error {
	return write(c, status, code, message, nil)
}

func write(c *fiber.Ctx, status int, code, message string, fields map[string]string) error {
	return c.Status(status).JSON(ErrorBody{
		Status:    status,
		Error:     utils.StatusMessage(status),
		Code:      code,
		Message:   message,
		Path:      c.Path(),
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	})
}
