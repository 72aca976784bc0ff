package middleware

import (
	"errors"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every error returned by a handler. Domain errors keep
// their code; anything else is logged and reported as a 500 without detail.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx, err error) error {
		if de, ok := apperrors.As(err); ok {
			return response.Error(c, de)
		}

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return response.Status(c, fe.Code, codeFor(fe.Code), fe.Message)
		}

		logger.Error("unhandled error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Any("request_id", c.Locals("requestid")),
			zap.Error(err),
		)
		return response.Status(c, fiber.StatusInternalServerError, string(apperrors.KindInternal), "internal server error")
	}
}

func codeFor(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return string(apperrors.KindNotFound)
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return string(apperrors.KindBadRequest)
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		if status >= 500 {
			return string(apperrors.KindInternal)
		}
		return "HTTP_ERROR"
	}
}
