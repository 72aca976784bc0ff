package handlers

import (
	"strconv"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/utils"
	"bankcards/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
)

// bind parses the JSON body into dst and validates it.
func bind(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	return validation.Struct(dst)
}

// pathID reads a positive numeric path parameter.
func pathID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.BadRequest("invalid " + name).WithField(name, "must be a positive integer")
	}
	return uint(id), nil
}

func principal(c *fiber.Ctx) (*models.UserClaims, error) {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return nil, apperrors.Unauthorized("authentication required")
	}
	return claims, nil
}
