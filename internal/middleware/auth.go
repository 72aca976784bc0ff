// Package middleware provides HTTP middleware components for the application.
// It includes authentication, authorization and error rendering for the
// fiber web framework.
package middleware

import (
	"errors"
	"strings"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenParser validates access tokens.
type TokenParser interface {
	ParseToken(token string) (*models.UserClaims, error)
}

// AuthMiddleware handles JWT token validation and user authentication.
// It extracts the JWT token from the Authorization header, validates it,
// and adds the user claims to the request context.
type AuthMiddleware struct {
	tokens TokenParser
	users  repositories.UserRepository
	logger *zap.Logger
}

func NewAuthMiddleware(tokens TokenParser, users repositories.UserRepository, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{
		tokens: tokens,
		users:  users,
		logger: logger.Named("auth"),
	}
}

// Handler validates the bearer token and checks that the account still
// exists and is enabled. Roles are refreshed from the stored user so a
// demotion takes effect before the token expires.
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return apperrors.Unauthorized("missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return apperrors.Unauthorized("invalid authorization format")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
	if err != nil {
		m.logger.Debug("token validation failed", zap.Error(err))
		return apperrors.Unauthorized("invalid token")
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.Unauthorized("invalid token")
		}
		return err
	}
	if !user.Enabled {
		return apperrors.Forbidden("account is disabled")
	}
	claims.Roles = user.RoleList()

	c.Locals(utils.ClaimsKey, claims)
	c.Locals("userID", claims.UserID)
	return c.Next()
}

// RequireAdmin rejects requests whose claims lack the ADMIN role. It must run
// after AuthMiddleware.Handler.
func RequireAdmin(c *fiber.Ctx) error {
	claims, err := utils.GetUserClaims(c)
	if err != nil {
		return apperrors.Unauthorized("authentication required")
	}
	if !claims.IsAdmin() {
		return apperrors.Forbidden("insufficient permissions")
	}
	return c.Next()
}
