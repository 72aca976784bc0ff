package handlers

import (
	"bankcards/internal/services/auth"
	"bankcards/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService auth.Service
}

func NewAuthHandler(authService auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type credentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register creates a USER account.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var input credentialsRequest
	if err := bind(c, &input); err != nil {
		return err
	}

	res, err := h.authService.Register(c.UserContext(), input.Username, input.Password)
	if err != nil {
		return err
	}
	return response.Created(c, res)
}

// Login handles user authentication and returns an access token
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var input credentialsRequest
	if err := bind(c, &input); err != nil {
		return err
	}

	token, err := h.authService.Login(c.UserContext(), input.Username, input.Password)
	if err != nil {
		return err
	}
	return response.OK(c, token)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, err := principal(c)
	if err != nil {
		return err
	}
	res, err := h.authService.Me(c.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, res)
}
