package handlers

import (
	"strings"

	"bankcards/internal/services/user"
	"bankcards/internal/utils/pagination"
	"bankcards/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// AdminHandler manages user accounts. Every route behind it requires the
// ADMIN role.
type AdminHandler struct {
	users user.Service
}

func NewAdminHandler(users user.Service) *AdminHandler {
	return &AdminHandler{users: users}
}

type createUserRequest struct {
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password" validate:"required"`
	Roles    []string `json:"roles"`
}

type rolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ListUsers handles GET /api/admin/users?search=&page=&size=
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)
	page, err := h.users.List(c.UserContext(), strings.TrimSpace(c.Query("search")), p.Page, p.Size)
	if err != nil {
		return err
	}
	return response.OK(c, page)
}

func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.users.Create(c.UserContext(), user.CreateRequest{
		Username: req.Username,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		return err
	}
	return response.Created(c, res)
}

func (h *AdminHandler) SetRoles(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req rolesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.users.SetRoles(c.UserContext(), id, req.Roles)
	if err != nil {
		return err
	}
	return response.OK(c, res)
}

func (h *AdminHandler) SetEnabled(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req enabledRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.users.SetEnabled(c.UserContext(), id, *req.Enabled)
	if err != nil {
		return err
	}
	return response.OK(c, res)
}

func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return response.NoContent(c)
}
