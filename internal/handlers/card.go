package handlers

import (
	"strings"

	"bankcards/internal/services/card"
	"bankcards/internal/utils/pagination"
	"bankcards/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type CardHandler struct {
	service card.Service
}

func NewCardHandler(s card.Service) *CardHandler { return &CardHandler{service: s} }

type issueCardRequest struct {
	PAN            string `json:"pan" validate:"required"`
	Expiry         string `json:"expiry" validate:"required"`
	InitialBalance int64  `json:"initialBalance" validate:"gte=0"`
}

// ListMine handles GET /api/cards/my?status=&page=&size=
func (h *CardHandler) ListMine(c *fiber.Ctx) error {
	claims, err := principal(c)
	if err != nil {
		return err
	}
	p := pagination.ParseFromRequest(c)
	page, err := h.service.ListMine(c.UserContext(), claims.UserID, statusQuery(c), p.Page, p.Size)
	if err != nil {
		return err
	}
	return response.OK(c, page)
}

// Issue handles POST /api/admin/users/:id/cards.
func (h *CardHandler) Issue(c *fiber.Ctx) error {
	userID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req issueCardRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.service.Issue(c.UserContext(), card.IssueRequest{
		UserID:         userID,
		PAN:            req.PAN,
		Expiry:         req.Expiry,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		return err
	}
	return response.Created(c, res)
}

func (h *CardHandler) ListAll(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)
	page, err := h.service.ListAll(c.UserContext(), statusQuery(c), p.Page, p.Size)
	if err != nil {
		return err
	}
	return response.OK(c, page)
}

func (h *CardHandler) Block(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.service.Block(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.OK(c, res)
}

func (h *CardHandler) Activate(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.service.Activate(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.OK(c, res)
}

func (h *CardHandler) Delete(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return response.NoContent(c)
}

func statusQuery(c *fiber.Ctx) string {
	return strings.ToUpper(strings.TrimSpace(c.Query("status")))
}
