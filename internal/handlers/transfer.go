package handlers

import (
	"strings"

	"bankcards/internal/services/transfer"
	"bankcards/internal/utils/pagination"
	"bankcards/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

// IdempotencyKeyHeader carries the client's retry key. It wins over the body
// field when both are present.
const IdempotencyKeyHeader = "Idempotency-Key"

// TransferHandler exposes the card-to-card transfer endpoints.
type TransferHandler struct {
	service transfer.Service
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(s transfer.Service) *TransferHandler { return &TransferHandler{service: s} }

type createTransferRequest struct {
	FromCardID     uint   `json:"fromCardId" validate:"required"`
	ToCardID       uint   `json:"toCardId" validate:"required"`
	Amount         int64  `json:"amount"`
	TTLSeconds     *int   `json:"ttlSeconds"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// Create handles POST /api/transfers.
func (h *TransferHandler) Create(c *fiber.Ctx) error {
	claims, err := principal(c)
	if err != nil {
		return err
	}

	var req createTransferRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if key := strings.TrimSpace(c.Get(IdempotencyKeyHeader)); key != "" {
		req.IdempotencyKey = key
	}

	res, err := h.service.Initiate(c.UserContext(), claims.UserID, transfer.InitiateRequest{
		FromCardID:     req.FromCardID,
		ToCardID:       req.ToCardID,
		Amount:         req.Amount,
		TTLSeconds:     req.TTLSeconds,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	return response.Created(c, res)
}

// Cancel handles POST /api/transfers/:id/cancel.
func (h *TransferHandler) Cancel(c *fiber.Ctx) error {
	claims, err := principal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	res, err := h.service.Cancel(c.UserContext(), claims.UserID, id)
	if err != nil {
		return err
	}
	return response.OK(c, res)
}

// ListMine handles GET /api/transfers/my.
func (h *TransferHandler) ListMine(c *fiber.Ctx) error {
	claims, err := principal(c)
	if err != nil {
		return err
	}
	p := pagination.ParseFromRequest(c)
	page, err := h.service.ListMine(c.UserContext(), claims.UserID, p.Page, p.Size)
	if err != nil {
		return err
	}
	return response.OK(c, page)
}

// ListAll handles GET /api/transfers (admin).
func (h *TransferHandler) ListAll(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)
	page, err := h.service.ListAll(c.UserContext(), p.Page, p.Size)
	if err != nil {
		return err
	}
	return response.OK(c, page)
}
