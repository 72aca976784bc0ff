package transfer

import (
	"context"

	"bankcards/internal/utils/pagination"
)

// Service moves funds between two cards of the same owner, either at once
// or deferred until a TTL elapses.
type Service interface {
	Initiate(ctx context.Context, initiatorID uint, req InitiateRequest) (*Result, error)
	Cancel(ctx context.Context, userID, transferID uint) (*Result, error)
	ListMine(ctx context.Context, userID uint, page, size int) (pagination.Page[Result], error)
	ListAll(ctx context.Context, page, size int) (pagination.Page[Result], error)
}

// MetricsCollector defines the interface for collecting transfer metrics
type MetricsCollector interface {
	RecordTransfer(status string, amount int64)
	RecordError(operation, kind string)
	RecordSweep(mode string, processed int)
}
