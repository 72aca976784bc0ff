package repositories

import (
	"bankcards/internal/models"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type transferRepository struct {
	db *gorm.DB
}

func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{
		db: db,
	}
}

func (r *transferRepository) Create(ctx context.Context, transfer *models.Transfer) error {
	// Associations are written through the card repository only.
	result := r.db.WithContext(ctx).Omit(clause.Associations).Create(transfer)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrDuplicateIdempotencyKey
		}
		return wrap("create transfer", result.Error)
	}
	return nil
}

func (r *transferRepository) GetByID(ctx context.Context, id uint) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).
		Preload("FromCard").
		Preload("ToCard").
		First(&transfer, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTransferNotFound
		}
		return nil, wrap("get transfer", err)
	}
	return &transfer, nil
}

func (r *transferRepository) LockForUpdate(ctx context.Context, id uint) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&transfer, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTransferNotFound
		}
		return nil, wrap("lock transfer", err)
	}
	return &transfer, nil
}

func (r *transferRepository) Update(ctx context.Context, transfer *models.Transfer) error {
	result := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("id = ? AND version = ? AND status = ?", transfer.ID, transfer.Version, models.TransferStatusPending).
		Updates(map[string]interface{}{
			"status":          transfer.Status,
			"executed_at":     transfer.ExecutedAt,
			"failure_code":    transfer.FailureCode,
			"failure_message": transfer.FailureMessage,
			"version":         transfer.Version + 1,
		})
	if result.Error != nil {
		return wrap("update transfer", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	transfer.Version++
	return nil
}

func (r *transferRepository) GetByIdempotencyKey(ctx context.Context, initiatorID uint, key string) (*models.Transfer, error) {
	var transfer models.Transfer
	err := r.db.WithContext(ctx).
		Preload("FromCard").
		Preload("ToCard").
		Where("initiator_id = ? AND idempotency_key = ?", initiatorID, key).
		First(&transfer).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrTransferNotFound
		}
		return nil, wrap("get transfer by idempotency key", err)
	}
	return &transfer, nil
}

func (r *transferRepository) FindDuePending(ctx context.Context, cutoff time.Time, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.TransferStatusPending, cutoff).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, wrap("find due transfers", err)
	}
	return ids, nil
}

func (r *transferRepository) ListByInitiator(ctx context.Context, initiatorID uint, opts ListOptions) ([]*models.Transfer, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Transfer{}).Where("initiator_id = ?", initiatorID)
	return r.list(query, opts)
}

func (r *transferRepository) List(ctx context.Context, opts ListOptions) ([]*models.Transfer, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&models.Transfer{}), opts)
}

func (r *transferRepository) list(query *gorm.DB, opts ListOptions) ([]*models.Transfer, int64, error) {
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap("count transfers", err)
	}

	var transfers []*models.Transfer
	err := query.
		Preload("FromCard").
		Preload("ToCard").
		Order("id DESC").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&transfers).Error
	if err != nil {
		return nil, 0, wrap("list transfers", err)
	}
	return transfers, total, nil
}

func (r *transferRepository) ExistsByCard(ctx context.Context, cardID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transfer{}).
		Where("from_card_id = ? OR to_card_id = ?", cardID, cardID).
		Count(&count).Error
	if err != nil {
		return false, wrap("check card transfers", err)
	}
	return count > 0, nil
}
