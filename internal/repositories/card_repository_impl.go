package repositories

import (
	"bankcards/internal/models"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cardRepository struct {
	db *gorm.DB
}

func NewCardRepository(db *gorm.DB) CardRepository {
	return &cardRepository{
		db: db,
	}
}

func (r *cardRepository) Create(ctx context.Context, card *models.Card) error {
	result := r.db.WithContext(ctx).Create(card)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrDuplicatePAN
		}
		return wrap("create card", result.Error)
	}
	return nil
}

func (r *cardRepository) GetByID(ctx context.Context, id uint) (*models.Card, error) {
	var card models.Card
	if err := r.db.WithContext(ctx).First(&card, id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, wrap("get card", err)
	}
	return &card, nil
}

func (r *cardRepository) LockForUpdate(ctx context.Context, id uint) (*models.Card, error) {
	var card models.Card
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&card, id).Error
	if err != nil {
		if isNotFound(err) {
			return nil, ErrCardNotFound
		}
		return nil, wrap("lock card", err)
	}
	return &card, nil
}

func (r *cardRepository) Update(ctx context.Context, card *models.Card) error {
	result := r.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("id = ? AND version = ?", card.ID, card.Version).
		Updates(map[string]interface{}{
			"status":  card.Status,
			"balance": card.Balance,
			"version": card.Version + 1,
		})
	if result.Error != nil {
		return wrap("update card", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	card.Version++
	return nil
}

func (r *cardRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Card{}, id)
	if result.Error != nil {
		return wrap("delete card", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCardNotFound
	}
	return nil
}

func (r *cardRepository) ExistsByPanHash(ctx context.Context, panHash string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("pan_hash = ?", panHash).
		Count(&count).Error
	if err != nil {
		return false, wrap("check card number", err)
	}
	return count > 0, nil
}

func (r *cardRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Card{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, wrap("count cards", err)
	}
	return count, nil
}

func (r *cardRepository) ListByUser(ctx context.Context, userID uint, status string, opts ListOptions) ([]*models.Card, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Card{}).Where("user_id = ?", userID)
	return r.list(query, status, opts)
}

func (r *cardRepository) List(ctx context.Context, status string, opts ListOptions) ([]*models.Card, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&models.Card{}), status, opts)
}

func (r *cardRepository) list(query *gorm.DB, status string, opts ListOptions) ([]*models.Card, int64, error) {
	if status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap("count cards", err)
	}

	var cards []*models.Card
	err := query.
		Order("id DESC").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&cards).Error
	if err != nil {
		return nil, 0, wrap("list cards", err)
	}
	return cards, total, nil
}
