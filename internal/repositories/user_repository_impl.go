package repositories

import (
	"bankcards/internal/models"
	"context"
	"strings"

	"bankcards/internal/repositories/cache"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type userRepository struct {
	db     *gorm.DB
	cache  *cache.CacheService
	logger *zap.Logger
}

// NewUserRepository creates a new instance of UserRepository. cache may be nil.
func NewUserRepository(db *gorm.DB, cache *cache.CacheService) UserRepository {
	return &userRepository{
		db:     db,
		cache:  cache,
		logger: zap.L().Named("user_repository"),
	}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return ErrDuplicateUsername
		}
		return wrap("create user", result.Error)
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	// Try cache first
	if r.cache != nil {
		if user, err := r.cache.GetUser(ctx, id); err == nil {
			return user, nil
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, wrap("get user", err)
	}

	if r.cache != nil {
		if err := r.cache.CacheUser(ctx, &user); err != nil {
			r.logger.Warn("failed to cache user", zap.Uint("user_id", id), zap.Error(err))
		}
	}

	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	result := r.db.WithContext(ctx).Where("username = ?", username).First(&user)
	if result.Error != nil {
		if isNotFound(result.Error) {
			return nil, ErrUserNotFound
		}
		return nil, wrap("get user by username", result.Error)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"roles":   user.Roles,
			"enabled": user.Enabled,
			"version": user.Version + 1,
		})
	if result.Error != nil {
		return wrap("update user", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStaleVersion
	}
	user.Version++

	r.invalidate(ctx, user.ID)
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if result.Error != nil {
		return wrap("delete user", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	r.invalidate(ctx, id)
	return nil
}

func (r *userRepository) List(ctx context.Context, search string, opts ListOptions) ([]*models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if search = strings.TrimSpace(search); search != "" {
		query = query.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, wrap("count users", err)
	}

	var users []*models.User
	result := query.Order("id ASC").Offset(opts.Offset).Limit(opts.Limit).Find(&users)
	if result.Error != nil {
		return nil, 0, wrap("list users", result.Error)
	}

	return users, total, nil
}

func (r *userRepository) invalidate(ctx context.Context, id uint) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateUser(ctx, id); err != nil {
		r.logger.Warn("failed to invalidate user cache", zap.Uint("user_id", id), zap.Error(err))
	}
}
