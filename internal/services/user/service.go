package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/utils/pagination"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 50
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes
	MaxPasswordLength = 72
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Result, error)
	Get(ctx context.Context, id uint) (*Result, error)
	List(ctx context.Context, search string, page, size int) (pagination.Page[Result], error)
	SetRoles(ctx context.Context, id uint, roles []string) (*Result, error)
	SetEnabled(ctx context.Context, id uint, enabled bool) (*Result, error)
	Delete(ctx context.Context, id uint) error
}

// CreateRequest describes a new account. Empty Roles means USER.
type CreateRequest struct {
	Username string
	Password string
	Roles    []string
}

type Config struct {
	BcryptCost      int
	DefaultPageSize int
	MaxPageSize     int
}

// Result is the externally visible view of a user.
type Result struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Enabled   bool      `json:"enabled"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToResult(u *models.User) Result {
	roles := u.RoleList()
	if roles == nil {
		roles = []string{}
	}
	return Result{
		ID:        u.ID,
		Username:  u.Username,
		Enabled:   u.Enabled,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	}
}

type service struct {
	store  repositories.Store
	config Config
	logger *zap.Logger
}

func NewService(store repositories.Store, config Config, logger *zap.Logger) Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 10
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		store:  store,
		config: config,
		logger: logger.Named("user"),
	}
}

// ValidateCredentials checks the username and password rules shared by
// registration and admin account creation.
func ValidateCredentials(username, password string) error {
	if n := len(username); n < MinUsernameLength || n > MaxUsernameLength {
		return apperrors.BadRequest(fmt.Sprintf("username must be %d-%d characters", MinUsernameLength, MaxUsernameLength)).
			WithField("username", "invalid length")
	}
	if !usernamePattern.MatchString(username) {
		return apperrors.BadRequest("username may only contain letters, digits, '.', '_' and '-'").
			WithField("username", "invalid characters")
	}
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return apperrors.BadRequest(fmt.Sprintf("password must be %d-%d characters", MinPasswordLength, MaxPasswordLength)).
			WithField("password", "invalid length")
	}
	return nil
}

func normalizeRoles(roles []string) ([]string, error) {
	if len(roles) == 0 {
		return models.DefaultRoles(), nil
	}
	out := models.SplitRoles(models.JoinRoles(roles))
	if len(out) == 0 {
		return nil, apperrors.BadRequest("at least one role is required").WithField("roles", "required")
	}
	for _, r := range out {
		if !models.ValidRole(r) {
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown role %q", r)).WithField("roles", "unknown role")
		}
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := ValidateCredentials(req.Username, req.Password); err != nil {
		return nil, err
	}
	roles, err := normalizeRoles(req.Roles)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Enabled:      true,
	}
	u.SetRoles(roles)

	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, repositories.ErrDuplicateUsername) {
			return nil, apperrors.Conflict("username already taken").WithField("username", "taken")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", zap.Uint("user_id", u.ID), zap.String("username", u.Username), zap.Strings("roles", roles))
	result := ToResult(u)
	return &result, nil
}

func (s *service) Get(ctx context.Context, id uint) (*Result, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	result := ToResult(u)
	return &result, nil
}

func (s *service) List(ctx context.Context, search string, page, size int) (pagination.Page[Result], error) {
	req := pagination.Request{Page: page, Size: size}.Normalize(s.config.DefaultPageSize, s.config.MaxPageSize)
	users, total, err := s.store.Users().List(ctx, search, repositories.ListOptions{
		Offset: req.Offset(),
		Limit:  req.Size,
	})
	if err != nil {
		return pagination.Page[Result]{}, err
	}
	return pagination.NewPage(pagination.Map(users, func(u *models.User) Result { return ToResult(u) }), req, total), nil
}

func (s *service) SetRoles(ctx context.Context, id uint, roles []string) (*Result, error) {
	if len(roles) == 0 {
		return nil, apperrors.BadRequest("at least one role is required").WithField("roles", "required")
	}
	normalized, err := normalizeRoles(roles)
	if err != nil {
		return nil, err
	}
	return s.update(ctx, id, func(u *models.User) { u.SetRoles(normalized) })
}

func (s *service) SetEnabled(ctx context.Context, id uint, enabled bool) (*Result, error) {
	return s.update(ctx, id, func(u *models.User) { u.Enabled = enabled })
}

func (s *service) update(ctx context.Context, id uint, apply func(*models.User)) (*Result, error) {
	u, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(u)
	if err := s.store.Users().Update(ctx, u); err != nil {
		if errors.Is(err, repositories.ErrStaleVersion) {
			return nil, apperrors.Conflict("user was modified concurrently, retry")
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	s.logger.Info("user updated", zap.Uint("user_id", u.ID), zap.Bool("enabled", u.Enabled), zap.String("roles", u.Roles))
	result := ToResult(u)
	return &result, nil
}

func (s *service) Delete(ctx context.Context, id uint) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	cards, err := s.store.Cards().CountByUser(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count user cards: %w", err)
	}
	if cards > 0 {
		return apperrors.InvalidState(fmt.Sprintf("user %d still owns %d card(s)", id, cards))
	}
	if err := s.store.Users().Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return apperrors.ErrUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info("user deleted", zap.Uint("user_id", id))
	return nil
}

func (s *service) load(ctx context.Context, id uint) (*models.User, error) {
	u, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}
