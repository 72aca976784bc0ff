package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "bankcards/internal/errors"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/services/user"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = apperrors.Unauthorized("invalid credentials")

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(u *models.User) (string, error)
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"` // seconds
}

type Service interface {
	Register(ctx context.Context, username, password string) (*user.Result, error)
	Login(ctx context.Context, username, password string) (*TokenResponse, error)
	Me(ctx context.Context, userID uint) (*user.Result, error)
}

type service struct {
	users     user.Service
	repo      repositories.UserRepository
	tokens    TokenIssuer
	expiresIn int64
	logger    *zap.Logger
}

// NewService wires authentication. expiresIn is the token lifetime reported
// to clients, in seconds.
func NewService(users user.Service, repo repositories.UserRepository, tokens TokenIssuer, expiresIn int64, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		users:     users,
		repo:      repo,
		tokens:    tokens,
		expiresIn: expiresIn,
		logger:    logger.Named("auth"),
	}
}

func (s *service) Register(ctx context.Context, username, password string) (*user.Result, error) {
	return s.users.Create(ctx, user.CreateRequest{
		Username: username,
		Password: password,
		Roles:    models.DefaultRoles(),
	})
}

func (s *service) Login(ctx context.Context, username, password string) (*TokenResponse, error) {
	u, err := s.repo.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			s.logger.Info("login failed: unknown user", zap.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login failed: incorrect password", zap.Uint("user_id", u.ID))
		return nil, ErrInvalidCredentials
	}
	if !u.Enabled {
		return nil, apperrors.Forbidden("account is disabled")
	}

	token, err := s.tokens.GenerateAccessToken(u)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("user logged in", zap.Uint("user_id", u.ID))
	return &TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   s.expiresIn,
	}, nil
}

func (s *service) Me(ctx context.Context, userID uint) (*user.Result, error) {
	return s.users.Get(ctx, userID)
}
