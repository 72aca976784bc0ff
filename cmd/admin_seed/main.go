package main

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"bankcards/internal/clock"
	"bankcards/internal/config"
	apperrors "bankcards/internal/errors"
	"bankcards/internal/logging"
	"bankcards/internal/models"
	"bankcards/internal/repositories"
	"bankcards/internal/services/card"
	"bankcards/internal/services/user"
	"bankcards/internal/utils"

	"go.uber.org/zap"
)

// Luhn-valid test numbers issued to the admin when SEED_DEMO_CARDS is set.
var demoPANs = []string{"4111111111111111", "5555555555554444"}

const demoBalance = 100_000

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminUsername == "" || adminPassword == "" {
		logger.Fatal("ADMIN_USERNAME and ADMIN_PASSWORD must be set in environment")
	}

	db, err := repositories.Open(cfg.DB)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := repositories.Close(db); err != nil {
			logger.Warn("failed to close database connection", zap.Error(err))
		}
	}()
	if err := repositories.Migrate(db); err != nil {
		logger.Fatal("failed to migrate schema", zap.Error(err))
	}

	ctx := context.Background()
	store := repositories.NewStore(db, nil)
	users := user.NewService(store, user.Config{}, logger)

	adminID, err := ensureAdmin(ctx, users, store, adminUsername, adminPassword)
	if err != nil {
		logger.Fatal("failed to seed admin", zap.Error(err))
	}
	logger.Info("admin account ready", zap.Uint("user_id", adminID), zap.String("username", adminUsername))

	if !config.GetBoolEnv("SEED_DEMO_CARDS", false) {
		return
	}
	if cfg.Crypto.PanKey == "" || cfg.Crypto.HMACKey == "" {
		logger.Fatal("CRYPTO_PAN_KEY and CRYPTO_HMAC_KEY are required to seed cards")
	}
	cipher, err := utils.NewPANCipher(cfg.Crypto.PanKey, cfg.Crypto.HMACKey)
	if err != nil {
		logger.Fatal("invalid crypto keys", zap.Error(err))
	}
	cards := card.NewService(store, cipher, clock.System(), card.Config{}, logger)
	expiry := time.Now().UTC().AddDate(3, 0, 0).Format(models.ExpiryLayout)

	for _, pan := range demoPANs {
		res, err := cards.Issue(ctx, card.IssueRequest{
			UserID:         adminID,
			PAN:            pan,
			Expiry:         expiry,
			InitialBalance: demoBalance,
		})
		switch {
		case err == nil:
			logger.Info("demo card issued", zap.Uint("card_id", res.ID), zap.String("last4", res.Last4))
		case apperrors.KindOf(err) == apperrors.KindConflict:
			logger.Info("demo card already exists", zap.String("last4", pan[len(pan)-4:]))
		default:
			logger.Fatal("failed to issue demo card", zap.Error(err))
		}
	}
}

// ensureAdmin creates the admin account, or returns the existing one.
func ensureAdmin(ctx context.Context, users user.Service, store repositories.Store, username, password string) (uint, error) {
	created, err := users.Create(ctx, user.CreateRequest{
		Username: username,
		Password: password,
		Roles:    []string{models.RoleAdmin, models.RoleUser},
	})
	if err == nil {
		return created.ID, nil
	}
	if apperrors.KindOf(err) != apperrors.KindConflict {
		return 0, err
	}

	existing, err := store.Users().GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if !existing.HasRole(models.RoleAdmin) {
		return 0, errors.New("user " + username + " exists without the ADMIN role")
	}
	return existing.ID, nil
}
