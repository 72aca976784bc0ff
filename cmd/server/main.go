// Package main is the entry point for the application.
// It initializes all dependencies, sets up the HTTP server,
// and starts the application.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bankcards/internal/clock"
	"bankcards/internal/config"
	"bankcards/internal/handlers"
	"bankcards/internal/lock"
	"bankcards/internal/logging"
	"bankcards/internal/middleware"
	"bankcards/internal/repositories"
	"bankcards/internal/repositories/cache"
	"bankcards/internal/routes"
	"bankcards/internal/services/auth"
	"bankcards/internal/services/card"
	"bankcards/internal/services/transfer"
	"bankcards/internal/services/user"
	"bankcards/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadEnv()
	cfg := config.Load()

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	// Initialize databases (PostgreSQL + Redis)
	db, err := repositories.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer func() {
		if err := repositories.Close(db); err != nil {
			logger.Warn("failed to close database connection", zap.Error(err))
		}
	}()
	if err := repositories.Migrate(db); err != nil {
		return err
	}
	logger.Info("connected to database", zap.String("host", cfg.DB.Host), zap.String("name", cfg.DB.Name))

	var (
		userCache *cache.CacheService
		locker    lock.Locker
		redisPing handlers.PingFunc
	)
	if cfg.Redis.Enabled {
		client := cache.NewRedisClient(&cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		userCache = cache.NewCacheService(client, 5*time.Minute)
		defer func() {
			if err := userCache.Close(); err != nil {
				logger.Warn("failed to close redis connection", zap.Error(err))
			}
		}()
		locker = lock.NewRedisLocker(client, cfg.Scheduler.FixedDelay*3, logger)
		redisPing = userCache.HealthCheck
	} else {
		logger.Warn("redis disabled: user cache and sweeper lock are off")
	}

	panKey, hmacKey := cfg.Crypto.PanKey, cfg.Crypto.HMACKey
	if panKey == "" || hmacKey == "" {
		if config.IsProduction() {
			return errors.New("CRYPTO_PAN_KEY and CRYPTO_HMAC_KEY are required in production")
		}
		// Card numbers written with these keys are unreadable after restart.
		logger.Warn("crypto keys not configured, generating ephemeral keys")
		panKey, hmacKey = utils.MustGenerateSecureKey(), utils.MustGenerateSecureKey()
	}
	cipher, err := utils.NewPANCipher(panKey, hmacKey)
	if err != nil {
		return err
	}

	tokens, err := utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.Issuer)
	if err != nil {
		return err
	}

	store := repositories.NewStore(db, userCache)
	clk := clock.System()
	metrics := transfer.NewLogMetricsCollector(logger)

	userService := user.NewService(store, user.Config{}, logger)
	cardService := card.NewService(store, cipher, clk, card.Config{
		DefaultPageSize: cfg.Transfers.DefaultPageSize,
		MaxPageSize:     cfg.Transfers.MaxPageSize,
	}, logger)
	transferService := transfer.NewService(store, clk, transfer.Config{
		DefaultPageSize: cfg.Transfers.DefaultPageSize,
		MaxPageSize:     cfg.Transfers.MaxPageSize,
		MaxTTLSeconds:   cfg.Transfers.MaxTTLSeconds,
	}, logger, metrics)
	authService := auth.NewService(userService, store.Users(), tokens, int64(tokens.TTL().Seconds()), logger)

	opts := routes.Options{
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		AuthRateLimit: cfg.AuthRateLimit,
		AccessLog:     true,
	}
	app := routes.NewApp(opts, logger)
	routes.SetupRoutes(app, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Cards:    handlers.NewCardHandler(cardService),
		Transfer: handlers.NewTransferHandler(transferService),
		Admin:    handlers.NewAdminHandler(userService),
		Health: handlers.NewHealthHandler(func(ctx context.Context) error {
			return repositories.Ping(ctx, db)
		}, redisPing),
		AuthMW: middleware.NewAuthMiddleware(tokens, store.Users(), logger),
	}, opts)

	var sweeper *transfer.Sweeper
	if cfg.Scheduler.Enabled {
		mode, err := transfer.ParseMode(cfg.Scheduler.Mode)
		if err != nil {
			return err
		}
		sweeper = transfer.NewSweeper(store, clk, transfer.SweeperConfig{
			FixedDelay: cfg.Scheduler.FixedDelay,
			BatchSize:  cfg.Scheduler.BatchSize,
			Mode:       mode,
		}, locker, logger, metrics)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", zap.String("port", cfg.HTTP.Port))
		return app.Listen(":" + cfg.HTTP.Port)
	})

	if sweeper != nil {
		g.Go(func() error {
			sweeper.Start(gctx)
			<-gctx.Done()
			sweeper.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
