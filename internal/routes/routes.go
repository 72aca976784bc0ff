// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"bankcards/internal/config"
	"bankcards/internal/handlers"
	"bankcards/internal/middleware"
	"bankcards/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handlers bundles everything the router dispatches to.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Cards    *handlers.CardHandler
	Transfer *handlers.TransferHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	AuthMW   *middleware.AuthMiddleware
}

// Options tunes the HTTP stack.
type Options struct {
	CORSOrigins   string
	AuthRateLimit config.RateLimitConfig
	AccessLog     bool
}

// NewApp creates the fiber app with the shared middleware chain and error
// rendering.
func NewApp(opts Options, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "bankcards",
		ErrorHandler: middleware.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	if opts.CORSOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     opts.CORSOrigins,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
			AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
			AllowCredentials: true,
		}))
	}

	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${locals:requestid}\n",
		}))
	}

	return app
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, h Handlers, opts Options) {
	app.Get("/health", h.Health.Check)

	api := app.Group("/api")

	// Public endpoints (no auth required), rate limited per IP
	authGroup := api.Group("/auth")
	limited := authLimiter(opts.AuthRateLimit)
	authGroup.Post("/register", limited, h.Auth.Register)
	authGroup.Post("/login", limited, h.Auth.Login)

	authGroup.Get("/me", h.AuthMW.Handler, h.Auth.Me)

	// Cards
	cards := api.Group("/cards", h.AuthMW.Handler)
	cards.Get("/my", h.Cards.ListMine)

	// Transfers
	transfers := api.Group("/transfers", h.AuthMW.Handler)
	transfers.Post("/", h.Transfer.Create)
	transfers.Get("/my", h.Transfer.ListMine)
	transfers.Post("/:id/cancel", h.Transfer.Cancel)
	transfers.Get("/", middleware.RequireAdmin, h.Transfer.ListAll)

	// Admin
	admin := api.Group("/admin", h.AuthMW.Handler, middleware.RequireAdmin)
	admin.Get("/users", h.Admin.ListUsers)
	admin.Post("/users", h.Admin.CreateUser)
	admin.Put("/users/:id/roles", h.Admin.SetRoles)
	admin.Patch("/users/:id/enabled", h.Admin.SetEnabled)
	admin.Delete("/users/:id", h.Admin.DeleteUser)
	admin.Post("/users/:id/cards", h.Cards.Issue)

	admin.Get("/cards", h.Cards.ListAll)
	admin.Post("/cards/:id/block", h.Cards.Block)
	admin.Post("/cards/:id/activate", h.Cards.Activate)
	admin.Delete("/cards/:id", h.Cards.Delete)
}

func authLimiter(cfg config.RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return response.Status(c, fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many requests. Please try again later.")
		},
	})
}
