package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	"github.com/bimasaputra/lendtrack/internal/config"
	"github.com/bimasaputra/lendtrack/internal/handlers"
	"github.com/bimasaputra/lendtrack/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	scanHandler *handlers.ScanHandler,
	userHandler *handlers.UserHandler,
	transactionHandler *handlers.TransactionHandler,
	statsHandler *handlers.StatsHandler,
	authHandler *handlers.AuthHandler,
	policyHandler *handlers.PolicyHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP. Readers retry, so
	// the ceiling sits well above normal scan traffic.
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Scan ingress and enrollment are open: the reader device does not
	// authenticate.
	api.Post("/scan", scanHandler.Scan)
	api.Post("/users", userHandler.Register)

	// Staff auth: stricter rate limit.
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               20,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)

	// Dashboard reads (staff JWT required). Export registers before the
	// :id route so it is not captured as a parameter.
	api.Get("/users/export", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg), userHandler.ExportCSV)
	api.Get("/users", middleware.JWTProtected(cfg), userHandler.List)
	api.Get("/transactions", middleware.JWTProtected(cfg), transactionHandler.List)
	api.Get("/stats", middleware.JWTProtected(cfg), statsHandler.Dashboard)
	api.Get("/policy", middleware.JWTProtected(cfg), policyHandler.Get)

	// Admin maintenance.
	api.Delete("/users/:id", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg), userHandler.Delete)

	admin := api.Group("/admin", middleware.JWTProtected(cfg), middleware.AdminRequired(db, cfg))
	admin.Put("/policy", policyHandler.Update)
}
