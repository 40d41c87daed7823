package routes

import (
	"agrivalah-api/internal/adapters/http/handlers"
	"agrivalah-api/internal/adapters/http/middleware"
	"agrivalah-api/internal/adapters/persistence/repositories"
	"agrivalah-api/internal/config"
	"agrivalah-api/internal/core/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Setup configures all routes for the application
func Setup(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	otpRepo := repositories.NewOTPRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)

	// Initialize services
	notifyService := services.NewNotificationService(cfg)
	otpService := services.NewOTPService(otpRepo, notifyService, cfg)
	authService := services.NewAuthService(userRepo, refreshTokenRepo, otpService, cfg)
	userService := services.NewUserService(userRepo, refreshTokenRepo)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)

	// Health check & root routes
	app.Get("/", healthHandler.Root)
	app.Get("/health", healthHandler.HealthCheck)

	// API v1 group
	apiV1 := app.Group("/api/v1")
	setupAuthRoutes(apiV1, authHandler, cfg)
	setupAdminRoutes(apiV1, userHandler, cfg)
}

// setupAuthRoutes configures authentication routes
func setupAuthRoutes(router fiber.Router, authHandler *handlers.AuthHandler, cfg *config.Config) {
	auth := router.Group("/auth")

	// Public routes with auth rate limiting
	auth.Post("/signup", middleware.AuthRateLimiter(), authHandler.Signup)
	auth.Post("/verify-otp", middleware.AuthRateLimiter(), authHandler.VerifyOTP)
	auth.Post("/login", middleware.AuthRateLimiter(), authHandler.Login)
	auth.Post("/refresh", middleware.AuthRateLimiter(), authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)
	// OptionalAuth so a logged-in caller's identity is stamped on the challenge
	auth.Post("/resend-otp", middleware.OptionalAuth(cfg), middleware.StrictRateLimiter(), authHandler.ResendOTP)

	// Protected routes
	auth.Get("/me", middleware.AuthMiddleware(cfg), authHandler.Me)
	auth.Post("/logout-all", middleware.AuthMiddleware(cfg), authHandler.LogoutAll)
	auth.Post("/change-password", middleware.AuthMiddleware(cfg), middleware.StrictRateLimiter(), authHandler.ChangePassword)
}

// setupAdminRoutes configures admin-only user management routes
func setupAdminRoutes(router fiber.Router, userHandler *handlers.UserHandler, cfg *config.Config) {
	admin := router.Group("/admin", middleware.AuthMiddleware(cfg), middleware.AdminOnly())

	admin.Get("/users", userHandler.ListUsers)
	admin.Get("/users/:id", userHandler.GetUser)
	admin.Put("/users/:id/role", userHandler.SetRole)
	admin.Delete("/users/:id", userHandler.DeleteUser)
}
