package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agrivalah-api/internal/adapters/http/middleware"
	"agrivalah-api/internal/adapters/persistence/models"
	"agrivalah-api/internal/adapters/persistence/repositories"
	"agrivalah-api/internal/config"
	"agrivalah-api/internal/core/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	cfg *config.Config
}

// setupTestEnv builds the full auth stack on an in-memory database. Routes
// are registered without rate limiters so tests can hammer endpoints freely.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cfg := &config.Config{
		AppMode: "dev",
		JWT: config.JWTConfig{
			Secret:           "test-secret",
			RefreshSecret:    "test-refresh-secret",
			AccessTokenMins:  15,
			RefreshTokenDays: 30,
		},
		Notification: config.NotificationConfig{
			EmailProvider: "mock",
			SMSProvider:   "mock",
		},
		BcryptCost: 4,
	}
	config.AppConfig = cfg

	userRepo := repositories.NewUserRepository(db)
	otpRepo := repositories.NewOTPRepository(db)
	refreshTokenRepo := repositories.NewRefreshTokenRepository(db)

	notifyService := services.NewNotificationService(cfg)
	otpService := services.NewOTPService(otpRepo, notifyService, cfg)
	authService := services.NewAuthService(userRepo, refreshTokenRepo, otpService, cfg)
	userService := services.NewUserService(userRepo, refreshTokenRepo)

	authHandler := NewAuthHandler(authService)
	userHandler := NewUserHandler(userService)

	app := fiber.New(fiber.Config{ErrorHandler: middleware.CustomErrorHandler})
	app.Use(recover.New())

	auth := app.Group("/api/v1/auth")
	auth.Post("/signup", authHandler.Signup)
	auth.Post("/verify-otp", authHandler.VerifyOTP)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	auth.Post("/logout", authHandler.Logout)
	auth.Post("/resend-otp", middleware.OptionalAuth(cfg), authHandler.ResendOTP)
	auth.Get("/me", middleware.AuthMiddleware(cfg), authHandler.Me)
	auth.Post("/logout-all", middleware.AuthMiddleware(cfg), authHandler.LogoutAll)
	auth.Post("/change-password", middleware.AuthMiddleware(cfg), authHandler.ChangePassword)

	admin := app.Group("/api/v1/admin", middleware.AuthMiddleware(cfg), middleware.AdminOnly())
	admin.Get("/users", userHandler.ListUsers)
	admin.Get("/users/:id", userHandler.GetUser)
	admin.Put("/users/:id/role", userHandler.SetRole)
	admin.Delete("/users/:id", userHandler.DeleteUser)

	return &testEnv{app: app, db: db, cfg: cfg}
}

// signupAndVerify registers a verified account and returns the token pair
// from the verification response.
func signupAndVerify(t *testing.T, env *testEnv, emailOrPhone, pass, role string) (accessToken, refreshToken string) {
	t.Helper()

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/v1/auth/signup", map[string]any{
		"name":         "Test User",
		"emailOrPhone": emailOrPhone,
		"password":     pass,
		"role":         role,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	_ = decodeJSONMap(t, resp)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/v1/auth/verify-otp", map[string]any{
		"emailOrPhone": emailOrPhone,
		"otp":          services.TestOTPCode,
	}, nil)
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)

	accessToken, _ = body["accessToken"].(string)
	refreshToken, _ = body["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatalf("expected token pair after verification, got %+v", body)
	}
	return accessToken, refreshToken
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertErrorMessage(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["message"].(string); got != expected {
		t.Fatalf("expected message %q, got %q", expected, got)
	}
}
