package handlers

import (
	"errors"
	"strings"

	"agrivalah-api/internal/adapters/persistence/models"
	"agrivalah-api/internal/core/services"
	"agrivalah-api/internal/pkg/password"
	"agrivalah-api/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *services.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// SignupRequest represents signup request body
type SignupRequest struct {
	Name         string  `json:"name"`
	EmailOrPhone string  `json:"emailOrPhone"`
	Password     string  `json:"password"`
	Role         string  `json:"role"`
	// Mitra-only fields
	SubscriptionType string  `json:"subscriptionType"`
	PaymentAmount    float64 `json:"paymentAmount"`
	CreditsEarned    float64 `json:"creditsEarned"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Password     string `json:"password"`
}

// VerifyOTPRequest represents OTP verification request body
type VerifyOTPRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	OTP          string `json:"otp"`
}

// RefreshRequest represents token refresh request body
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest represents logout request body
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// ResendOTPRequest represents resend OTP request body
type ResendOTPRequest struct {
	EmailOrPhone string `json:"emailOrPhone"`
	Purpose      string `json:"purpose"`
}

// ChangePasswordRequest represents change password request body
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Signup handles user signup
// @Summary Sign up a new user (customer/mitra/farmer/...)
// @Description Creates an unverified account and sends a signup OTP
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body SignupRequest true "Signup data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.Name == "" || req.EmailOrPhone == "" || req.Password == "" {
		return response.BadRequest(c, "Name, email/phone, and password are required")
	}
	if !password.ValidatePassword(req.Password) {
		return response.BadRequest(c, "Password must be at least 6 characters")
	}

	role := req.Role
	if role == "" {
		role = models.RoleCustomer
	}

	// Role extras travel as a tagged variant; the service rejects extras on
	// non-mitra roles and missing extras on mitra.
	var mitra *services.MitraSignup
	if req.SubscriptionType != "" || req.PaymentAmount != 0 || req.CreditsEarned != 0 {
		mitra = &services.MitraSignup{
			SubscriptionType: req.SubscriptionType,
			PaymentAmount:    req.PaymentAmount,
			CreditsEarned:    req.CreditsEarned,
		}
	}

	input := &services.SignupInput{
		Name:         strings.TrimSpace(req.Name),
		EmailOrPhone: strings.TrimSpace(req.EmailOrPhone),
		Password:     req.Password,
		Role:         role,
		Mitra:        mitra,
	}

	result, err := h.authService.Signup(c.Context(), input, clientMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserAlreadyExists):
			return response.BadRequest(c, "User already exists with this email/phone")
		case errors.Is(err, services.ErrInvalidRole):
			return response.BadRequest(c, "Invalid role")
		case errors.Is(err, services.ErrInvalidMitraData):
			return response.BadRequest(c, "Invalid mitra subscription data")
		default:
			return response.InternalServerError(c, "Internal server error")
		}
	}

	message := "OTP sent"
	data := fiber.Map{
		"userId":  result.UserID,
		"otpSent": true,
		"target":  result.Target,
		"role":    result.Role,
	}
	if result.Mitra != nil {
		message = "Payment processed successfully! OTP sent for verification."
		data["subscriptionType"] = result.Mitra.SubscriptionType
		data["paymentAmount"] = result.Mitra.PaymentAmount
		data["creditsEarned"] = result.Mitra.CreditsEarned
	}

	return response.Success(c, message, data)
}

// VerifyOTP handles OTP verification and completes registration
// @Summary Verify signup OTP
// @Description Verifies the OTP, marks the account verified and returns tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body VerifyOTPRequest true "Verification data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} response.Response
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req VerifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.EmailOrPhone == "" || req.OTP == "" {
		return response.BadRequest(c, "Email/phone and OTP are required")
	}

	result, err := h.authService.VerifySignup(c.Context(), strings.TrimSpace(req.EmailOrPhone), req.OTP, clientMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOTPNotFound):
			return response.BadRequest(c, "OTP not found or expired")
		case errors.Is(err, services.ErrOTPExpired):
			return response.BadRequest(c, "OTP expired")
		case errors.Is(err, services.ErrOTPExhausted):
			return response.BadRequest(c, "Maximum attempts exceeded")
		case errors.Is(err, services.ErrOTPMismatch):
			return response.BadRequest(c, "Invalid OTP")
		case errors.Is(err, services.ErrUserNotFound):
			return response.NotFound(c, "User not found")
		default:
			return response.InternalServerError(c, "Internal server error")
		}
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"user":         result.User.ToResponse(),
	})
}

// Login handles user login
// @Summary Login with email/phone and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LoginRequest true "Login credentials"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.Response
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.EmailOrPhone == "" || req.Password == "" {
		return response.BadRequest(c, "Email/phone and password are required")
	}

	result, err := h.authService.Login(c.Context(), strings.TrimSpace(req.EmailOrPhone), req.Password, clientMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			return response.Unauthorized(c, "Invalid credentials")
		case errors.Is(err, services.ErrUserNotVerified):
			return response.ErrorWithCode(c, fiber.StatusUnauthorized,
				"Please verify your account first", "ACCOUNT_NOT_VERIFIED")
		default:
			return response.InternalServerError(c, "Internal server error")
		}
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"user":         result.User.ToResponse(),
	})
}

// Refresh handles access token renewal
// @Summary Refresh access token
// @Description Mints a new access token; the refresh token is not rotated
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body RefreshRequest true "Refresh token"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} response.Response
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.RefreshToken == "" {
		return response.Unauthorized(c, "Refresh token required")
	}

	user, accessToken, err := h.authService.Refresh(c.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			return response.Forbidden(c, "Refresh token expired")
		case errors.Is(err, services.ErrTokenRevoked), errors.Is(err, services.ErrInvalidToken):
			return response.Forbidden(c, "Invalid refresh token")
		default:
			return response.InternalServerError(c, "Internal server error")
		}
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"accessToken": accessToken,
		"user": fiber.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

// Logout handles user logout
// @Summary Logout
// @Description Revokes the refresh token; unknown tokens still succeed
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body LogoutRequest true "Refresh token"
// @Success 200 {object} response.Response
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req LogoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.RefreshToken != "" {
		if err := h.authService.Logout(c.Context(), req.RefreshToken); err != nil {
			return response.InternalServerError(c, "Internal server error")
		}
	}

	return response.Success(c, "Logged out successfully", nil)
}

// ResendOTP handles OTP resend
// @Summary Resend an OTP
// @Description Invalidates any outstanding challenge and sends a fresh code
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body ResendOTPRequest true "Resend data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /auth/resend-otp [post]
func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	var req ResendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.EmailOrPhone == "" {
		return response.BadRequest(c, "Email or phone is required")
	}

	// OptionalAuth: stamp the challenge with the caller when logged in
	var userID *uint
	if id, ok := c.Locals("userID").(uint); ok {
		userID = &id
	}

	err := h.authService.ResendOTP(c.Context(), strings.TrimSpace(req.EmailOrPhone), req.Purpose, userID, clientMeta(c))
	if err != nil {
		if errors.Is(err, services.ErrBadPurpose) {
			return response.BadRequest(c, "Invalid OTP purpose")
		}
		return response.InternalServerError(c, "Failed to send OTP")
	}

	return response.Success(c, "OTP sent successfully", nil)
}

// Me returns the current user info
// @Summary Get current user
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} response.Response
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	user, err := h.authService.GetUserByID(c.Context(), userID)
	if err != nil {
		return response.NotFound(c, "User not found")
	}

	sessions, err := h.authService.CountActiveSessions(c.Context(), userID)
	if err != nil {
		return response.InternalServerError(c, "Internal server error")
	}

	return c.JSON(fiber.Map{
		"success":        true,
		"user":           user.ToResponse(),
		"activeSessions": sessions,
	})
}

// LogoutAll handles logout from all devices
// @Summary Logout from all devices
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	if err := h.authService.LogoutAll(c.Context(), userID); err != nil {
		return response.InternalServerError(c, "Failed to logout from all devices")
	}

	return response.Success(c, "Logged out from all devices", nil)
}

// ChangePassword handles password change
// @Summary Change password
// @Description Changes the password and revokes all refresh tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body ChangePasswordRequest true "Password data"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return response.Unauthorized(c, "Unauthorized")
	}

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		return response.BadRequest(c, "Current password and new password are required")
	}
	if !password.ValidatePassword(req.NewPassword) {
		return response.BadRequest(c, "Password must be at least 6 characters")
	}

	if err := h.authService.ChangePassword(c.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			return response.BadRequest(c, "Current password is incorrect")
		default:
			return response.InternalServerError(c, "Internal server error")
		}
	}

	return response.Success(c, "Password changed successfully", nil)
}

// clientMeta extracts the request fingerprint stored with challenges and
// refresh tokens
func clientMeta(c *fiber.Ctx) services.ClientMeta {
	return services.ClientMeta{
		UserAgent: c.Get("User-Agent"),
		IPAddress: c.IP(),
	}
}
