package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"agrivalah-api/internal/adapters/persistence/models"
	"agrivalah-api/internal/adapters/persistence/repositories"
	"agrivalah-api/internal/config"
	"agrivalah-api/internal/pkg/jwt"
	"agrivalah-api/internal/pkg/password"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auth errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotVerified    = errors.New("user account is not verified")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidMitraData   = errors.New("invalid mitra subscription data")
)

// placeholderEmailDomain synthesizes an email for phone-only signups so the
// email uniqueness constraint still holds
const placeholderEmailDomain = "temp.agrivalah.com"

// AuthService orchestrates signup, OTP verification, login, token refresh
// and logout over the three stores
type AuthService struct {
	userRepo         repositories.UserRepository
	refreshTokenRepo repositories.RefreshTokenRepository
	otpService       *OTPService
	cfg              *config.Config
}

// NewAuthService creates a new auth service
func NewAuthService(
	userRepo repositories.UserRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
	otpService *OTPService,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		otpService:       otpService,
		cfg:              cfg,
	}
}

// ClientMeta carries request fingerprint data stored with challenges and
// refresh tokens
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// MitraSignup is the role-specific signup variant for mitra subscribers
type MitraSignup struct {
	SubscriptionType string  `json:"subscriptionType"`
	PaymentAmount    float64 `json:"paymentAmount"`
	CreditsEarned    float64 `json:"creditsEarned"`
}

// SignupInput represents signup input
type SignupInput struct {
	Name         string
	EmailOrPhone string
	Password     string
	Role         string
	Mitra        *MitraSignup
}

// SignupResult represents signup output (no tokens until OTP verification)
type SignupResult struct {
	UserID uint
	Target string // "email" or "phone"
	Role   string
	Mitra  *MitraSignup
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResponse represents a fully authenticated session
type AuthResponse struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// Signup creates an unverified identity and dispatches a signup OTP.
// Role-specific extras are a tagged variant: mitra signups must carry valid
// subscription data, every other role must not.
func (s *AuthService) Signup(ctx context.Context, input *SignupInput, meta ClientMeta) (*SignupResult, error) {
	// 1. Validate role variant
	if !models.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}
	if input.Role == models.RoleMitra {
		if input.Mitra == nil {
			return nil, ErrInvalidMitraData
		}
		switch input.Mitra.SubscriptionType {
		case models.SubscriptionTypeSubscription, models.SubscriptionTypeDonation:
		default:
			return nil, ErrInvalidMitraData
		}
	} else if input.Mitra != nil {
		return nil, ErrInvalidMitraData
	}

	// 2. Reject duplicate contacts
	exists, err := s.userRepo.ExistsByContact(ctx, input.EmailOrPhone)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	// 3. Hash password
	hashed, err := password.Hash(input.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	// 4. Create unverified identity
	isEmail := strings.Contains(input.EmailOrPhone, "@")
	user := &models.User{
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hashed,
		Role:         input.Role,
		Verified:     false,
	}
	if isEmail {
		user.Email = strings.ToLower(input.EmailOrPhone)
	} else {
		user.Phone = input.EmailOrPhone
		user.Email = input.EmailOrPhone + "@" + placeholderEmailDomain
	}
	if input.Mitra != nil {
		subType := input.Mitra.SubscriptionType
		status := "active"
		now := time.Now()
		user.SubscriptionType = &subType
		user.SubscriptionStatus = &status
		user.SubscriptionDate = &now
		user.PaymentAmount = input.Mitra.PaymentAmount
		user.CreditsEarned = input.Mitra.CreditsEarned
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	// 5. Issue and dispatch the signup OTP. Dispatch failure does not roll
	// back the identity; resend-otp is the recovery path.
	otpMeta := OTPMetadata{UserID: &user.ID, UserAgent: meta.UserAgent, IPAddress: meta.IPAddress}
	if err := s.otpService.Send(ctx, input.EmailOrPhone, models.PurposeSignup, otpMeta); err != nil {
		return nil, err
	}

	target := "phone"
	if isEmail {
		target = "email"
	}

	log.Printf("✅ User signed up: %s (role: %s), OTP pending", user.Email, user.Role)

	return &SignupResult{
		UserID: user.ID,
		Target: target,
		Role:   user.Role,
		Mitra:  input.Mitra,
	}, nil
}

// VerifySignup checks the signup OTP, marks the identity verified and opens
// the first session
func (s *AuthService) VerifySignup(ctx context.Context, emailOrPhone, code string, meta ClientMeta) (*AuthResponse, error) {
	if err := s.otpService.Verify(ctx, emailOrPhone, models.PurposeSignup, code); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByContact(ctx, emailOrPhone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.userRepo.MarkVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.Verified = true

	tokens, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ User verified: %s", user.Email)

	return &AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

// Login authenticates a verified user. Unknown contact and wrong password
// collapse into the same error so accounts cannot be enumerated.
func (s *AuthService) Login(ctx context.Context, emailOrPhone, plainPassword string, meta ClientMeta) (*AuthResponse, error) {
	user, err := s.userRepo.GetByContact(ctx, emailOrPhone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(plainPassword, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	if !user.Verified {
		return nil, ErrUserNotVerified
	}

	tokens, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ User logged in: %s", user.Email)

	return &AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

// Refresh mints a new access token from a valid refresh token. The refresh
// token itself is not rotated — /auth/refresh returns no replacement, so
// rotating would strand existing clients.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*models.User, string, error) {
	// 1. Validate signature and embedded expiry
	_, err := jwt.ValidateRefreshToken(refreshToken, s.cfg.JWT.RefreshSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, "", ErrTokenExpired
		}
		return nil, "", ErrInvalidToken
	}

	// 2. Find the persisted row by hash
	tokenHash := password.HashToken(refreshToken)
	stored, err := s.refreshTokenRepo.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidToken
		}
		return nil, "", err
	}

	if stored.IsRevoked() {
		return nil, "", ErrTokenRevoked
	}
	if stored.IsExpired() {
		return nil, "", ErrTokenExpired
	}

	user, err := s.userRepo.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidToken
		}
		return nil, "", err
	}

	if err := s.refreshTokenRepo.TouchLastUsed(ctx, stored.ID); err != nil {
		return nil, "", err
	}

	accessToken, err := jwt.GenerateAccessToken(
		user.ID, user.Email, user.Role,
		s.cfg.JWT.Secret, s.cfg.JWT.AccessTokenMins,
	)
	if err != nil {
		return nil, "", err
	}

	log.Printf("✅ Access token refreshed for user: %s", user.Email)
	return user, accessToken, nil
}

// Logout revokes the refresh token. Revoking an unknown or already-revoked
// token succeeds — logout is idempotent.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	tokenHash := password.HashToken(refreshToken)
	if err := s.refreshTokenRepo.RevokeByTokenHash(ctx, tokenHash, nil); err != nil {
		return err
	}

	log.Printf("✅ User logged out")
	return nil
}

// LogoutAll revokes every refresh token for a user
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) error {
	if err := s.refreshTokenRepo.RevokeAllByUserID(ctx, userID, userID); err != nil {
		return err
	}

	log.Printf("✅ All sessions revoked for user ID: %d", userID)
	return nil
}

// ChangePassword rehashes the password and revokes all refresh tokens so
// every other device has to re-authenticate
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, current, updated string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if !password.Verify(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hashed, err := password.Hash(updated, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	user.PasswordHash = hashed
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if err := s.refreshTokenRepo.RevokeAllByUserID(ctx, userID, userID); err != nil {
		return err
	}

	log.Printf("✅ Password changed for user ID: %d, all sessions revoked", userID)
	return nil
}

// ResendOTP issues and dispatches a fresh challenge, invalidating any prior
// unused one for the same (target, purpose) pair. userID is set when the
// caller is authenticated so the challenge carries its originator.
func (s *AuthService) ResendOTP(ctx context.Context, emailOrPhone, purpose string, userID *uint, meta ClientMeta) error {
	if purpose == "" {
		purpose = models.PurposeSignup
	}

	otpMeta := OTPMetadata{UserID: userID, UserAgent: meta.UserAgent, IPAddress: meta.IPAddress}
	return s.otpService.Send(ctx, emailOrPhone, purpose, otpMeta)
}

// CountActiveSessions counts the user's non-revoked, non-expired refresh
// tokens
func (s *AuthService) CountActiveSessions(ctx context.Context, userID uint) (int64, error) {
	return s.refreshTokenRepo.CountActiveByUserID(ctx, userID)
}

// GetUserByID gets a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// openSession generates an access+refresh token pair, persists the refresh
// token hash and bumps login metadata
func (s *AuthService) openSession(ctx context.Context, user *models.User, meta ClientMeta) (*TokenPair, error) {
	accessToken, err := jwt.GenerateAccessToken(
		user.ID, user.Email, user.Role,
		s.cfg.JWT.Secret, s.cfg.JWT.AccessTokenMins,
	)
	if err != nil {
		return nil, err
	}

	tokenID := uuid.New().String()
	refreshToken, err := jwt.GenerateRefreshToken(
		user.ID, tokenID,
		s.cfg.JWT.RefreshSecret, s.cfg.JWT.RefreshTokenDays,
	)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		UserID:    user.ID,
		TokenHash: password.HashToken(refreshToken),
		ExpiresAt: jwt.GetExpiryTime(s.cfg.JWT.RefreshTokenDays),
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}
	if err := s.refreshTokenRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLoginMeta(ctx, user.ID); err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
