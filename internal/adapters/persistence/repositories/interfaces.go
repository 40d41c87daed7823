package repositories

import (
	"context"
	"time"

	"agrivalah-api/internal/adapters/persistence/models"
)

// UserRepository defines user repository interface
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByContact(ctx context.Context, emailOrPhone string) (*models.User, error)
	ExistsByContact(ctx context.Context, emailOrPhone string) (bool, error)
	Update(ctx context.Context, user *models.User) error
	MarkVerified(ctx context.Context, id uint) error
	UpdateLoginMeta(ctx context.Context, id uint) error
	// List returns a page of users, optionally filtered by role, with the
	// unfiltered total.
	List(ctx context.Context, offset, limit int, role string) ([]*models.User, int64, error)
	Delete(ctx context.Context, id uint) error
}

// OTPRepository defines OTP repository interface
type OTPRepository interface {
	// Replace deletes all unused challenges for (target, purpose) and inserts
	// otp in a single transaction.
	Replace(ctx context.Context, otp *models.OTP) error
	GetLatestUnused(ctx context.Context, target, purpose string) (*models.OTP, error)
	Update(ctx context.Context, otp *models.OTP) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// RefreshTokenRepository defines refresh token repository interface
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	TouchLastUsed(ctx context.Context, id uint) error
	RevokeByTokenHash(ctx context.Context, tokenHash string, revokedBy *uint) error
	RevokeAllByUserID(ctx context.Context, userID uint, revokedBy uint) error
	CountActiveByUserID(ctx context.Context, userID uint) (int64, error)
	DeleteExpired(ctx context.Context, revokedRetention time.Duration) (int64, error)
}
