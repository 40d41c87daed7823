package repositories

import (
	"context"
	"time"

	"agrivalah-api/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// otpRepository implements OTPRepository interface
type otpRepository struct {
	db *gorm.DB
}

// NewOTPRepository creates a new OTP repository
func NewOTPRepository(db *gorm.DB) OTPRepository {
	return &otpRepository{db: db}
}

// Replace deletes all unused challenges for (target, purpose) and inserts the
// new one inside a single transaction, so at most one active challenge exists
// per key even under concurrent issue calls.
func (r *otpRepository) Replace(ctx context.Context, otp *models.OTP) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("target = ? AND purpose = ? AND is_used = ?", otp.Target, otp.Purpose, false).
			Delete(&models.OTP{}).Error; err != nil {
			return err
		}
		return tx.Create(otp).Error
	})
}

// GetLatestUnused gets the most recent unused challenge for (target, purpose)
func (r *otpRepository) GetLatestUnused(ctx context.Context, target, purpose string) (*models.OTP, error) {
	var otp models.OTP
	err := r.db.WithContext(ctx).
		Where("target = ? AND purpose = ? AND is_used = ?", target, purpose, false).
		Order("created_at DESC").
		First(&otp).Error
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

// Update persists attempt counter / used flag changes
func (r *otpRepository) Update(ctx context.Context, otp *models.OTP) error {
	return r.db.WithContext(ctx).Save(otp).Error
}

// DeleteExpired deletes all expired challenges (cleanup job). Verification
// checks expiry itself and never depends on this sweep.
func (r *otpRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&models.OTP{})
	return result.RowsAffected, result.Error
}
