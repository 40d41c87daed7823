package repositories

import (
	"context"
	"time"

	"agrivalah-api/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// refreshTokenRepository implements RefreshTokenRepository interface
type refreshTokenRepository struct {
	db *gorm.DB
}

// NewRefreshTokenRepository creates a new refresh token repository
func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

// Create creates a new refresh token
func (r *refreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// GetByTokenHash gets a refresh token by its hash. Revoked rows are returned
// too — the caller distinguishes revoked from unknown.
func (r *refreshTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// TouchLastUsed updates the last-used timestamp
func (r *refreshTokenRepository) TouchLastUsed(ctx context.Context, id uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("id = ?", id).
		Update("last_used_at", &now).Error
}

// RevokeByTokenHash revokes a refresh token by its hash. Revoking an unknown
// or already-revoked token is a no-op.
func (r *refreshTokenRepository) RevokeByTokenHash(ctx context.Context, tokenHash string, revokedBy *uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Where("revoked_at IS NULL").
		Updates(map[string]interface{}{
			"revoked_at": &now,
			"revoked_by": revokedBy,
		}).Error
}

// RevokeAllByUserID revokes all non-revoked refresh tokens for a user
func (r *refreshTokenRepository) RevokeAllByUserID(ctx context.Context, userID uint, revokedBy uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Updates(map[string]interface{}{
			"revoked_at": &now,
			"revoked_by": revokedBy,
		}).Error
}

// CountActiveByUserID counts active tokens for a user
func (r *refreshTokenRepository) CountActiveByUserID(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ?", userID).
		Where("revoked_at IS NULL").
		Where("expires_at > ?", time.Now()).
		Count(&count).Error
	return count, err
}

// DeleteExpired deletes expired tokens plus revoked tokens older than the
// retention window (cleanup job)
func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, revokedRetention time.Duration) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL AND revoked_at < ?", now.Add(-revokedRetention)).
		Delete(&models.RefreshToken{})
	return result.RowsAffected, result.Error
}
