package services

import (
	"context"
	"log"
	"time"

	"agrivalah-api/internal/adapters/persistence/repositories"

	"github.com/robfig/cron/v3"
)

// revokedTokenRetention keeps revoked refresh tokens around for audit before
// the sweep removes them
const revokedTokenRetention = 7 * 24 * time.Hour

// CleanupService periodically deletes expired OTP challenges and refresh
// tokens. This is garbage collection only — verification always checks
// expiry timestamps itself and never depends on sweep timing.
type CleanupService struct {
	cron      *cron.Cron
	otpRepo   repositories.OTPRepository
	tokenRepo repositories.RefreshTokenRepository
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(otpRepo repositories.OTPRepository, tokenRepo repositories.RefreshTokenRepository) *CleanupService {
	return &CleanupService{
		cron:      cron.New(),
		otpRepo:   otpRepo,
		tokenRepo: tokenRepo,
	}
}

// Start schedules the sweeps
func (s *CleanupService) Start() {
	s.cron.AddFunc("@every 5m", s.sweepOTPs)
	s.cron.AddFunc("@daily", s.sweepRefreshTokens)
	s.cron.Start()
	log.Println("🚀 CleanupService started")
}

// Stop stops the scheduler
func (s *CleanupService) Stop() {
	s.cron.Stop()
	log.Println("🛑 CleanupService stopped")
}

func (s *CleanupService) sweepOTPs() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.otpRepo.DeleteExpired(ctx)
	if err != nil {
		log.Printf("❌ OTP sweep error: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("🧹 Deleted %d expired OTPs", deleted)
	}
}

func (s *CleanupService) sweepRefreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.tokenRepo.DeleteExpired(ctx, revokedTokenRetention)
	if err != nil {
		log.Printf("❌ Refresh token sweep error: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("🧹 Deleted %d expired/stale refresh tokens", deleted)
	}
}
