package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"agrivalah-api/internal/adapters/persistence/models"
	"agrivalah-api/internal/adapters/persistence/repositories"
	"agrivalah-api/internal/config"

	"gorm.io/gorm"
)

// OTP errors
var (
	ErrOTPNotFound  = errors.New("otp not found")
	ErrOTPExpired   = errors.New("otp expired")
	ErrOTPExhausted = errors.New("maximum otp attempts exceeded")
	ErrOTPMismatch  = errors.New("invalid otp")
	ErrBadPurpose   = errors.New("invalid otp purpose")
)

const (
	otpLength = 6

	// OTPTTL is how long an issued challenge stays valid
	OTPTTL = 5 * time.Minute

	// TestOTPCode is the fixed code issued instead of a random one when
	// running in dev mode
	TestOTPCode = "123456"
)

// OTPMetadata carries originating request details stored on a challenge
type OTPMetadata struct {
	UserID    *uint
	UserAgent string
	IPAddress string
}

// OTPService issues and verifies one-time passcodes
type OTPService struct {
	otpRepo  repositories.OTPRepository
	notifier OTPNotifier
	cfg      *config.Config
}

// NewOTPService creates a new OTP service
func NewOTPService(otpRepo repositories.OTPRepository, notifier OTPNotifier, cfg *config.Config) *OTPService {
	return &OTPService{
		otpRepo:  otpRepo,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Issue invalidates any prior unused challenge for (target, purpose) and
// persists a fresh one. Returns the plaintext code for out-of-band dispatch;
// the code never appears in an API response body.
func (s *OTPService) Issue(ctx context.Context, target, purpose string, meta OTPMetadata) (string, error) {
	if !models.ValidPurpose(purpose) {
		return "", ErrBadPurpose
	}

	code := TestOTPCode
	if !s.cfg.IsDev() {
		generated, err := generateCode(otpLength)
		if err != nil {
			return "", fmt.Errorf("failed to generate otp: %w", err)
		}
		code = generated
	}

	otp := &models.OTP{
		Target:    target,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: time.Now().Add(OTPTTL),
		UserID:    meta.UserID,
		UserAgent: meta.UserAgent,
		IPAddress: meta.IPAddress,
	}

	if err := s.otpRepo.Replace(ctx, otp); err != nil {
		return "", err
	}

	return code, nil
}

// Send issues a new challenge and dispatches the code. Dispatch failure is
// logged but not rolled back — the resend endpoint is the recovery path.
func (s *OTPService) Send(ctx context.Context, target, purpose string, meta OTPMetadata) error {
	code, err := s.Issue(ctx, target, purpose, meta)
	if err != nil {
		return err
	}

	if err := s.notifier.SendOTP(target, code, purpose); err != nil {
		log.Printf("⚠️ OTP dispatch to %s failed: %v", target, err)
		return nil
	}

	log.Printf("✅ OTP sent to %s for %s", target, purpose)
	return nil
}

// Verify checks a candidate code against the most recent unused challenge
// for (target, purpose).
//
// Expired challenges fail without touching the attempt counter. Every other
// failed call persists the incremented counter, so repeated wrong guesses
// converge to ErrOTPExhausted.
func (s *OTPService) Verify(ctx context.Context, target, purpose, code string) error {
	otp, err := s.otpRepo.GetLatestUnused(ctx, target, purpose)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOTPNotFound
		}
		return err
	}

	if otp.IsExpired() {
		return ErrOTPExpired
	}

	if otp.IsExhausted() {
		return ErrOTPExhausted
	}

	otp.Attempts++

	if otp.Code != code {
		if err := s.otpRepo.Update(ctx, otp); err != nil {
			return err
		}
		return ErrOTPMismatch
	}

	otp.IsUsed = true
	return s.otpRepo.Update(ctx, otp)
}

// generateCode generates a uniformly distributed fixed-width numeric code
func generateCode(length int) (string, error) {
	result := ""
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		result += fmt.Sprintf("%d", n.Int64())
	}
	return result, nil
}
