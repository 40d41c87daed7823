package models

import (
	"time"

	"gorm.io/gorm"
)

// ============================================================
// Auth & Identity Tables
// ============================================================

// User roles
const (
	RoleCustomer        = "customer"
	RoleMitra           = "mitra"
	RoleFarmer          = "farmer"
	RoleReseller        = "reseller"
	RoleStartup         = "agritech_startup"
	RoleServiceProvider = "service_provider"
	RoleAdmin           = "admin"
)

// ValidRole reports whether role is a known user role
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleMitra, RoleFarmer, RoleReseller, RoleStartup, RoleServiceProvider, RoleAdmin:
		return true
	}
	return false
}

// Mitra subscription types
const (
	SubscriptionTypeSubscription = "subscription"
	SubscriptionTypeDonation     = "donation"
)

// User represents users table
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Name         string         `gorm:"size:100;not null" json:"name"`
	Email        string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Phone        string         `gorm:"size:20;index" json:"phone"`
	PasswordHash string         `gorm:"size:255;not null" json:"-"`
	Role         string         `gorm:"size:30;not null;default:'customer'" json:"role"`
	Verified     bool           `gorm:"default:false" json:"verified"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`

	// Mitra subscription fields (only set when Role == mitra)
	SubscriptionType   *string    `gorm:"size:20" json:"subscription_type,omitempty"`
	SubscriptionStatus *string    `gorm:"size:20" json:"subscription_status,omitempty"`
	SubscriptionDate   *time.Time `json:"subscription_date,omitempty"`
	PaymentAmount      float64    `gorm:"default:0" json:"payment_amount,omitempty"`
	CreditsEarned      float64    `gorm:"default:0" json:"credits_earned,omitempty"`

	// Login metadata
	LastLoginAt *time.Time `json:"-"`
	LoginCount  int        `gorm:"default:0" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse is the redacted identity view returned by auth endpoints
type UserResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Phone:    u.Phone,
		Role:     u.Role,
		Verified: u.Verified,
	}
}

// ============================================================
// OTP Table
// ============================================================

// OTP purposes
const (
	PurposeSignup            = "signup"
	PurposeLogin             = "login"
	PurposePasswordReset     = "password_reset"
	PurposePhoneVerification = "phone_verification"
	PurposeEmailVerification = "email_verification"
	PurposeTransaction       = "transaction"
)

// ValidPurpose reports whether purpose is a known OTP purpose
func ValidPurpose(purpose string) bool {
	switch purpose {
	case PurposeSignup, PurposeLogin, PurposePasswordReset,
		PurposePhoneVerification, PurposeEmailVerification, PurposeTransaction:
		return true
	}
	return false
}

// MaxOTPAttempts caps wrong-code guesses per challenge
const MaxOTPAttempts = 3

// OTP represents otps table — one outstanding verification challenge
type OTP struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Target    string    `gorm:"size:100;not null;index:idx_otps_target_purpose" json:"target"`
	Code      string    `gorm:"size:6;not null" json:"-"`
	Purpose   string    `gorm:"size:30;not null;index:idx_otps_target_purpose" json:"purpose"`
	Attempts  int       `gorm:"default:0" json:"attempts"`
	IsUsed    bool      `gorm:"default:false" json:"is_used"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Originating request metadata
	UserID    *uint  `json:"user_id,omitempty"`
	UserAgent string `gorm:"size:255" json:"-"`
	IPAddress string `gorm:"size:50" json:"-"`
}

func (OTP) TableName() string {
	return "otps"
}

func (o *OTP) IsExpired() bool {
	return !time.Now().Before(o.ExpiresAt)
}

func (o *OTP) IsExhausted() bool {
	return o.Attempts >= MaxOTPAttempts
}

// ============================================================
// Refresh Token Table
// ============================================================

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"index;not null" json:"user_id"`
	TokenHash  string     `gorm:"size:255;not null;uniqueIndex" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null;index" json:"expires_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt  *time.Time `gorm:"index" json:"revoked_at"`
	RevokedBy  *uint      `json:"revoked_by,omitempty"`
	LastUsedAt *time.Time `json:"-"`
	UserAgent  string     `gorm:"size:255" json:"-"`
	IPAddress  string     `gorm:"size:50" json:"-"`
	User       User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all auth tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&OTP{},
		&RefreshToken{},
	)
}
