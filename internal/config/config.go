package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	AppMode      string
	Port         string
	Database     DatabaseConfig
	JWT          JWTConfig
	Notification NotificationConfig
	BcryptCost   int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// JWTConfig holds token signing configuration
type JWTConfig struct {
	Secret           string
	RefreshSecret    string
	AccessTokenMins  int
	RefreshTokenDays int
}

// NotificationConfig holds OTP delivery channel configuration.
// Provider "mock" logs codes instead of sending them.
type NotificationConfig struct {
	EmailProvider string
	SMTPHost      string
	SMTPPort      string
	SMTPUser      string
	SMTPPass      string
	SMSProvider   string
	SMSAPIURL     string
	SMSAPIKey     string
	SMSSender     string
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Get APP_MODE (default to "dev") - trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	bcryptCost, _ := strconv.Atoi(getEnv("BCRYPT_COST", "12"))

	config := &Config{
		AppMode:      appMode,
		Port:         getEnv("PORT", "3000"),
		Database:     loadDatabaseConfig(appMode),
		JWT:          loadJWTConfig(appMode),
		Notification: loadNotificationConfig(appMode),
		BcryptCost:   bcryptCost,
	}

	// Set global config
	AppConfig = config

	log.Printf("✅ Configuration loaded successfully [MODE: %s]", appMode)
	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) DatabaseConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	return DatabaseConfig{
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", "3306"),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "agrivalah"),
	}
}

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	prefix := "DEV_"
	if mode == "prod" {
		prefix = "PROD_"
	}

	accessMins, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_MINUTES", "15"))
	refreshDays, _ := strconv.Atoi(getEnv("REFRESH_TOKEN_DAYS", "30"))

	return JWTConfig{
		Secret:           getEnv(prefix+"JWT_SECRET", "default_secret"),
		RefreshSecret:    getEnv(prefix+"JWT_REFRESH_SECRET", "default_refresh_secret"),
		AccessTokenMins:  accessMins,
		RefreshTokenDays: refreshDays,
	}
}

// loadNotificationConfig loads OTP delivery config based on mode.
// Dev defaults to mock providers so no real mail/SMS leaves the box.
func loadNotificationConfig(mode string) NotificationConfig {
	defaultProvider := "mock"
	if mode == "prod" {
		defaultProvider = "smtp"
	}
	defaultSMS := "mock"
	if mode == "prod" {
		defaultSMS = "gateway"
	}

	return NotificationConfig{
		EmailProvider: getEnv("EMAIL_PROVIDER", defaultProvider),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "587"),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPass:      getEnv("SMTP_PASS", ""),
		SMSProvider:   getEnv("OTP_PROVIDER", defaultSMS),
		SMSAPIURL:     getEnv("SMS_API_URL", ""),
		SMSAPIKey:     getEnv("SMS_API_KEY", ""),
		SMSSender:     getEnv("SMS_SENDER", "AgriValah"),
	}
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// IsMockEmail returns true if email delivery is mocked
func (c *Config) IsMockEmail() bool {
	return c.Notification.EmailProvider == "mock"
}

// IsMockSMS returns true if SMS delivery is mocked
func (c *Config) IsMockSMS() bool {
	return c.Notification.SMSProvider == "mock"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		// Default production origins
		return "https://agrivalah.com"
	}
	return origins
}
