package services

import (
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"agrivalah-api/internal/config"
)

// OTPNotifier delivers a verification code to a contact address out-of-band
type OTPNotifier interface {
	SendOTP(target, code, purpose string) error
}

// NotificationService sends OTP codes via email or SMS. Provider clients are
// built once at construction and injected where needed — no package-level
// singleton.
type NotificationService struct {
	cfg    *config.Config
	client *http.Client
}

// NewNotificationService creates a new notification service
func NewNotificationService(cfg *config.Config) *NotificationService {
	return &NotificationService{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendOTP routes the code to the email or SMS channel depending on the
// target's shape
func (s *NotificationService) SendOTP(target, code, purpose string) error {
	if strings.Contains(target, "@") {
		return s.sendEmailOTP(target, code, purpose)
	}
	return s.sendSMSOTP(target, code, purpose)
}

// sendEmailOTP sends the code via SMTP
func (s *NotificationService) sendEmailOTP(email, code, purpose string) error {
	if s.cfg.IsMockEmail() {
		log.Printf("📧 [MOCK EMAIL] OTP %s sent to %s for %s", code, email, purpose)
		return nil
	}

	n := s.cfg.Notification
	auth := smtp.PlainAuth("", n.SMTPUser, n.SMTPPass, n.SMTPHost)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n"+
		"Your AgriValah verification code is: %s\r\n"+
		"This code will expire in 5 minutes. Do not share this code with anyone.\r\n",
		n.SMTPUser, email, emailSubject(purpose), code)

	addr := n.SMTPHost + ":" + n.SMTPPort
	return smtp.SendMail(addr, auth, n.SMTPUser, []string{email}, []byte(msg))
}

// sendSMSOTP sends the code via the configured SMS gateway
func (s *NotificationService) sendSMSOTP(phone, code, purpose string) error {
	if s.cfg.IsMockSMS() {
		log.Printf("📱 [MOCK SMS] OTP %s sent to %s for %s", code, phone, purpose)
		return nil
	}

	n := s.cfg.Notification
	data := url.Values{}
	data.Set("to", phone)
	data.Set("sender", n.SMSSender)
	data.Set("message", fmt.Sprintf(
		"Your AgriValah verification code is: %s. Valid for 5 minutes. Do not share this code.", code))

	req, err := http.NewRequest(http.MethodPost, n.SMSAPIURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+n.SMSAPIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// emailSubject returns the email subject line for an OTP purpose
func emailSubject(purpose string) string {
	switch purpose {
	case "signup":
		return "Welcome to AgriValah - Verify Your Account"
	case "login":
		return "AgriValah Login Verification"
	case "password_reset":
		return "Reset Your AgriValah Password"
	case "phone_verification":
		return "Verify Your Phone Number"
	case "email_verification":
		return "Verify Your Email Address"
	case "transaction":
		return "Transaction Verification"
	}
	return "AgriValah Verification"
}
