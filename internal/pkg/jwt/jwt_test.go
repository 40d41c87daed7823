package jwt

import (
	"errors"
	"testing"
)

const (
	testSecret        = "access-secret"
	testRefreshSecret = "refresh-secret"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken(42, "farmer@test.com", "farmer", testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := ValidateAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}

	if claims.UserID != 42 {
		t.Errorf("expected user ID 42, got %d", claims.UserID)
	}
	if claims.Email != "farmer@test.com" {
		t.Errorf("expected email farmer@test.com, got %q", claims.Email)
	}
	if claims.Role != "farmer" {
		t.Errorf("expected role farmer, got %q", claims.Role)
	}
}

func TestAccessTokenWrongSecret(t *testing.T) {
	token, err := GenerateAccessToken(42, "farmer@test.com", "farmer", testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := ValidateAccessToken(token, "other-secret"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestAccessTokenExpired(t *testing.T) {
	token, err := GenerateAccessToken(42, "farmer@test.com", "farmer", testSecret, -1)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	if _, err := ValidateAccessToken(token, testSecret); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	token, err := GenerateRefreshToken(7, "token-id-1", testRefreshSecret, 30)
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}

	claims, err := ValidateRefreshToken(token, testRefreshSecret)
	if err != nil {
		t.Fatalf("ValidateRefreshToken failed: %v", err)
	}

	if claims.UserID != 7 {
		t.Errorf("expected user ID 7, got %d", claims.UserID)
	}
	if claims.TokenID != "token-id-1" {
		t.Errorf("expected token ID token-id-1, got %q", claims.TokenID)
	}
}

func TestRefreshTokenWrongSecret(t *testing.T) {
	token, err := GenerateRefreshToken(7, "token-id-1", testRefreshSecret, 30)
	if err != nil {
		t.Fatalf("GenerateRefreshToken failed: %v", err)
	}

	if _, err := ValidateRefreshToken(token, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGarbageToken(t *testing.T) {
	if _, err := ValidateAccessToken("not-a-jwt", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := ValidateRefreshToken("not-a-jwt", testRefreshSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}
