package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"agrivalah-api/internal/adapters/persistence/models"
	"agrivalah-api/internal/pkg/password"
)

func signupVerified(t *testing.T, env *serviceTestEnv, emailOrPhone, pass, role string, mitra *MitraSignup) *AuthResponse {
	t.Helper()
	ctx := context.Background()

	_, err := env.authService.Signup(ctx, &SignupInput{
		Name:         "Test User",
		EmailOrPhone: emailOrPhone,
		Password:     pass,
		Role:         role,
		Mitra:        mitra,
	}, ClientMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	auth, err := env.authService.VerifySignup(ctx, emailOrPhone, TestOTPCode, ClientMeta{})
	if err != nil {
		t.Fatalf("VerifySignup failed: %v", err)
	}
	return auth
}

func TestSignupVariantValidation(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		role  string
		mitra *MitraSignup
		want  error
	}{
		{"unknown role", "superuser", nil, ErrInvalidRole},
		{"mitra without extras", models.RoleMitra, nil, ErrInvalidMitraData},
		{"mitra with bad subscription type", models.RoleMitra, &MitraSignup{SubscriptionType: "lifetime"}, ErrInvalidMitraData},
		{"customer with extras", models.RoleCustomer, &MitraSignup{SubscriptionType: "subscription"}, ErrInvalidMitraData},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.authService.Signup(ctx, &SignupInput{
				Name:         "Variant",
				EmailOrPhone: "variant@test.com",
				Password:     "Test@123",
				Role:         tc.role,
				Mitra:        tc.mitra,
			}, ClientMeta{})
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignupStoresLowercasedEmail(t *testing.T) {
	env := setupServiceTest(t)

	result, err := env.authService.Signup(context.Background(), &SignupInput{
		Name:         "Caps",
		EmailOrPhone: "Caps@Test.COM",
		Password:     "Test@123",
		Role:         models.RoleCustomer,
	}, ClientMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	var user models.User
	if err := env.db.First(&user, result.UserID).Error; err != nil {
		t.Fatalf("failed loading user: %v", err)
	}
	if user.Email != "caps@test.com" {
		t.Errorf("expected lowercased email, got %q", user.Email)
	}
	if user.Verified {
		t.Errorf("signup must not verify the account")
	}
}

func TestVerifySignupOpensSession(t *testing.T) {
	env := setupServiceTest(t)
	auth := signupVerified(t, env, "session@test.com", "Test@123", models.RoleFarmer, nil)

	if !auth.User.Verified {
		t.Errorf("expected verified user")
	}
	if auth.AccessToken == "" || auth.RefreshToken == "" {
		t.Errorf("expected token pair, got %+v", auth)
	}

	// Refresh token is stored hashed, never in plaintext
	var stored models.RefreshToken
	if err := env.db.Where("user_id = ?", auth.User.ID).First(&stored).Error; err != nil {
		t.Fatalf("failed loading refresh token: %v", err)
	}
	if stored.TokenHash != password.HashToken(auth.RefreshToken) {
		t.Errorf("stored hash does not match token")
	}
	if stored.TokenHash == auth.RefreshToken {
		t.Errorf("refresh token stored in plaintext")
	}

	var user models.User
	env.db.First(&user, auth.User.ID)
	if user.LoginCount != 1 {
		t.Errorf("expected login count 1, got %d", user.LoginCount)
	}
	if user.LastLoginAt == nil {
		t.Errorf("expected last login timestamp")
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	auth := signupVerified(t, env, "lifecycle@test.com", "Test@123", models.RoleCustomer, nil)

	t.Run("refresh mints a new access token", func(t *testing.T) {
		user, accessToken, err := env.authService.Refresh(ctx, auth.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}
		if accessToken == "" {
			t.Errorf("expected access token")
		}
		if user.ID != auth.User.ID {
			t.Errorf("expected user %d, got %d", auth.User.ID, user.ID)
		}
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		_, _, err := env.authService.Refresh(ctx, auth.RefreshToken+"x")
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired stored token rejected", func(t *testing.T) {
		env.db.Model(&models.RefreshToken{}).
			Where("user_id = ?", auth.User.ID).
			Update("expires_at", time.Now().Add(-time.Hour))

		_, _, err := env.authService.Refresh(ctx, auth.RefreshToken)
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}

		env.db.Model(&models.RefreshToken{}).
			Where("user_id = ?", auth.User.ID).
			Update("expires_at", time.Now().Add(time.Hour))
	})

	t.Run("revoked token distinguished from unknown", func(t *testing.T) {
		if err := env.authService.Logout(ctx, auth.RefreshToken); err != nil {
			t.Fatalf("Logout failed: %v", err)
		}

		_, _, err := env.authService.Refresh(ctx, auth.RefreshToken)
		if !errors.Is(err, ErrTokenRevoked) {
			t.Errorf("expected ErrTokenRevoked, got %v", err)
		}
	})

	t.Run("logout is idempotent", func(t *testing.T) {
		if err := env.authService.Logout(ctx, auth.RefreshToken); err != nil {
			t.Errorf("second logout failed: %v", err)
		}
		if err := env.authService.Logout(ctx, "never-issued"); err != nil {
			t.Errorf("logout with unknown token failed: %v", err)
		}
	})
}

func TestLoginChecksOrder(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	_, err := env.authService.Signup(ctx, &SignupInput{
		Name:         "Unverified",
		EmailOrPhone: "unverified@test.com",
		Password:     "Test@123",
		Role:         models.RoleCustomer,
	}, ClientMeta{})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}

	t.Run("wrong password on unverified account reports credentials first", func(t *testing.T) {
		_, err := env.authService.Login(ctx, "unverified@test.com", "Wrong@123", ClientMeta{})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("correct password on unverified account blocked", func(t *testing.T) {
		_, err := env.authService.Login(ctx, "unverified@test.com", "Test@123", ClientMeta{})
		if !errors.Is(err, ErrUserNotVerified) {
			t.Errorf("expected ErrUserNotVerified, got %v", err)
		}
	})

	t.Run("unknown contact indistinguishable from wrong password", func(t *testing.T) {
		_, err := env.authService.Login(ctx, "ghost@test.com", "Test@123", ClientMeta{})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	auth := signupVerified(t, env, "changepw@test.com", "Old@123", models.RoleCustomer, nil)

	if err := env.authService.ChangePassword(ctx, auth.User.ID, "Wrong@123", "New@123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := env.authService.ChangePassword(ctx, auth.User.ID, "Old@123", "New@123"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	if _, _, err := env.authService.Refresh(ctx, auth.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("expected old session revoked, got %v", err)
	}

	if _, err := env.authService.Login(ctx, "changepw@test.com", "New@123", ClientMeta{}); err != nil {
		t.Errorf("login with new password failed: %v", err)
	}
}

func TestRefreshTokenSweepRetention(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()
	auth := signupVerified(t, env, "sweep@test.com", "Test@123", models.RoleCustomer, nil)

	tokenRepo := env.authService.refreshTokenRepo

	// Freshly revoked token survives the sweep inside the retention window
	if err := env.authService.Logout(ctx, auth.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	deleted, err := tokenRepo.DeleteExpired(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected revoked token kept during retention, deleted %d", deleted)
	}

	// Once revocation falls outside the window it gets swept
	env.db.Model(&models.RefreshToken{}).
		Where("user_id = ?", auth.User.ID).
		Update("revoked_at", time.Now().Add(-8*24*time.Hour))

	deleted, err = tokenRepo.DeleteExpired(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 swept token, got %d", deleted)
	}
}
