package services

import (
	"context"
	"errors"
	"log"

	"agrivalah-api/internal/adapters/persistence/models"
	"agrivalah-api/internal/adapters/persistence/repositories"
	"agrivalah-api/internal/pkg/pagination"

	"gorm.io/gorm"
)

// User management errors
var (
	ErrCannotDeleteSelf    = errors.New("cannot delete your own account")
	ErrCannotChangeOwnRole = errors.New("cannot change your own role")
)

// UserService handles admin-side user management
type UserService struct {
	userRepo         repositories.UserRepository
	refreshTokenRepo repositories.RefreshTokenRepository
}

// NewUserService creates a new user service
func NewUserService(
	userRepo repositories.UserRepository,
	refreshTokenRepo repositories.RefreshTokenRepository,
) *UserService {
	return &UserService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
	}
}

// ListUsers lists users with pagination, optionally filtered by role
func (s *UserService) ListUsers(ctx context.Context, params *pagination.Params, role string) ([]*models.UserResponse, int64, error) {
	if role != "" && !models.ValidRole(role) {
		return nil, 0, ErrInvalidRole
	}

	users, total, err := s.userRepo.List(ctx, params.Offset, params.Limit, role)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*models.UserResponse, len(users))
	for i, user := range users {
		responses[i] = user.ToResponse()
	}
	return responses, total, nil
}

// GetUser gets a user by ID
func (s *UserService) GetUser(ctx context.Context, id uint) (*models.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user.ToResponse(), nil
}

// SetRole changes a user's role. Admins cannot change their own role so the
// last admin cannot lock everyone out by accident.
func (s *UserService) SetRole(ctx context.Context, id, adminID uint, role string) (*models.UserResponse, error) {
	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	if id == adminID {
		return nil, ErrCannotChangeOwnRole
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	user.Role = role
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("✅ Role of user %d changed to %s by admin %d", id, role, adminID)
	return user.ToResponse(), nil
}

// DeleteUser soft-deletes a user and revokes their sessions
func (s *UserService) DeleteUser(ctx context.Context, id, adminID uint) error {
	if id == adminID {
		return ErrCannotDeleteSelf
	}

	if _, err := s.userRepo.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := s.refreshTokenRepo.RevokeAllByUserID(ctx, id, adminID); err != nil {
		return err
	}
	if err := s.userRepo.Delete(ctx, id); err != nil {
		return err
	}

	log.Printf("✅ User %d deleted by admin %d", id, adminID)
	return nil
}
