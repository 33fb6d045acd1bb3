package services

import (
	"context"
	"errors"
	"fmt"

	"weather-upload-service/internal/models"
	"weather-upload-service/internal/repository"
	"weather-upload-service/pkg/logging"
)

// DemoUser holds the bootstrap identity used when demo mode is enabled.
type DemoUser struct {
	Name         string
	Email        string
	PasswordHash string
}

// UserService resolves upload owners and bootstraps the demo user.
type UserService struct {
	users  repository.UserRepository
	logger *logging.Logger
}

// NewUserService creates a new user service
func NewUserService(users repository.UserRepository, logger *logging.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

// GetUser retrieves a user by identifier
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

// EnsureDemoUser finds the configured demo user by email, creating it on
// first use. All three identity fields must be configured.
func (s *UserService) EnsureDemoUser(ctx context.Context, demo DemoUser) (*models.User, error) {
	if demo.Name == "" || demo.Email == "" || demo.PasswordHash == "" {
		return nil, errors.New("demo user name, email and password hash must all be configured")
	}

	user, err := s.users.FindByEmail(ctx, demo.Email)
	if err == nil {
		s.logger.Info(ctx, "[DEMO_USER] Demo user already exists", logging.Fields{
			"user_id": user.ID,
		})
		return user, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("demo user lookup failed: %w", err)
	}

	user = &models.User{
		Name:         demo.Name,
		Email:        demo.Email,
		PasswordHash: demo.PasswordHash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a creation race with another consumer instance: re-read.
		if repository.IsDuplicate(err) {
			return s.users.FindByEmail(ctx, demo.Email)
		}
		return nil, fmt.Errorf("demo user create failed: %w", err)
	}

	s.logger.Info(ctx, "[DEMO_USER] Demo user created", logging.Fields{
		"user_id": user.ID,
	})
	return user, nil
}
