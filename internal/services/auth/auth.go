// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinUsernameLength is the minimum username length.
	MinUsernameLength = 3
	// MinPasswordLength is the minimum password length.
	MinPasswordLength = 6
)

var (
	ErrUsernameTooShort   = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

type Service struct {
	repo *repository.Repository
}

func NewService(repo *repository.Repository) *Service {
	return &Service{repo: repo}
}

// ValidEmail reports whether the address parses as an email address.
func ValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// Register creates a new user account. Email is optional; when present it
// must be a valid address. Duplicate usernames and emails surface as
// repository sentinels.
func (s *Service) Register(ctx context.Context, username, password string, email *string) (*models.User, error) {
	if len(username) < MinUsernameLength {
		return nil, ErrUsernameTooShort
	}
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if email != nil && !ValidEmail(*email) {
		return nil, ErrInvalidEmail
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, username, string(passwordHash), email)
	if err != nil {
		return nil, err
	}

	slog.Info("register_success", "user_id", user.ID, "username", username)
	return user, nil
}

// Login authenticates a user and returns the user if successful. Unknown
// users and wrong passwords are collapsed into ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Constant-time: always perform bcrypt comparison to prevent timing attacks
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			slog.Warn("login_failed", "username", username, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		slog.Warn("login_failed", "username", username, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	slog.Info("login_success", "user_id", user.ID, "username", username)
	return user, nil
}

// HashPassword hashes a password with bcrypt. Used for the admin bootstrap.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
