// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"codeberg.org/oliverandrich/nanobanana/internal/services/auth"
	"codeberg.org/oliverandrich/nanobanana/internal/services/email"
	"codeberg.org/oliverandrich/nanobanana/internal/services/session"
)

// AuthHandlers contains handlers for login, logout and registration.
type AuthHandlers struct {
	repo     *repository.Repository
	auth     *auth.Service
	email    *email.Service
	sessions *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(repo *repository.Repository, authSvc *auth.Service, emailSvc *email.Service, sessions *session.Manager) *AuthHandlers {
	return &AuthHandlers{
		repo:     repo,
		auth:     authSvc,
		email:    emailSvc,
		sessions: sessions,
	}
}

// LoginRequest is the request body for logging in.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	user, err := h.auth.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "error_invalid_credentials"})
		}
		slog.Error("login failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	if err := h.sessions.Login(c, session.User{
		ID:       user.ID,
		Username: user.Username,
		IsAdmin:  user.Admin(),
	}); err != nil {
		slog.Error("failed to create session", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"is_admin": user.Admin(),
	})
}

// Logout clears the session cookie.
func (h *AuthHandlers) Logout(c echo.Context) error {
	h.sessions.Logout(c)
	return c.Redirect(http.StatusFound, "/")
}

// SendCodeRequest is the request body for requesting a verification code.
type SendCodeRequest struct {
	Email string `json:"email"`
}

// SendVerificationCode emails a registration code to the given address.
func (h *AuthHandlers) SendVerificationCode(c echo.Context) error {
	var req SendCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	if !auth.ValidEmail(req.Email) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_email"})
	}

	code, err := email.GenerateCode()
	if err != nil {
		slog.Error("failed to generate verification code", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	expiresAt := time.Now().UTC().Add(email.CodeExpiry)
	if err := h.repo.CreateVerificationCode(c.Request().Context(), req.Email, repository.HashCode(code), expiresAt); err != nil {
		slog.Error("failed to store verification code", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	if err := h.email.SendVerification(req.Email, code); err != nil {
		if errors.Is(err, email.ErrNotConfigured) {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_email_not_configured"})
		}
		slog.Error("failed to send verification email", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_email_send_failed"})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// RegisterRequest is the request body for creating an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Code     string `json:"verification_code"`
}

// Register verifies the emailed code and creates the account. The new user
// is logged in right away.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	if !auth.ValidEmail(req.Email) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_email"})
	}

	if err := h.repo.VerifyEmailCode(c.Request().Context(), req.Email, req.Code); err != nil {
		switch {
		case errors.Is(err, repository.ErrCodeExpired):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_code_expired"})
		case errors.Is(err, repository.ErrCodeNotFound), errors.Is(err, repository.ErrCodeMismatch):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_code"})
		}
		slog.Error("failed to verify code", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	user, err := h.auth.Register(c.Request().Context(), req.Username, req.Password, &req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameTooShort):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_username_too_short"})
		case errors.Is(err, auth.ErrPasswordTooShort):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_password_too_short"})
		case errors.Is(err, repository.ErrDuplicateUsername):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_username_taken"})
		case errors.Is(err, repository.ErrDuplicateEmail):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_email_taken"})
		}
		slog.Error("failed to register user", "error", err, "username", req.Username)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	if err := h.sessions.Login(c, session.User{
		ID:       user.ID,
		Username: user.Username,
		IsAdmin:  user.Admin(),
	}); err != nil {
		slog.Error("failed to create session", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// Me returns the current user with their credit balance.
func (h *AuthHandlers) Me(c echo.Context) error {
	sessUser := CurrentUser(c)
	user, err := h.repo.GetUserByID(c.Request().Context(), sessUser.ID)
	if err != nil {
		slog.Error("failed to load user", "error", err, "user_id", sessUser.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"username": user.Username,
		"is_admin": user.Admin(),
		"credits":  userCredits(user),
	})
}
