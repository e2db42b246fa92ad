// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session implements signed login session cookies.
package session

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/nanobanana/internal/config"
	"github.com/gorilla/securecookie"
	"github.com/labstack/echo/v4"
)

// User is the user data carried by a valid session cookie.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Manager encodes and decodes the signed session cookie.
type Manager struct {
	sc     *securecookie.SecureCookie
	name   string
	maxAge int
	secure bool
}

// NewManager creates a session manager from configuration. When no hash key
// is configured a random one is generated, which invalidates all sessions on
// restart; fine for development, logged as a warning.
func NewManager(cfg *config.SessionConfig, secure bool) (*Manager, error) {
	hashKey, err := keyFromHex(cfg.HashKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session hash key: %w", err)
	}
	if hashKey == nil {
		slog.Warn("no session hash key configured, using a random key; sessions will not survive restarts")
		hashKey = securecookie.GenerateRandomKey(32)
	}

	blockKey, err := keyFromHex(cfg.BlockKey)
	if err != nil {
		return nil, fmt.Errorf("invalid session block key: %w", err)
	}

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(cfg.MaxAge)

	return &Manager{
		sc:     sc,
		name:   cfg.CookieName,
		maxAge: cfg.MaxAge,
		secure: secure,
	}, nil
}

func keyFromHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// Login writes a session cookie for the given user.
func (m *Manager) Login(c echo.Context, user User) error {
	encoded, err := m.sc.Encode(m.name, user)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	c.SetCookie(&http.Cookie{
		Name:     m.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout clears the session cookie.
func (m *Manager) Logout(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     m.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get returns the session user, or nil when the request carries no valid
// session cookie. Tampered or expired cookies are treated as absent.
func (m *Manager) Get(c echo.Context) *User {
	cookie, err := c.Cookie(m.name)
	if err != nil {
		return nil
	}

	var user User
	if err := m.sc.Decode(m.name, cookie.Value, &user); err != nil {
		return nil
	}
	if user.ID == 0 {
		return nil
	}
	return &user
}
