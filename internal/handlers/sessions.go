// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/nanobanana/internal/chatstore"
	"codeberg.org/oliverandrich/nanobanana/internal/provider"
)

// SessionHandlers contains handlers for chat session management.
type SessionHandlers struct {
	store    *chatstore.Store
	provider provider.ChatProvider
}

// NewSessions creates a new SessionHandlers instance.
func NewSessions(store *chatstore.Store, chatProvider provider.ChatProvider) *SessionHandlers {
	return &SessionHandlers{
		store:    store,
		provider: chatProvider,
	}
}

// List returns the user's sessions, most recently updated first.
func (h *SessionHandlers) List(c echo.Context) error {
	user := CurrentUser(c)

	sessions, err := h.store.List(user.ID)
	if err != nil {
		slog.Error("failed to list sessions", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// Create adds a new empty session.
func (h *SessionHandlers) Create(c echo.Context) error {
	user := CurrentUser(c)

	id, session, err := h.store.Create(user.ID)
	if err != nil {
		slog.Error("failed to create session", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"id":         id,
		"title":      session.Title,
		"created_at": session.CreatedAt,
	})
}

// Get returns one session with its full message history.
func (h *SessionHandlers) Get(c echo.Context) error {
	user := CurrentUser(c)

	session, err := h.store.Get(user.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, chatstore.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "error_session_not_found"})
		}
		slog.Error("failed to load session", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	return c.JSON(http.StatusOK, session)
}

// Delete removes a session, its image files and its cached chat.
func (h *SessionHandlers) Delete(c echo.Context) error {
	user := CurrentUser(c)
	sessionID := c.Param("id")

	if err := h.store.Delete(user.ID, sessionID); err != nil {
		if errors.Is(err, chatstore.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "error_session_not_found"})
		}
		slog.Error("failed to delete session", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	h.provider.Remove(sessionID)

	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// RenameRequest is the request body for renaming a session.
type RenameRequest struct {
	Title string `json:"title"`
}

// Rename sets the session title.
func (h *SessionHandlers) Rename(c echo.Context) error {
	user := CurrentUser(c)

	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_empty_title"})
	}

	if err := h.store.Rename(user.ID, c.Param("id"), req.Title); err != nil {
		if errors.Is(err, chatstore.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "error_session_not_found"})
		}
		slog.Error("failed to rename session", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
