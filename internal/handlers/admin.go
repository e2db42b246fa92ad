// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/nanobanana/internal/chatstore"
	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/provider"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
)

// AdminHandlers contains the admin console handlers.
type AdminHandlers struct {
	repo     *repository.Repository
	store    *chatstore.Store
	provider provider.ChatProvider
}

// NewAdmin creates a new AdminHandlers instance.
func NewAdmin(repo *repository.Repository, store *chatstore.Store, chatProvider provider.ChatProvider) *AdminHandlers {
	return &AdminHandlers{
		repo:     repo,
		store:    store,
		provider: chatProvider,
	}
}

func userIDParam(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

// userListing is the admin view of a user.
type userListing struct {
	models.PublicUser
	SessionCount int `json:"session_count"`
	MessageCount int `json:"message_count"`
}

// ListUsers returns all users with their session and message counts.
func (h *AdminHandlers) ListUsers(c echo.Context) error {
	users, err := h.repo.ListUsers(c.Request().Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	listings := make([]userListing, 0, len(users))
	for _, user := range users {
		sessions, messages, err := h.store.CountForUser(user.ID)
		if err != nil {
			slog.Warn("failed to count sessions", "error", err, "user_id", user.ID)
		}
		listings = append(listings, userListing{
			PublicUser:   user.Public(),
			SessionCount: sessions,
			MessageCount: messages,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"users": listings})
}

// DeleteUser removes a user account together with its sessions and images.
// Admin accounts cannot be deleted.
func (h *AdminHandlers) DeleteUser(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	sessions, err := h.store.List(id)
	if err != nil {
		slog.Warn("failed to list sessions before delete", "error", err, "user_id", id)
	}

	if err := h.repo.DeleteUser(c.Request().Context(), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "error_user_not_found"})
		case errors.Is(err, repository.ErrIsAdmin):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_cannot_delete_admin"})
		}
		slog.Error("failed to delete user", "error", err, "user_id", id)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	if err := h.store.DeleteUserData(id); err != nil {
		slog.Error("failed to delete user sessions", "error", err, "user_id", id)
	}
	for _, session := range sessions {
		h.provider.Remove(session.ID)
	}

	slog.Info("user deleted", "user_id", id, "admin", CurrentUser(c).Username)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// ToggleAdmin flips a user's admin flag. The bootstrap admin account stays
// an admin.
func (h *AdminHandlers) ToggleAdmin(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	isAdmin, err := h.repo.ToggleAdmin(c.Request().Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "error_user_not_found"})
		case errors.Is(err, repository.ErrBootstrapAdmin):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_cannot_demote_admin"})
		}
		slog.Error("failed to toggle admin", "error", err, "user_id", id)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "is_admin": isAdmin})
}

// AdjustCreditsRequest is the request body for changing a user's balance.
type AdjustCreditsRequest struct {
	Amount int64 `json:"amount"`
}

// AdjustCredits adds to or subtracts from a user's balance. The balance
// never goes below zero.
func (h *AdminHandlers) AdjustCredits(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	var req AdjustCreditsRequest
	if err := c.Bind(&req); err != nil || req.Amount == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	balance, err := h.repo.AdjustCredits(c.Request().Context(), id, req.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "error_user_not_found"})
		}
		slog.Error("failed to adjust credits", "error", err, "user_id", id)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	slog.Info("credits adjusted", "user_id", id, "amount", req.Amount, "balance", balance)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "credits": balance})
}

// UserSessions returns another user's session list for the admin console.
func (h *AdminHandlers) UserSessions(c echo.Context) error {
	id, err := userIDParam(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	sessions, err := h.store.List(id)
	if err != nil {
		slog.Error("failed to list sessions", "error", err, "user_id", id)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	return c.JSON(http.StatusOK, map[string]any{"sessions": sessions})
}

// CleanupRequest is the request body for pruning old chat data.
type CleanupRequest struct {
	CutoffDate string `json:"cutoff_date"`
}

// Cleanup deletes messages older than the cutoff, drops stale empty
// sessions and sweeps orphaned image files.
func (h *AdminHandlers) Cleanup(c echo.Context) error {
	var req CleanupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	cutoff, err := parseCutoff(req.CutoffDate)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_date"})
	}

	stats, err := h.store.CleanupBefore(cutoff)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	slog.Info("cleanup finished",
		"cutoff", cutoff,
		"sessions", stats.Sessions,
		"messages", stats.Messages,
		"images", stats.Images,
		"orphan_images", stats.OrphanImages,
		"orphan_thumbnails", stats.OrphanThumbnails)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "stats": stats})
}

// parseCutoff accepts a bare date or a full RFC 3339 timestamp.
func parseCutoff(value string) (time.Time, error) {
	if len(value) == 10 {
		return time.Parse("2006-01-02", value)
	}
	return time.Parse(time.RFC3339, value)
}

// ListCardKeys returns all card keys with their redemption state.
func (h *AdminHandlers) ListCardKeys(c echo.Context) error {
	keys, err := h.repo.ListCardKeys(c.Request().Context())
	if err != nil {
		slog.Error("failed to list card keys", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}
	return c.JSON(http.StatusOK, map[string]any{"card_keys": keys})
}

// GenerateCardKeysRequest is the request body for generating card keys.
type GenerateCardKeysRequest struct {
	Credits int64 `json:"credits"`
	Count   int   `json:"count"`
}

// GenerateCardKeys creates a batch of card keys. The plaintext codes are
// returned once and never stored.
func (h *AdminHandlers) GenerateCardKeys(c echo.Context) error {
	var req GenerateCardKeysRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	keys, err := h.repo.CreateCardKeys(c.Request().Context(), req.Credits, req.Count)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvalidCardKeyCredits),
			errors.Is(err, repository.ErrInvalidCardKeyCount):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
		}
		slog.Error("failed to generate card keys", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	slog.Info("card keys generated", "count", len(keys), "credits", req.Credits, "admin", CurrentUser(c).Username)
	return c.JSON(http.StatusOK, map[string]any{"card_keys": keys})
}
