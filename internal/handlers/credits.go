// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/nanobanana/internal/repository"
)

// CreditHandlers contains handlers for card key redemption.
type CreditHandlers struct {
	repo *repository.Repository
}

// NewCredits creates a new CreditHandlers instance.
func NewCredits(repo *repository.Repository) *CreditHandlers {
	return &CreditHandlers{repo: repo}
}

// RedeemRequest is the request body for redeeming a card key.
type RedeemRequest struct {
	Code string `json:"code"`
}

// Redeem exchanges a card key for credits. Spent or unknown keys get the
// same answer so codes cannot be probed apart.
func (h *CreditHandlers) Redeem(c echo.Context) error {
	user := CurrentUser(c)

	var req RedeemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}
	if req.Code == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_card_key"})
	}

	credited, balance, err := h.repo.RedeemCardKey(c.Request().Context(), req.Code, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrCardKeyNotFound) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_card_key"})
		}
		slog.Error("failed to redeem card key", "error", err, "user_id", user.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	slog.Info("card key redeemed", "user_id", user.ID, "credits", credited)
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"credits":     credited,
		"new_credits": creditsValue(user.IsAdmin, balance),
	})
}
