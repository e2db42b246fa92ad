// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/nanobanana/internal/chatstore"
	"codeberg.org/oliverandrich/nanobanana/internal/generation"
	"codeberg.org/oliverandrich/nanobanana/internal/provider"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
)

// GenerateHandlers contains the image generation handler.
type GenerateHandlers struct {
	repo    *repository.Repository
	service *generation.Service
	debug   bool
}

// NewGenerate creates a new GenerateHandlers instance.
func NewGenerate(repo *repository.Repository, service *generation.Service, debug bool) *GenerateHandlers {
	return &GenerateHandlers{
		repo:    repo,
		service: service,
		debug:   debug,
	}
}

// GenerateRequest is the request body for a generation turn.
type GenerateRequest struct {
	SessionID       string   `json:"session_id"`
	Prompt          string   `json:"prompt"`
	AspectRatio     string   `json:"aspect_ratio"`
	ImageSize       string   `json:"image_size"`
	ReferenceImages []string `json:"reference_images"`
}

// upstreamErrorKeys maps upstream error codes to stable client error keys.
var upstreamErrorKeys = map[string]string{
	provider.CodeDeadlineExceeded:  "error_timeout",
	provider.CodeResourceExhausted: "error_quota_exceeded",
	provider.CodeUnavailable:       "error_service_unavailable",
	provider.CodeServerError:       "error_server_busy",
	provider.CodeInvalidArgument:   "error_invalid_request",
	provider.CodePermissionDenied:  "error_permission_denied",
	provider.CodeClientError:       "error_invalid_input",
}

// Generate runs one generation turn in a session.
func (h *GenerateHandlers) Generate(c echo.Context) error {
	sessUser := CurrentUser(c)

	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	}

	user, err := h.repo.GetUserByID(c.Request().Context(), sessUser.ID)
	if err != nil {
		slog.Error("failed to load user", "error", err, "user_id", sessUser.ID)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "error_internal"})
	}

	result, err := h.service.Generate(c.Request().Context(), user, generation.Request{
		SessionID:       req.SessionID,
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		ImageSize:       req.ImageSize,
		ReferenceImages: req.ReferenceImages,
	})
	if err != nil {
		return h.generateError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"text":          result.Text,
		"image_url":     result.ImageURL,
		"thumbnail_url": result.ThumbnailURL,
		"session_title": result.SessionTitle,
		"credits_remaining": creditsValue(
			result.Admin,
			result.CreditsRemaining,
		),
	})
}

// generateError maps generation failures to their status codes and stable
// error keys.
func (h *GenerateHandlers) generateError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, generation.ErrEmptyPrompt):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_empty_prompt"})
	case errors.Is(err, generation.ErrPromptTooLong):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_prompt_too_long"})
	case errors.Is(err, generation.ErrTooManyReferenceImages):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_too_many_images"})
	case errors.Is(err, generation.ErrInvalidAspectRatio),
		errors.Is(err, generation.ErrInvalidImageSize),
		errors.Is(err, generation.ErrInvalidReferenceImage):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "error_invalid_request"})
	case errors.Is(err, generation.ErrInsufficientCredits):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "error_insufficient_credits"})
	case errors.Is(err, chatstore.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "error_session_not_found"})
	}

	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		body := map[string]string{
			"error":      upstreamErrorKeys[upstream.Code],
			"error_code": upstream.Code,
		}
		switch {
		case upstream.Transient:
			return c.JSON(http.StatusServiceUnavailable, body)
		case upstream.Code == provider.CodePermissionDenied:
			return c.JSON(http.StatusForbidden, body)
		default:
			return c.JSON(http.StatusBadRequest, body)
		}
	}

	slog.Error("generation failed", "error", err)
	body := map[string]string{
		"error":      "error_generation_failed",
		"error_code": "GENERATION_FAILED",
	}
	if h.debug {
		body["detail"] = err.Error()
	}
	return c.JSON(http.StatusInternalServerError, body)
}
