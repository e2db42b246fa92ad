// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package generation orchestrates a single image generation turn: validate
// the request, charge credits, call the upstream model and persist the
// exchange with its image files.
package generation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/chatstore"
	"codeberg.org/oliverandrich/nanobanana/internal/imaging"
	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/provider"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
)

const (
	// MaxPromptLength is the upper bound on prompt size in characters.
	MaxPromptLength = 100000
	// MaxReferenceImages is the upper bound on reference images per turn.
	MaxReferenceImages = 14

	defaultAspectRatio = "auto"
	defaultImageSize   = "2K"
)

// Validation and state errors surfaced to the handler layer.
var (
	ErrEmptyPrompt            = errors.New("prompt must not be empty")
	ErrPromptTooLong          = errors.New("prompt too long")
	ErrTooManyReferenceImages = errors.New("too many reference images")
	ErrInvalidAspectRatio     = errors.New("invalid aspect ratio")
	ErrInvalidImageSize       = errors.New("invalid image size")
	ErrInvalidReferenceImage  = errors.New("invalid reference image")
	ErrInsufficientCredits    = errors.New("insufficient credits")
	ErrEmptyReply             = errors.New("model returned an empty reply")
)

var validAspectRatios = map[string]bool{
	"auto": true, "1:1": true, "16:9": true, "9:16": true,
	"4:3": true, "3:4": true, "21:9": true, "3:2": true, "2:3": true,
}

// imageCost maps an image size to its price in credits.
var imageCost = map[string]int64{
	"1K": 1,
	"2K": 2,
	"4K": 4,
}

// Request is one generation turn within a session.
type Request struct {
	SessionID       string
	Prompt          string
	AspectRatio     string
	ImageSize       string
	ReferenceImages []string // data URLs
}

// Result is the outcome of a successful generation turn.
type Result struct {
	Text             string `json:"text"`
	ImageURL         string `json:"image_url,omitempty"`
	ThumbnailURL     string `json:"thumbnail_url,omitempty"`
	SessionTitle     string `json:"session_title"`
	CreditsRemaining int64  `json:"-"`
	Admin            bool   `json:"-"`
}

// Service runs generation turns.
type Service struct {
	repo     *repository.Repository
	store    *chatstore.Store
	provider provider.ChatProvider
	model    string
}

// NewService creates a generation service.
func NewService(repo *repository.Repository, store *chatstore.Store, chatProvider provider.ChatProvider, model string) *Service {
	return &Service{
		repo:     repo,
		store:    store,
		provider: chatProvider,
		model:    model,
	}
}

// Generate runs one turn for the given user. Credits are deducted before
// the upstream call and are not refunded on failure.
func (s *Service) Generate(ctx context.Context, user *models.User, req Request) (*Result, error) {
	if req.AspectRatio == "" {
		req.AspectRatio = defaultAspectRatio
	}
	if req.ImageSize == "" {
		req.ImageSize = defaultImageSize
	}
	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	session, err := s.store.Get(user.ID, req.SessionID)
	if err != nil {
		return nil, err
	}

	// Once the first exchange is stored the session settings win over
	// whatever the request sends.
	if session.SettingsLocked() && session.Settings != nil {
		req.AspectRatio = session.Settings.AspectRatio
		req.ImageSize = session.Settings.ImageSize
	}

	cost := imageCost[req.ImageSize]
	balance := user.Credits
	if !user.Admin() {
		if user.Credits < cost {
			return nil, ErrInsufficientCredits
		}
		balance, err = s.repo.AdjustCredits(ctx, user.ID, -cost)
		if err != nil {
			return nil, fmt.Errorf("failed to deduct credits: %w", err)
		}
	}

	refNames, refParts, err := s.saveReferenceImages(user.ID, req.SessionID, len(session.Messages), req.ReferenceImages)
	if err != nil {
		return nil, err
	}

	opts := provider.ChatOptions{
		Model:       s.model,
		AspectRatio: req.AspectRatio,
		ImageSize:   req.ImageSize,
	}
	chat, err := s.provider.GetOrCreate(ctx, req.SessionID, opts, func() []provider.Content {
		return s.rebuildHistory(session)
	})
	if err != nil {
		return nil, err
	}

	parts := make([]provider.Part, 0, len(refParts)+1)
	parts = append(parts, refParts...)
	parts = append(parts, provider.Part{Text: req.Prompt})

	start := time.Now()
	reply, err := chat.Send(ctx, parts)
	if err != nil {
		slog.Error("generation failed",
			"user_id", user.ID,
			"session_id", req.SessionID,
			"duration", time.Since(start),
			"error", err)
		return nil, err
	}
	if len(reply.Parts) == 0 {
		return nil, ErrEmptyReply
	}

	result := &Result{
		CreditsRemaining: balance,
		Admin:            user.Admin(),
	}

	var imageName, thumbName string
	for _, part := range reply.Parts {
		if part.Data != nil {
			// The first image of the reply is the one that counts.
			if imageName == "" {
				imageName, thumbName, err = s.saveImage(req.SessionID, part.Data)
				if err != nil {
					return nil, err
				}
			}
			continue
		}
		result.Text += part.Text
	}
	if imageName != "" {
		result.ImageURL = "/static/images/" + imageName
	}
	if thumbName != "" {
		result.ThumbnailURL = "/static/thumbnails/" + thumbName
	}

	ts := time.Now().UTC().Format(time.RFC3339)
	err = s.store.Update(user.ID, req.SessionID, func(session *chatstore.Session) error {
		session.Messages = append(session.Messages,
			chatstore.Message{
				Role:            "user",
				Content:         req.Prompt,
				ReferenceImages: refNames,
				Timestamp:       ts,
			},
			chatstore.Message{
				Role:      "assistant",
				Content:   result.Text,
				Image:     result.ImageURL,
				Thumbnail: result.ThumbnailURL,
				Timestamp: ts,
			})

		if len(session.Messages) == 2 {
			session.Title = chatstore.TitleFromPrompt(req.Prompt)
			session.Settings = &chatstore.Settings{
				AspectRatio: req.AspectRatio,
				ImageSize:   req.ImageSize,
				Model:       s.model,
			}
		}
		result.SessionTitle = session.Title
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store exchange: %w", err)
	}

	slog.Info("generation succeeded",
		"user_id", user.ID,
		"session_id", req.SessionID,
		"image_size", req.ImageSize,
		"cost", cost,
		"duration", time.Since(start))
	return result, nil
}

func validateRequest(req *Request) error {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	if len([]rune(req.Prompt)) > MaxPromptLength {
		return ErrPromptTooLong
	}
	if len(req.ReferenceImages) > MaxReferenceImages {
		return ErrTooManyReferenceImages
	}
	if !validAspectRatios[req.AspectRatio] {
		return ErrInvalidAspectRatio
	}
	if _, ok := imageCost[req.ImageSize]; !ok {
		return ErrInvalidImageSize
	}
	return nil
}

// saveReferenceImages decodes the submitted data URLs, writes them to the
// images directory and returns their file names plus the provider parts to
// send along with the prompt.
func (s *Service) saveReferenceImages(userID int64, sessionID string, turnIndex int, dataURLs []string) ([]string, []provider.Part, error) {
	if len(dataURLs) == 0 {
		return nil, nil, nil
	}

	names := make([]string, 0, len(dataURLs))
	parts := make([]provider.Part, 0, len(dataURLs))
	for i, dataURL := range dataURLs {
		mimeType, data, err := decodeDataURL(dataURL)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidReferenceImage, err)
		}

		name := fmt.Sprintf("ref_%s_%d_%d.png", sessionID, turnIndex, i)
		if err := os.WriteFile(filepath.Join(s.store.ImagesDir(), name), data, 0o644); err != nil {
			return nil, nil, fmt.Errorf("failed to save reference image: %w", err)
		}
		names = append(names, name)
		parts = append(parts, provider.Part{Data: data, MIMEType: mimeType})
	}

	slog.Debug("saved reference images", "user_id", userID, "session_id", sessionID, "count", len(names))
	return names, parts, nil
}

// decodeDataURL parses a "data:<mime>;base64,<payload>" URL. A bare base64
// string without the header is also accepted and treated as a PNG.
func decodeDataURL(dataURL string) (mimeType string, data []byte, err error) {
	mimeType = "image/png"
	payload := dataURL
	if header, rest, found := strings.Cut(dataURL, ","); found {
		payload = rest
		if r, ok := strings.CutPrefix(header, "data:"); ok {
			if mt, _, _ := strings.Cut(r, ";"); mt != "" {
				mimeType = mt
			}
		}
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if len(data) == 0 {
		return "", nil, errors.New("empty image data")
	}
	return mimeType, data, nil
}

// saveImage writes the generated image and its thumbnail. A failed
// thumbnail is logged and skipped, the image itself is what matters.
func (s *Service) saveImage(sessionID string, data []byte) (imageName, thumbName string, err error) {
	t := time.Now().UTC()
	imageName = fmt.Sprintf("%s_%s%06d.png", sessionID, t.Format("20060102150405"), t.Nanosecond()/1000)

	imagePath := filepath.Join(s.store.ImagesDir(), imageName)
	if err := os.WriteFile(imagePath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to save generated image: %w", err)
	}

	thumbName = "thumb_" + strings.TrimSuffix(imageName, ".png") + ".jpg"
	thumbPath := filepath.Join(s.store.ThumbnailsDir(), thumbName)
	if err := imaging.CreateThumbnail(imagePath, thumbPath); err != nil {
		slog.Warn("failed to create thumbnail", "image", imageName, "error", err)
		return imageName, "", nil
	}
	return imageName, thumbName, nil
}

// rebuildHistory converts stored messages into provider history. Image
// files that have gone missing are skipped.
func (s *Service) rebuildHistory(session *chatstore.Session) []provider.Content {
	history := make([]provider.Content, 0, len(session.Messages))
	for _, msg := range session.Messages {
		var content provider.Content
		switch msg.Role {
		case "user":
			content.Role = "user"
			for _, ref := range msg.ReferenceImages {
				data, err := os.ReadFile(filepath.Join(s.store.ImagesDir(), filepath.Base(ref)))
				if err != nil {
					slog.Warn("skipping missing reference image", "file", ref, "error", err)
					continue
				}
				content.Parts = append(content.Parts, provider.Part{Data: data, MIMEType: "image/png"})
			}
			content.Parts = append(content.Parts, provider.Part{Text: msg.Content})
		case "assistant":
			content.Role = "model"
			if msg.Content != "" {
				content.Parts = append(content.Parts, provider.Part{Text: msg.Content})
			}
			if msg.Image != "" {
				data, err := os.ReadFile(filepath.Join(s.store.ImagesDir(), filepath.Base(msg.Image)))
				if err != nil {
					slog.Warn("skipping missing generated image", "file", msg.Image, "error", err)
				} else {
					content.Parts = append(content.Parts, provider.Part{Data: data, MIMEType: "image/png"})
				}
			}
		default:
			continue
		}
		if len(content.Parts) == 0 {
			continue
		}
		history = append(history, content)
	}
	return history
}
