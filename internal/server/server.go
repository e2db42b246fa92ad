// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires the application together and runs the HTTP server.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/nanobanana/internal/chatstore"
	"codeberg.org/oliverandrich/nanobanana/internal/config"
	"codeberg.org/oliverandrich/nanobanana/internal/database"
	"codeberg.org/oliverandrich/nanobanana/internal/generation"
	"codeberg.org/oliverandrich/nanobanana/internal/handlers"
	"codeberg.org/oliverandrich/nanobanana/internal/provider"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"codeberg.org/oliverandrich/nanobanana/internal/services/auth"
	"codeberg.org/oliverandrich/nanobanana/internal/services/email"
	"codeberg.org/oliverandrich/nanobanana/internal/services/session"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// Repository and bootstrap admin
	repo := repository.New(db)
	if err := ensureAdmin(ctx, repo, cfg.Admin.Password); err != nil {
		return err
	}

	// Chat store
	store, err := chatstore.New(cfg.Storage.SessionsDir, cfg.Storage.ImagesDir, cfg.Storage.ThumbnailsDir)
	if err != nil {
		return fmt.Errorf("failed to set up chat store: %w", err)
	}

	// Services
	authSvc := auth.NewService(repo)
	emailSvc := email.NewService(&cfg.SMTP)

	sessions, err := session.NewManager(&cfg.Session, cfg.CookieSecure())
	if err != nil {
		return fmt.Errorf("failed to set up sessions: %w", err)
	}

	gemini, err := provider.NewGemini(ctx, &cfg.Gemini)
	if err != nil {
		return fmt.Errorf("failed to set up gemini provider: %w", err)
	}

	genSvc := generation.NewService(repo, store, gemini, cfg.Gemini.Model)

	// Background jobs
	scheduler := startScheduler(repo)
	defer scheduler.Stop()

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, cfg, repo, store, authSvc, emailSvc, sessions, gemini, genSvc)

	return startWithGracefulShutdown(e, cfg)
}

// ensureAdmin creates the bootstrap admin account on first start. Without a
// configured password a random one is generated and logged once.
func ensureAdmin(ctx context.Context, repo *repository.Repository, password string) error {
	generated := false
	if password == "" {
		var err error
		password, err = randomPassword(16)
		if err != nil {
			return fmt.Errorf("failed to generate admin password: %w", err)
		}
		generated = true
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	created, err := repo.EnsureAdmin(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to ensure admin account: %w", err)
	}
	if created && generated {
		slog.Warn("created admin account with random password, set ADMIN_PASSWORD to control it",
			"username", "admin",
			"password", password)
	} else if created {
		slog.Info("created admin account", "username", "admin")
	}
	return nil
}

const passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomPassword(length int) (string, error) {
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordCharset))))
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}

// startScheduler runs the hourly cleanup of expired verification codes.
func startScheduler(repo *repository.Repository) *cron.Cron {
	scheduler := cron.New()
	_, err := scheduler.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := repo.DeleteExpiredVerificationCodes(ctx)
		if err != nil {
			slog.Error("failed to delete expired verification codes", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("deleted expired verification codes", "count", deleted)
		}
	})
	if err != nil {
		slog.Error("failed to schedule verification code cleanup", "error", err)
	}
	scheduler.Start()
	return scheduler
}

func setupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	repo *repository.Repository,
	store *chatstore.Store,
	authSvc *auth.Service,
	emailSvc *email.Service,
	sessions *session.Manager,
	chatProvider provider.ChatProvider,
	genSvc *generation.Service,
) {
	authH := handlers.NewAuth(repo, authSvc, emailSvc, sessions)
	sessionH := handlers.NewSessions(store, chatProvider)
	generateH := handlers.NewGenerate(repo, genSvc, cfg.Debug)
	creditH := handlers.NewCredits(repo)
	staticH := handlers.NewStatic(cfg.Storage.ImagesDir, cfg.Storage.ThumbnailsDir)
	adminH := handlers.NewAdmin(repo, store, chatProvider)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public auth endpoints, each behind its own rate limit
	e.POST("/api/login", authH.Login, rateLimit(5, time.Minute))
	e.POST("/api/send-verification-code", authH.SendVerificationCode, rateLimit(1, time.Minute))
	e.POST("/api/register", authH.Register, rateLimit(3, time.Hour))
	e.GET("/api/logout", authH.Logout)

	// Generated images
	e.GET("/static/images/:name", staticH.Image)
	e.GET("/static/thumbnails/:name", staticH.Thumbnail)

	// Authenticated API
	api := e.Group("/api", requireAuth(sessions))
	api.GET("/me", authH.Me)
	api.GET("/sessions", sessionH.List)
	api.POST("/sessions", sessionH.Create)
	api.GET("/sessions/:id", sessionH.Get)
	api.DELETE("/sessions/:id", sessionH.Delete)
	api.PUT("/sessions/:id/title", sessionH.Rename)
	api.POST("/generate", generateH.Generate, rateLimit(20, time.Hour))
	api.POST("/redeem", creditH.Redeem)

	// Admin console
	admin := e.Group("/api/admin", requireAuth(sessions), requireAdmin())
	admin.GET("/users", adminH.ListUsers)
	admin.DELETE("/users/:id", adminH.DeleteUser)
	admin.POST("/users/:id/toggle-admin", adminH.ToggleAdmin)
	admin.POST("/users/:id/credits", adminH.AdjustCredits)
	admin.GET("/users/:id/sessions", adminH.UserSessions)
	admin.POST("/cleanup", adminH.Cleanup)
	admin.GET("/card-keys", adminH.ListCardKeys)
	admin.POST("/card-keys", adminH.GenerateCardKeys)
}

func startWithGracefulShutdown(e *echo.Echo, cfg *config.Config) error {
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		slog.Info("Server running", "url", cfg.Server.BaseURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
