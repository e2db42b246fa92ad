// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Session  SessionConfig
	SMTP     SMTPConfig
	Gemini   GeminiConfig
	Admin    AdminConfig
	Debug    bool
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// StorageConfig holds the on-disk layout: one JSON session document per user
// under SessionsDir, generated images and thumbnails as flat files.
type StorageConfig struct {
	SessionsDir   string
	ImagesDir     string
	ThumbnailsDir string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type GeminiConfig struct { //nolint:govet // fieldalignment not critical
	APIKey  string
	BaseURL string // optional custom API endpoint
	Model   string
	Timeout int // seconds; image generation with long prompts is slow
}

type AdminConfig struct {
	Password string // bootstrap password for the "admin" account
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Storage: StorageConfig{
			SessionsDir:   cmd.String("sessions-dir"),
			ImagesDir:     cmd.String("images-dir"),
			ThumbnailsDir: cmd.String("thumbnails-dir"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Gemini: GeminiConfig{
			APIKey:  cmd.String("gemini-api-key"),
			BaseURL: cmd.String("gemini-base-url"),
			Model:   cmd.String("gemini-model"),
			Timeout: int(cmd.Int("gemini-timeout")),
		},
		Admin: AdminConfig{
			Password: cmd.String("admin-password"),
		},
		Debug: cmd.Bool("debug"),
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	if port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// CookieSecure reports whether session cookies should be HTTPS-only.
func (c *Config) CookieSecure() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL for the application",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   32,
			Usage:   "Maximum request body size in MB (inline reference images are large)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/users.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "sessions-dir",
			Value:   "./data/sessions",
			Usage:   "Directory for per-user chat session documents",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSIONS_DIR"), toml.TOML("storage.sessions_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "images-dir",
			Value:   "./static/images",
			Usage:   "Directory for generated and reference images",
			Sources: cli.NewValueSourceChain(cli.EnvVar("IMAGES_DIR"), toml.TOML("storage.images_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "thumbnails-dir",
			Value:   "./static/thumbnails",
			Usage:   "Directory for preview thumbnails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("THUMBNAILS_DIR"), toml.TOML("storage.thumbnails_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days in seconds
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_SERVER"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   465,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for verification mails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Nano Banana",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Use TLS for SMTP (implicit TLS on port 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.StringFlag{
			Name:    "gemini-api-key",
			Usage:   "Gemini API key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GEMINI_API_KEY"), toml.TOML("gemini.api_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "gemini-base-url",
			Usage:   "Custom Gemini API endpoint (optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GEMINI_API_BASE_URL"), toml.TOML("gemini.base_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "gemini-model",
			Value:   "gemini-3-pro-image-preview",
			Usage:   "Gemini model for image generation",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GEMINI_MODEL"), toml.TOML("gemini.model", configFile)),
		},
		&cli.IntFlag{
			Name:    "gemini-timeout",
			Value:   300,
			Usage:   "Gemini request timeout in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("GEMINI_TIMEOUT"), toml.TOML("gemini.timeout", configFile)),
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "Bootstrap password for the admin account (random if empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("ADMIN_PASSWORD"), toml.TOML("admin.password", configFile)),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Include error details in generic failure responses",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DEBUG"), toml.TOML("debug", configFile)),
		},
	}
}
