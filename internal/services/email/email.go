// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/config"
	"github.com/wneessen/go-mail"
)

const (
	// CodeLength is the number of digits in a verification code.
	CodeLength = 6
	// CodeExpiry is how long verification codes are valid.
	CodeExpiry = 10 * time.Minute
)

// ErrNotConfigured is returned when SMTP credentials are missing.
var ErrNotConfigured = errors.New("email service not configured")

// Service sends verification code emails via SMTP.
type Service struct {
	cfg *config.SMTPConfig
}

// NewService creates a new email service.
func NewService(cfg *config.SMTPConfig) *Service {
	return &Service{cfg: cfg}
}

// GenerateCode generates a random numeric verification code.
func GenerateCode() (string, error) {
	var sb strings.Builder
	for range CodeLength {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		sb.WriteByte(byte('0' + n.Int64()))
	}
	return sb.String(), nil
}

// SendVerification sends a verification code email. The message carries a
// plain-text body with an HTML alternative.
func (s *Service) SendVerification(toEmail, code string) error {
	if s.cfg.Host == "" || s.cfg.Password == "" {
		return ErrNotConfigured
	}

	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject("Nano Banana - Registration Code")
	msg.SetBodyString(mail.TypeTextPlain, textBody(code))
	msg.AddAlternativeString(mail.TypeTextHTML, htmlBody(code))

	// Build client options
	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	// Configure TLS based on config and port
	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// Use implicit TLS (SSL) for port 465, STARTTLS for others
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	// Add authentication if credentials are provided
	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	if err := client.DialAndSend(msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

func textBody(code string) string {
	return fmt.Sprintf(`Nano Banana - Registration Code

Hello!

Thanks for registering with Nano Banana. Use the following code to complete
your registration:

Verification code: %s

The code expires in 10 minutes.

If this wasn't you, please ignore this message.

This mail was sent automatically, please do not reply.
`, code)
}

func htmlBody(code string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: sans-serif; background-color: #f4f4f4; margin: 0; padding: 0;">
  <div style="max-width: 600px; margin: 40px auto; background-color: #ffffff; border-radius: 12px; overflow: hidden;">
    <div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); color: white; padding: 30px; text-align: center;">
      <h1 style="margin: 0; font-size: 24px;">&#127820; Nano Banana</h1>
    </div>
    <div style="padding: 40px 30px;">
      <p style="color: #666; line-height: 1.6;">Hello!</p>
      <p style="color: #666; line-height: 1.6;">Thanks for registering with Nano Banana. Use the following code to complete your registration:</p>
      <div style="background: linear-gradient(135deg, #667eea 0%%, #764ba2 100%%); color: white; font-size: 32px; font-weight: bold; text-align: center; padding: 20px; margin: 30px 0; border-radius: 8px; letter-spacing: 8px; font-family: monospace;">%s</div>
      <p style="background-color: #fff3cd; border-left: 4px solid #ffc107; padding: 12px; color: #856404; border-radius: 4px;">&#9888; The code expires in <strong>10 minutes</strong>.</p>
      <p style="color: #666; line-height: 1.6;">If this wasn't you, please ignore this message.</p>
    </div>
    <div style="background-color: #f8f9fa; padding: 20px; text-align: center; color: #6c757d; font-size: 14px;">
      <p>This mail was sent automatically, please do not reply.</p>
    </div>
  </div>
</body>
</html>`, code)
}
