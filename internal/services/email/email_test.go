// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email_test

import (
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/config"
	"codeberg.org/oliverandrich/nanobanana/internal/services/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		code, err := email.GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, email.CodeLength)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9')
		}
		seen[code] = true
	}
	// 50 draws from a million values should not collapse to a handful.
	assert.Greater(t, len(seen), 40)
}

func TestSendVerification_NotConfigured(t *testing.T) {
	svc := email.NewService(&config.SMTPConfig{})

	err := svc.SendVerification("user@example.com", "123456")

	assert.ErrorIs(t, err, email.ErrNotConfigured)
}
