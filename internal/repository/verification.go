// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/models"
)

// CreateVerificationCode stores a hashed verification code for an email
// address. Older codes for the same address are left alone; they simply go
// stale once a newer one exists.
func (r *Repository) CreateVerificationCode(ctx context.Context, email, codeHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_codes (email, code_hash, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		email, codeHash, expiresAt.UTC(), time.Now().UTC())
	return err
}

// VerifyEmailCode checks the given code against the most recent unused code
// for the email address and marks it used on success.
func (r *Repository) VerifyEmailCode(ctx context.Context, email, code string) error {
	var record models.VerificationCode
	err := r.db.GetContext(ctx, &record, `
		SELECT * FROM verification_codes
		WHERE email = ? AND used = 0
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCodeNotFound
		}
		return err
	}

	if time.Now().After(record.ExpiresAt) {
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(record.CodeHash), []byte(HashCode(code))) != 1 {
		return ErrCodeMismatch
	}

	_, err = r.db.ExecContext(ctx, `UPDATE verification_codes SET used = 1 WHERE id = ?`, record.ID)
	return err
}

// DeleteExpiredVerificationCodes removes all codes past expiry and returns
// how many were deleted.
func (r *Repository) DeleteExpiredVerificationCodes(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_codes WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
