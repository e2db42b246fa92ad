// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/models"
)

const (
	cardKeyLength = 16
	cardKeyChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// MaxCardKeyBatch is the maximum number of keys generated per request.
	MaxCardKeyBatch = 100
)

var (
	// ErrInvalidCardKeyCredits is returned when the credit value is not positive.
	ErrInvalidCardKeyCredits = errors.New("card key credits must be positive")
	// ErrInvalidCardKeyCount is returned when the batch size is out of range.
	ErrInvalidCardKeyCount = fmt.Errorf("card key count must be between 1 and %d", MaxCardKeyBatch)
)

// newCardKeyCode generates a cryptographically random code.
func newCardKeyCode() (string, error) {
	buf := make([]byte, cardKeyLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(cardKeyChars))))
		if err != nil {
			return "", err
		}
		buf[i] = cardKeyChars[n.Int64()]
	}
	return string(buf), nil
}

// CreateCardKeys generates a batch of card keys worth the given credits. The
// plaintext codes are returned exactly once; only hashes are persisted.
func (r *Repository) CreateCardKeys(ctx context.Context, credits int64, count int) ([]models.GeneratedCardKey, error) {
	if credits <= 0 {
		return nil, ErrInvalidCardKeyCredits
	}
	if count <= 0 || count > MaxCardKeyBatch {
		return nil, ErrInvalidCardKeyCount
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	keys := make([]models.GeneratedCardKey, 0, count)
	for range count {
		code, err := newCardKeyCode()
		if err != nil {
			return nil, err
		}
		prefix := code[:4]

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO card_keys (code_hash, code_prefix, credits, created_at) VALUES (?, ?, ?, ?)`,
			HashCode(code), prefix, credits, now); err != nil {
			return nil, err
		}

		keys = append(keys, models.GeneratedCardKey{
			Code:       code,
			CodePrefix: prefix,
			Credits:    credits,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}

// ListCardKeys returns all card keys (prefix only) with the redeeming
// username joined in, newest first.
func (r *Repository) ListCardKeys(ctx context.Context) ([]models.CardKeyListing, error) {
	var keys []models.CardKeyListing
	err := r.db.SelectContext(ctx, &keys, `
		SELECT ck.id, ck.code_prefix, ck.credits, ck.is_used, ck.used_by, ck.used_at, ck.created_at,
		       u.username AS used_by_username
		FROM card_keys ck
		LEFT JOIN users u ON ck.used_by = u.id
		ORDER BY ck.created_at DESC, ck.id DESC`)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// RedeemCardKey redeems a card key for the given user: the key is marked used
// and the user's balance credited in one transaction. Returns the credited
// amount and the new balance. A second redemption of the same code fails with
// ErrCardKeyNotFound, exactly like a code that never existed.
//
// The stored value is an unsalted hash, so there is no indexable lookup: all
// unused keys are scanned and compared in constant time per candidate. Fine
// while the unused set stays small.
func (r *Repository) RedeemCardKey(ctx context.Context, code string, userID int64) (credited, balance int64, err error) {
	code = normalizeCardKeyCode(code)
	if code == "" {
		return 0, 0, ErrCardKeyNotFound
	}
	codeHash := []byte(HashCode(code))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var unused []models.CardKey
	if err := tx.SelectContext(ctx, &unused, `SELECT * FROM card_keys WHERE is_used = 0`); err != nil {
		return 0, 0, err
	}

	var matched *models.CardKey
	for i := range unused {
		if subtle.ConstantTimeCompare([]byte(unused[i].CodeHash), codeHash) == 1 {
			matched = &unused[i]
			break
		}
	}
	if matched == nil {
		return 0, 0, ErrCardKeyNotFound
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE card_keys SET is_used = 1, used_by = ?, used_at = ? WHERE id = ? AND is_used = 0`,
		userID, time.Now().UTC(), matched.ID)
	if err != nil {
		return 0, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	if affected == 0 {
		// Lost the race against a concurrent redemption.
		return 0, 0, ErrCardKeyNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET credits = credits + ? WHERE id = ?`, matched.Credits, userID); err != nil {
		return 0, 0, err
	}
	if err := tx.GetContext(ctx, &balance, `SELECT credits FROM users WHERE id = ?`, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, ErrNotFound
		}
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return matched.Credits, balance, nil
}

func normalizeCardKeyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
