// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/models"
)

// DefaultCredits is the credit balance granted to new accounts.
const DefaultCredits = 4

// CreateUser creates a new user with the default credit grant.
func (r *Repository) CreateUser(ctx context.Context, username, passwordHash string, email *string) (*models.User, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, is_admin, credits, created_at) VALUES (?, ?, ?, 0, ?, ?)`,
		username, email, passwordHash, DefaultCredits, now)
	if err != nil {
		return nil, wrapUserConstraint(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Credits:      DefaultCredits,
		CreatedAt:    now,
	}, nil
}

// wrapUserConstraint maps SQLite unique-constraint violations to sentinels.
func wrapUserConstraint(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "users.email") {
		return ErrDuplicateEmail
	}
	if strings.Contains(msg, "users.username") {
		return ErrDuplicateUsername
	}
	return err
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE username = ?`, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users ordered by creation date (newest first).
func (r *Repository) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUser deletes a user. Admin accounts cannot be deleted.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return err
	}
	if user.Admin() {
		return ErrIsAdmin
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// ToggleAdmin flips the admin flag of a user and returns the new state. The
// bootstrap "admin" account cannot be modified.
func (r *Repository) ToggleAdmin(ctx context.Context, id int64) (bool, error) {
	user, err := r.GetUserByID(ctx, id)
	if err != nil {
		return false, err
	}
	if user.Username == models.BootstrapAdminUsername {
		return false, ErrBootstrapAdmin
	}

	newState := !user.Admin()
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, boolToInt64(newState), id); err != nil {
		return false, err
	}
	return newState, nil
}

// AdjustCredits adds delta to the user's credit balance and returns the new
// balance. The balance is clamped at zero and never goes negative.
func (r *Repository) AdjustCredits(ctx context.Context, id int64, delta int64) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE users SET credits = MAX(0, credits + ?) WHERE id = ?`, delta, id)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	var credits int64
	if err := tx.GetContext(ctx, &credits, `SELECT credits FROM users WHERE id = ?`, id); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return credits, nil
}

// EnsureAdmin makes sure the bootstrap "admin" account exists with the admin
// flag set. Returns true if the account was created.
func (r *Repository) EnsureAdmin(ctx context.Context, passwordHash string) (bool, error) {
	_, err := r.GetUserByUsername(ctx, models.BootstrapAdminUsername)
	if err == nil {
		// Re-assert the flag in case it was cleared by hand.
		_, err = r.db.ExecContext(ctx, `UPDATE users SET is_admin = 1 WHERE username = ?`, models.BootstrapAdminUsername)
		return false, err
	}
	if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("failed to look up admin account: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, is_admin, credits, created_at) VALUES (?, ?, 1, ?, ?)`,
		models.BootstrapAdminUsername, passwordHash, DefaultCredits, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to create admin account: %w", err)
	}
	return true, nil
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
