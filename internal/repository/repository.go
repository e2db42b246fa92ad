// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package repository provides database access for users, card keys and
// email verification codes.
package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/vinovest/sqlx"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already exists")
	// ErrDuplicateEmail is returned when the email is already in use.
	ErrDuplicateEmail = errors.New("email already in use")
	// ErrIsAdmin is returned when trying to delete an admin account.
	ErrIsAdmin = errors.New("cannot delete admin account")
	// ErrBootstrapAdmin is returned when trying to demote the seeded admin.
	ErrBootstrapAdmin = errors.New("cannot modify bootstrap admin account")
	// ErrCardKeyNotFound is returned when a card key does not exist or was
	// already redeemed. The two cases are deliberately indistinguishable.
	ErrCardKeyNotFound = errors.New("card key not found or already used")
	// ErrCodeNotFound is returned when no unused verification code exists
	// for an email address.
	ErrCodeNotFound = errors.New("verification code not found or already used")
	// ErrCodeExpired is returned when the verification code is past expiry.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch is returned when the verification code is wrong.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// Repository wraps sqlx for database operations.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying sqlx DB for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// HashCode computes the SHA256 hash of a card key or verification code.
// Codes are high-entropy (or short-lived), so an unsalted hash is enough and
// keeps the stored value non-reversible.
func HashCode(code string) string {
	hash := sha256.Sum256([]byte(code))
	return hex.EncodeToString(hash[:])
}
