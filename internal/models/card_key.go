// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// CardKey is a single-use redemption code. Only the SHA-256 hash of the code
// is stored; the 4-character prefix exists for admin display.
type CardKey struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64      `db:"id" json:"id"`
	CodeHash   string     `db:"code_hash" json:"-"`
	CodePrefix string     `db:"code_prefix" json:"code_prefix"`
	Credits    int64      `db:"credits" json:"credits"`
	IsUsed     int64      `db:"is_used" json:"-"`
	UsedBy     *int64     `db:"used_by" json:"used_by,omitempty"`
	UsedAt     *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// CardKeyListing is a card key joined with the redeeming user's name for the
// admin console.
type CardKeyListing struct { //nolint:govet // fieldalignment: readability over optimization
	ID             int64      `db:"id" json:"id"`
	CodePrefix     string     `db:"code_prefix" json:"code_prefix"`
	Credits        int64      `db:"credits" json:"credits"`
	IsUsed         int64      `db:"is_used" json:"is_used"`
	UsedBy         *int64     `db:"used_by" json:"used_by,omitempty"`
	UsedByUsername *string    `db:"used_by_username" json:"used_by_username,omitempty"`
	UsedAt         *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// GeneratedCardKey carries a freshly generated code in plaintext. It is
// returned exactly once and never retrievable again.
type GeneratedCardKey struct {
	Code       string `json:"code"`
	CodePrefix string `json:"code_prefix"`
	Credits    int64  `json:"credits"`
}
