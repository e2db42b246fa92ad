// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// BootstrapAdminUsername is the username of the seeded admin account. It can
// never be demoted or deleted.
const BootstrapAdminUsername = "admin"

type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        *string   `db:"email" json:"email,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      int64     `db:"is_admin" json:"is_admin"`
	Credits      int64     `db:"credits" json:"credits"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Admin reports whether the user has the admin flag set.
func (u *User) Admin() bool {
	return u.IsAdmin != 0
}

// PublicUser is the JSON shape exposed to clients; it never carries the
// password hash.
type PublicUser struct { //nolint:govet // fieldalignment: readability over optimization
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// Public returns the client-visible view of the user.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		IsAdmin:   u.Admin(),
		Credits:   u.Credits,
		CreatedAt: u.CreatedAt,
	}
}
