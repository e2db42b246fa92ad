// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains the HTTP handlers of the JSON API.
package handlers

import (
	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/services/session"
)

// userContextKey is where the auth middleware stores the session user.
const userContextKey = "session_user"

// SetCurrentUser stores the session user on the request context.
func SetCurrentUser(c echo.Context, user *session.User) {
	c.Set(userContextKey, user)
}

// CurrentUser returns the session user set by the auth middleware, or nil.
func CurrentUser(c echo.Context) *session.User {
	user, _ := c.Get(userContextKey).(*session.User)
	return user
}

// creditsValue renders a credit balance for API responses. Admins have no
// balance, they see the string "admin" instead of a number.
func creditsValue(isAdmin bool, credits int64) any {
	if isAdmin {
		return "admin"
	}
	return credits
}

// userCredits is creditsValue for a database user.
func userCredits(user *models.User) any {
	return creditsValue(user.Admin(), user.Credits)
}
