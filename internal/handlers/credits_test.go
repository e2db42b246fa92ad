// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/handlers"
	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/services/session"
	"codeberg.org/oliverandrich/nanobanana/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withUser(c echo.Context, user *models.User) {
	handlers.SetCurrentUser(c, &session.User{
		ID:       user.ID,
		Username: user.Username,
		IsAdmin:  user.Admin(),
	})
}

func TestRedeem(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "testuser")
	keys, err := repo.CreateCardKeys(context.Background(), 10, 1)
	require.NoError(t, err)
	h := handlers.NewCredits(repo)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/redeem",
		strings.NewReader(`{"code":"`+keys[0].Code+`"}`))
	withUser(c, user)

	require.NoError(t, h.Redeem(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"new_credits":14`)
}

func TestRedeem_UnknownCode(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "testuser")
	h := handlers.NewCredits(repo)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/redeem",
		strings.NewReader(`{"code":"AAAABBBBCCCCDDDD"}`))
	withUser(c, user)

	require.NoError(t, h.Redeem(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error_invalid_card_key")
}

func TestRedeem_SpentCodeLooksUnknown(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")
	keys, err := repo.CreateCardKeys(ctx, 10, 1)
	require.NoError(t, err)
	_, _, err = repo.RedeemCardKey(ctx, keys[0].Code, user.ID)
	require.NoError(t, err)
	h := handlers.NewCredits(repo)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/redeem",
		strings.NewReader(`{"code":"`+keys[0].Code+`"}`))
	withUser(c, user)

	require.NoError(t, h.Redeem(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error_invalid_card_key")
}
