// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/handlers"
	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/provider"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"codeberg.org/oliverandrich/nanobanana/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopProvider struct{}

func (nopProvider) GetOrCreate(context.Context, string, provider.ChatOptions, func() []provider.Content) (provider.Chat, error) {
	return nil, nil
}

func (nopProvider) Remove(string) {}

func newAdminFixture(t *testing.T) (*handlers.AdminHandlers, *repository.Repository, *models.User) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	store := testutil.NewTestStore(t)
	_, err := repo.EnsureAdmin(context.Background(), "hash")
	require.NoError(t, err)
	admin, err := repo.GetUserByUsername(context.Background(), models.BootstrapAdminUsername)
	require.NoError(t, err)
	return handlers.NewAdmin(repo, store, nopProvider{}), repo, admin
}

func TestAdminListUsers(t *testing.T) {
	h, repo, admin := newAdminFixture(t)
	testutil.NewTestUser(t, repo, "someone")

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodGet, "/api/admin/users", nil)
	withUser(c, admin)

	require.NoError(t, h.ListUsers(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"someone"`)
	assert.Contains(t, rec.Body.String(), `"session_count"`)
	// Password hashes never leave the server.
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestAdminDeleteUser(t *testing.T) {
	h, repo, admin := newAdminFixture(t)
	user := testutil.NewTestUser(t, repo, "doomed")

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodDelete, "/api/admin/users/"+strconv.FormatInt(user.ID, 10), nil)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(user.ID, 10))
	withUser(c, admin)

	require.NoError(t, h.DeleteUser(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	_, err := repo.GetUserByID(context.Background(), user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdminDeleteUser_AdminRefused(t *testing.T) {
	h, _, admin := newAdminFixture(t)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodDelete, "/api/admin/users/1", nil)
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(admin.ID, 10))
	withUser(c, admin)

	require.NoError(t, h.DeleteUser(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error_cannot_delete_admin")
}

func TestAdminAdjustCredits(t *testing.T) {
	h, repo, admin := newAdminFixture(t)
	user := testutil.NewTestUser(t, repo, "someone")

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/admin/users/1/credits",
		strings.NewReader(`{"amount":10}`))
	c.SetParamNames("id")
	c.SetParamValues(strconv.FormatInt(user.ID, 10))
	withUser(c, admin)

	require.NoError(t, h.AdjustCredits(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	updated, err := repo.GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.EqualValues(t, repository.DefaultCredits+10, updated.Credits)
}

func TestAdminGenerateCardKeys(t *testing.T) {
	h, repo, admin := newAdminFixture(t)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/admin/card-keys",
		strings.NewReader(`{"credits":10,"count":3}`))
	withUser(c, admin)

	require.NoError(t, h.GenerateCardKeys(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	keys, err := repo.ListCardKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	// Full codes are in the response, only prefixes in the listing.
	assert.Contains(t, rec.Body.String(), keys[0].CodePrefix)
}

func TestAdminGenerateCardKeys_InvalidCount(t *testing.T) {
	h, _, admin := newAdminFixture(t)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/admin/card-keys",
		strings.NewReader(`{"credits":10,"count":101}`))
	withUser(c, admin)

	require.NoError(t, h.GenerateCardKeys(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCleanup_InvalidDate(t *testing.T) {
	h, _, admin := newAdminFixture(t)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/admin/cleanup",
		strings.NewReader(`{"cutoff_date":"not-a-date"}`))
	withUser(c, admin)

	require.NoError(t, h.Cleanup(c))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error_invalid_date")
}

func TestAdminCleanup(t *testing.T) {
	h, _, admin := newAdminFixture(t)

	e := echo.New()
	c, rec := testutil.NewEchoContext(e, http.MethodPost, "/api/admin/cleanup",
		strings.NewReader(`{"cutoff_date":"2024-01-01"}`))
	withUser(c, admin)

	require.NoError(t, h.Cleanup(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stats"`)
}
