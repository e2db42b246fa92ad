// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/models"
	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"codeberg.org/oliverandrich/nanobanana/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, "testuser", "hash", nil)

	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, "testuser", user.Username)
	assert.EqualValues(t, repository.DefaultCredits, user.Credits)
	assert.False(t, user.Admin())
	assert.NotZero(t, user.CreatedAt)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.CreateUser(ctx, "testuser", "hash", nil)
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, "testuser", "hash", nil)

	assert.ErrorIs(t, err, repository.ErrDuplicateUsername)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	email := "user@example.com"
	_, err := repo.CreateUser(ctx, "first", "hash", &email)
	require.NoError(t, err)

	_, err = repo.CreateUser(ctx, "second", "hash", &email)

	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetUserByUsername(context.Background(), "nobody")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdjustCredits(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	balance, err := repo.AdjustCredits(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.EqualValues(t, repository.DefaultCredits+10, balance)

	balance, err = repo.AdjustCredits(ctx, user.ID, -4)
	require.NoError(t, err)
	assert.EqualValues(t, repository.DefaultCredits+6, balance)
}

func TestAdjustCredits_NeverBelowZero(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	balance, err := repo.AdjustCredits(ctx, user.ID, -1000)

	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestAdjustCredits_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.AdjustCredits(context.Background(), 999, 1)

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	err := repo.DeleteUser(ctx, user.ID)
	require.NoError(t, err)

	_, err = repo.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteUser_AdminRefused(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.EnsureAdmin(ctx, "hash")
	require.NoError(t, err)
	admin, err := repo.GetUserByUsername(ctx, models.BootstrapAdminUsername)
	require.NoError(t, err)

	err = repo.DeleteUser(ctx, admin.ID)

	assert.ErrorIs(t, err, repository.ErrIsAdmin)
}

func TestToggleAdmin(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	isAdmin, err := repo.ToggleAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	isAdmin, err = repo.ToggleAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)
}

func TestToggleAdmin_BootstrapAdminRefused(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.EnsureAdmin(ctx, "hash")
	require.NoError(t, err)
	admin, err := repo.GetUserByUsername(ctx, models.BootstrapAdminUsername)
	require.NoError(t, err)

	_, err = repo.ToggleAdmin(ctx, admin.ID)

	assert.ErrorIs(t, err, repository.ErrBootstrapAdmin)
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	created, err := repo.EnsureAdmin(ctx, "hash")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.EnsureAdmin(ctx, "other-hash")
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := repo.GetUserByUsername(ctx, models.BootstrapAdminUsername)
	require.NoError(t, err)
	assert.True(t, admin.Admin())
	assert.Equal(t, "hash", admin.PasswordHash)
}

func TestListUsers_NewestFirst(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	testutil.NewTestUser(t, repo, "first")
	testutil.NewTestUser(t, repo, "second")

	users, err := repo.ListUsers(ctx)

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "second", users[0].Username)
	assert.Equal(t, "first", users[1].Username)
}
