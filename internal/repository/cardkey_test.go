// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"strings"
	"testing"

	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"codeberg.org/oliverandrich/nanobanana/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCardKeys(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	keys, err := repo.CreateCardKeys(context.Background(), 10, 5)

	require.NoError(t, err)
	require.Len(t, keys, 5)
	seen := make(map[string]bool)
	for _, key := range keys {
		assert.Len(t, key.Code, 16)
		assert.Equal(t, key.Code[:4], key.CodePrefix)
		assert.EqualValues(t, 10, key.Credits)
		assert.False(t, seen[key.Code])
		seen[key.Code] = true
	}
}

func TestCreateCardKeys_InvalidCredits(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.CreateCardKeys(context.Background(), 0, 1)

	assert.ErrorIs(t, err, repository.ErrInvalidCardKeyCredits)
}

func TestCreateCardKeys_InvalidCount(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	_, err := repo.CreateCardKeys(ctx, 5, 0)
	assert.ErrorIs(t, err, repository.ErrInvalidCardKeyCount)

	_, err = repo.CreateCardKeys(ctx, 5, repository.MaxCardKeyBatch+1)
	assert.ErrorIs(t, err, repository.ErrInvalidCardKeyCount)
}

func TestRedeemCardKey(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	keys, err := repo.CreateCardKeys(ctx, 10, 1)
	require.NoError(t, err)

	credited, balance, err := repo.RedeemCardKey(ctx, keys[0].Code, user.ID)

	require.NoError(t, err)
	assert.EqualValues(t, 10, credited)
	assert.EqualValues(t, repository.DefaultCredits+10, balance)

	listings, err := repo.ListCardKeys(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.EqualValues(t, 1, listings[0].IsUsed)
	require.NotNil(t, listings[0].UsedByUsername)
	assert.Equal(t, "testuser", *listings[0].UsedByUsername)
}

func TestRedeemCardKey_OnlyOnce(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	keys, err := repo.CreateCardKeys(ctx, 10, 1)
	require.NoError(t, err)

	_, _, err = repo.RedeemCardKey(ctx, keys[0].Code, user.ID)
	require.NoError(t, err)

	_, _, err = repo.RedeemCardKey(ctx, keys[0].Code, user.ID)

	assert.ErrorIs(t, err, repository.ErrCardKeyNotFound)
}

func TestRedeemCardKey_Normalization(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "testuser")

	keys, err := repo.CreateCardKeys(ctx, 5, 1)
	require.NoError(t, err)

	code := "  " + strings.ToLower(keys[0].Code) + "  "
	credited, _, err := repo.RedeemCardKey(ctx, code, user.ID)

	require.NoError(t, err)
	assert.EqualValues(t, 5, credited)
}

func TestRedeemCardKey_Unknown(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := testutil.NewTestUser(t, repo, "testuser")

	_, _, err := repo.RedeemCardKey(context.Background(), "AAAABBBBCCCCDDDD", user.ID)

	assert.ErrorIs(t, err, repository.ErrCardKeyNotFound)
}
