// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/oliverandrich/nanobanana/internal/repository"
	"codeberg.org/oliverandrich/nanobanana/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyEmailCode(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute)
	err := repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("123456"), expires)
	require.NoError(t, err)

	err = repo.VerifyEmailCode(ctx, "user@example.com", "123456")

	assert.NoError(t, err)
}

func TestVerifyEmailCode_SingleUse(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute)
	err := repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("123456"), expires)
	require.NoError(t, err)

	require.NoError(t, repo.VerifyEmailCode(ctx, "user@example.com", "123456"))

	err = repo.VerifyEmailCode(ctx, "user@example.com", "123456")

	assert.ErrorIs(t, err, repository.ErrCodeNotFound)
}

func TestVerifyEmailCode_Expired(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(-time.Minute)
	err := repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("123456"), expires)
	require.NoError(t, err)

	err = repo.VerifyEmailCode(ctx, "user@example.com", "123456")

	assert.ErrorIs(t, err, repository.ErrCodeExpired)
}

func TestVerifyEmailCode_WrongCode(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute)
	err := repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("123456"), expires)
	require.NoError(t, err)

	err = repo.VerifyEmailCode(ctx, "user@example.com", "654321")

	assert.ErrorIs(t, err, repository.ErrCodeMismatch)
}

func TestVerifyEmailCode_WrongEmail(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute)
	err := repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("123456"), expires)
	require.NoError(t, err)

	err = repo.VerifyEmailCode(ctx, "other@example.com", "123456")

	assert.ErrorIs(t, err, repository.ErrCodeNotFound)
}

func TestVerifyEmailCode_MostRecentWins(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("111111"), expires))
	require.NoError(t, repo.CreateVerificationCode(ctx, "user@example.com", repository.HashCode("222222"), expires))

	assert.ErrorIs(t, repo.VerifyEmailCode(ctx, "user@example.com", "111111"), repository.ErrCodeMismatch)
	assert.NoError(t, repo.VerifyEmailCode(ctx, "user@example.com", "222222"))
}

func TestDeleteExpiredVerificationCodes(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.CreateVerificationCode(ctx, "old@example.com", repository.HashCode("111111"), now.Add(-time.Hour)))
	require.NoError(t, repo.CreateVerificationCode(ctx, "new@example.com", repository.HashCode("222222"), now.Add(time.Hour)))

	deleted, err := repo.DeleteExpiredVerificationCodes(ctx)

	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.NoError(t, repo.VerifyEmailCode(ctx, "new@example.com", "222222"))
}
