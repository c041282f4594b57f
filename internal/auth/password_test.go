// ABOUTME: Tests for the permissive and store-backed password checkers
// ABOUTME: Uses the in-memory mock credential store

package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/noty-gateway/internal/store"
)

type failingLookup struct{}

func (failingLookup) GetUser(context.Context, string) (*store.User, error) {
	return nil, errors.New("connection refused")
}

func TestAllowAnyPassword(t *testing.T) {
	assert.NoError(t, AllowAnyPassword{}.CheckPassword(context.Background(), "anyone", ""))
}

func TestStorePasswordChecker(t *testing.T) {
	ctx := context.Background()
	users := store.NewMockStore()

	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.NoError(t, users.CreateUser(ctx, &store.User{ID: "ahanda", PasswordHash: hash}))

	checker := NewStorePasswordChecker(users)
	assert.NoError(t, checker.CheckPassword(ctx, "ahanda", "s3cret"))
	assert.ErrorIs(t, checker.CheckPassword(ctx, "ahanda", "S3cret"), ErrBadCredentials)
	assert.ErrorIs(t, checker.CheckPassword(ctx, "nobody", "s3cret"), ErrBadCredentials)
}

func TestStorePasswordChecker_LookupFailureIsInternal(t *testing.T) {
	err := NewStorePasswordChecker(failingLookup{}).CheckPassword(context.Background(), "ahanda", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadCredentials)
	assert.Equal(t, "internal", Reason(err))
}

func TestHashPassword(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)

	a, err := HashPassword("pw")
	require.NoError(t, err)
	b, err := HashPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "hashes are salted")
}
