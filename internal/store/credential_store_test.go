// ABOUTME: Contract tests run against both SQLiteStore and MockStore
// ABOUTME: Covers create, duplicate, lookup, update, delete, and listing

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeImplementations(t *testing.T) map[string]CredentialStore {
	t.Helper()

	sqlStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]CredentialStore{
		"sqlite": sqlStore,
		"mock":   NewMockStore(),
	}
}

func TestCredentialStore_CreateAndGet(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			err := s.CreateUser(ctx, &User{ID: "ahanda", PasswordHash: "$2a$hash", CreatedAt: created})
			require.NoError(t, err)

			u, err := s.GetUser(ctx, "ahanda")
			require.NoError(t, err)
			assert.Equal(t, "ahanda", u.ID)
			assert.Equal(t, "$2a$hash", u.PasswordHash)
			assert.True(t, u.CreatedAt.Equal(created))
			assert.True(t, u.UpdatedAt.Equal(created))
		})
	}
}

func TestCredentialStore_Duplicate(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateUser(ctx, &User{ID: "dup", PasswordHash: "a"}))
			err := s.CreateUser(ctx, &User{ID: "dup", PasswordHash: "b"})
			assert.ErrorIs(t, err, ErrUserExists)
		})
	}
}

func TestCredentialStore_NotFound(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetUser(ctx, "ghost")
			assert.ErrorIs(t, err, ErrUserNotFound)
			assert.ErrorIs(t, s.UpdatePassword(ctx, "ghost", "x"), ErrUserNotFound)
			assert.ErrorIs(t, s.DeleteUser(ctx, "ghost"), ErrUserNotFound)
		})
	}
}

func TestCredentialStore_UpdateDeleteList(t *testing.T) {
	for name, s := range storeImplementations(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.CreateUser(ctx, &User{ID: "bob", PasswordHash: "old"}))
			require.NoError(t, s.CreateUser(ctx, &User{ID: "alice", PasswordHash: "pw"}))

			require.NoError(t, s.UpdatePassword(ctx, "bob", "new"))
			u, err := s.GetUser(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, "new", u.PasswordHash)

			users, err := s.ListUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, 2)
			assert.Equal(t, "alice", users[0].ID)
			assert.Equal(t, "bob", users[1].ID)

			require.NoError(t, s.DeleteUser(ctx, "alice"))
			users, err = s.ListUsers(ctx)
			require.NoError(t, err)
			require.Len(t, users, 1)
		})
	}
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &User{ID: "mem", PasswordHash: "h"}))
	_, err = s.GetUser(ctx, "mem")
	assert.NoError(t, err)
}
