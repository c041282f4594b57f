// ABOUTME: Password checks for the login flow: permissive or bcrypt against the credential store
// ABOUTME: Mode "none" preserves the historical accept-any-password behavior

package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/noty-gateway/internal/store"
)

// Password check modes accepted in auth.password_check.
const (
	PasswordCheckNone  = "none"
	PasswordCheckStore = "store"
)

// PasswordChecker decides whether a login may mint a session.
type PasswordChecker interface {
	CheckPassword(ctx context.Context, userID, password string) error
}

// AllowAnyPassword accepts every login. This is the historical behavior: the
// password field is read but never compared against anything.
type AllowAnyPassword struct{}

func (AllowAnyPassword) CheckPassword(context.Context, string, string) error { return nil }

// UserLookup is the subset of store.CredentialStore needed for login.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// dummyHash keeps the unknown-user path as slow as a real comparison.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// StorePasswordChecker compares against bcrypt hashes in the credential store.
type StorePasswordChecker struct {
	users UserLookup
}

// NewStorePasswordChecker creates a checker backed by users.
func NewStorePasswordChecker(users UserLookup) *StorePasswordChecker {
	return &StorePasswordChecker{users: users}
}

// CheckPassword returns ErrBadCredentials for unknown users and wrong
// passwords alike.
func (c *StorePasswordChecker) CheckPassword(ctx context.Context, userID, password string) error {
	user, err := c.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return ErrBadCredentials
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// HashPassword returns a bcrypt hash suitable for store.User.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
