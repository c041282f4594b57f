// ABOUTME: Credential store interface and data types for noty-gateway
// ABOUTME: Holds login users and their bcrypt password hashes, never sessions

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when creating a user whose id is taken.
var ErrUserExists = errors.New("user already exists")

// User is a login identity for the subscriber role.
type User struct {
	ID           string
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CredentialStore persists login users. Sessions are never stored.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error
	ListUsers(ctx context.Context) ([]*User, error)
	Close() error
}
