// ABOUTME: Per-connection authentication state and request identity propagation
// ABOUTME: ConnState rides the connection context; Identity rides each admitted request

package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role distinguishes the two kinds of authenticated clients.
type Role string

const (
	RoleNone       Role = ""
	RolePublisher  Role = "publisher"
	RoleSubscriber Role = "subscriber"
)

// ConnState is the authentication state of one client connection.
// It is owned by the goroutine serving that connection and must not be
// shared; net/http serves requests on an HTTP/1.1 connection sequentially,
// so no locking is needed.
type ConnState struct {
	id            string
	authenticated bool
	role          Role
	userID        string
}

// NewConnState returns unauthenticated state for a freshly accepted connection.
func NewConnState() *ConnState {
	return &ConnState{id: uuid.New().String()}
}

// ID identifies the connection in logs.
func (c *ConnState) ID() string { return c.id }

// Authenticated reports whether the connection has passed the gate.
func (c *ConnState) Authenticated() bool { return c.authenticated }

// Role returns the role the connection authenticated as.
func (c *ConnState) Role() Role { return c.role }

// UserID returns the session user, empty for publishers.
func (c *ConnState) UserID() string { return c.userID }

func (c *ConnState) markAuthenticated(role Role, userID string) {
	c.authenticated = true
	c.role = role
	c.userID = userID
}

func (c *ConnState) reset() {
	c.authenticated = false
	c.role = RoleNone
	c.userID = ""
}

type connStateKey struct{}

// WithConnState attaches per-connection state. The transport calls this once
// per accepted connection (http.Server.ConnContext).
func WithConnState(ctx context.Context, state *ConnState) context.Context {
	return context.WithValue(ctx, connStateKey{}, state)
}

// ConnStateFromContext returns the connection state, or nil if none is attached.
func ConnStateFromContext(ctx context.Context) *ConnState {
	state, _ := ctx.Value(connStateKey{}).(*ConnState)
	return state
}

// Identity is what the gate hands the pipeline about an admitted request.
type Identity struct {
	UserID string // session user, empty for publishers
	Role   Role
	ConnID string
}

type identityKey struct{}

// WithIdentity returns a new context with the Identity attached.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the Identity, returning nil if not present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
