// ABOUTME: Signed session codec: derives session ids from user id and start time
// ABOUTME: Mint and Verify are pure functions of their inputs and the secret

package session

import (
	"encoding/base64"
	"strconv"
)

// Session is the tuple carried by a client between requests. ID is derived
// from UserID and Start and is never stored server side.
type Session struct {
	UserID string
	Start  int64
	ID     string
}

// Codec mints and verifies session identifiers.
type Codec struct {
	secret *Secret
}

// NewCodec creates a codec bound to secret.
func NewCodec(secret *Secret) *Codec {
	return &Codec{secret: secret}
}

// Canonical returns the string that is signed for a session.
func Canonical(userID string, start int64) string {
	return userID + "&" + strconv.FormatInt(start, 10)
}

// Mint returns the session id for (userID, start).
func (c *Codec) Mint(userID string, start int64) (string, error) {
	if c == nil {
		return "", ErrNoSecret
	}
	sig, err := c.secret.sign(Canonical(userID, start))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether presented is the session id for (userID, start).
// Any failure, including a missing secret, yields false.
func (c *Codec) Verify(userID string, start int64, presented string) bool {
	if c == nil || presented == "" {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(presented)
	if err != nil {
		return false
	}
	return c.secret.verify(Canonical(userID, start), sig) == nil
}
