// ABOUTME: Process-wide signing secret held in an encrypted memguard enclave
// ABOUTME: Maps configured MAC algorithm names onto jwt HMAC signing methods

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/golang-jwt/jwt/v5"
)

// Secret errors
var (
	ErrEmptyKey             = errors.New("secret key is empty")
	ErrUnsupportedAlgorithm = errors.New("unsupported MAC algorithm")
	ErrNoSecret             = errors.New("secret material not initialized")
)

// algorithmAliases maps JCA style names onto JWS algorithm identifiers.
var algorithmAliases = map[string]string{
	"hmacsha256": "HS256",
	"hmacsha384": "HS384",
	"hmacsha512": "HS512",
	"hs256":      "HS256",
	"hs384":      "HS384",
	"hs512":      "HS512",
}

// Secret is the immutable symmetric key plus the algorithm used to sign
// session identifiers. It is safe for concurrent use.
type Secret struct {
	method *jwt.SigningMethodHMAC
	key    *memguard.Enclave
}

// NewSecret seals key into an enclave. The caller's key slice is wiped.
func NewSecret(algorithm string, key []byte) (*Secret, error) {
	method, err := lookupMethod(algorithm)
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	return &Secret{
		method: method,
		key:    memguard.NewEnclave(key),
	}, nil
}

func lookupMethod(algorithm string) (*jwt.SigningMethodHMAC, error) {
	alg, ok := algorithmAliases[strings.ToLower(strings.TrimSpace(algorithm))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return method, nil
}

// Algorithm returns the JWS name of the signing algorithm, e.g. "HS256".
func (s *Secret) Algorithm() string {
	if s == nil || s.method == nil {
		return ""
	}
	return s.method.Alg()
}

// String never includes key material.
func (s *Secret) String() string {
	return fmt.Sprintf("session.Secret{alg=%s key=REDACTED}", s.Algorithm())
}

// LogValue implements slog.LogValuer so a Secret can be logged safely.
func (s *Secret) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("alg", s.Algorithm()),
		slog.String("key", "REDACTED"),
	)
}

// sign computes the raw MAC of msg.
func (s *Secret) sign(msg string) ([]byte, error) {
	if s == nil || s.key == nil || s.method == nil {
		return nil, ErrNoSecret
	}
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening secret enclave: %w", err)
	}
	defer buf.Destroy()

	return s.method.Sign(msg, buf.Bytes())
}

// verify checks sig against msg in constant time.
func (s *Secret) verify(msg string, sig []byte) error {
	if s == nil || s.key == nil || s.method == nil {
		return ErrNoSecret
	}
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening secret enclave: %w", err)
	}
	defer buf.Destroy()

	return s.method.Verify(msg, sig, buf.Bytes())
}
