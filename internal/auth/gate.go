// ABOUTME: Per-connection authentication gate in front of the messaging pipeline
// ABOUTME: Publisher token fast path, logout, verb check, then signed-session validation

package auth

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/noty-gateway/internal/metrics"
	"github.com/2389/noty-gateway/internal/session"
)

// Fixed endpoints and headers.
const (
	LoginPath            = "/login"
	LogoutPath           = "/logout"
	PublisherTokenHeader = "auth-token"
)

// Admitter is the pipeline admission boundary: the only thing the gate calls
// once a request is allowed through.
type Admitter interface {
	Admit(w http.ResponseWriter, r *http.Request)
}

// AdmitterFunc adapts a function to Admitter.
type AdmitterFunc func(w http.ResponseWriter, r *http.Request)

// Admit calls f(w, r).
func (f AdmitterFunc) Admit(w http.ResponseWriter, r *http.Request) { f(w, r) }

// GateConfig configures a Gate. Codec and Next are required.
type GateConfig struct {
	Codec          *session.Codec
	ValidityWindow time.Duration
	PublisherToken string // empty disables the publisher path
	CookieExpiry   ExpiryMode
	Passwords      PasswordChecker // nil means AllowAnyPassword
	Next           Admitter
	Logger         *slog.Logger
	Metrics        *metrics.Recorder // optional
	Now            func() time.Time  // optional, for tests
}

// Gate decides, per request on a connection, whether the request reaches
// the pipeline. It holds only immutable configuration; all mutable state is
// the ConnState found in the request context.
type Gate struct {
	codec          *session.Codec
	window         time.Duration
	publisherToken []byte
	issuer         *issuer
	next           Admitter
	logger         *slog.Logger
	metrics        *metrics.Recorder
	now            func() time.Time
}

// NewGate validates cfg and builds a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Codec == nil {
		return nil, errors.New("gate requires a session codec")
	}
	if cfg.Next == nil {
		return nil, errors.New("gate requires a pipeline admitter")
	}
	if cfg.ValidityWindow < time.Second {
		return nil, errors.New("validity window must be at least one second")
	}
	if cfg.CookieExpiry == "" {
		cfg.CookieExpiry = ExpiryRelative
	}
	if cfg.CookieExpiry != ExpiryRelative && cfg.CookieExpiry != ExpiryAbsolute {
		return nil, errors.New("cookie expiry must be \"relative\" or \"absolute\"")
	}
	if cfg.Passwords == nil {
		cfg.Passwords = AllowAnyPassword{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Gate{
		codec:   cfg.Codec,
		window:  cfg.ValidityWindow,
		next:    cfg.Next,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		issuer: &issuer{
			codec:     cfg.Codec,
			passwords: cfg.Passwords,
			window:    cfg.ValidityWindow,
			expiry:    cfg.CookieExpiry,
			now:       cfg.Now,
		},
	}
	if cfg.PublisherToken != "" {
		g.publisherToken = []byte(cfg.PublisherToken)
	}
	return g, nil
}

// ServeHTTP applies the gate's decision order; the first matching rule wins.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn := ConnStateFromContext(r.Context())
	if conn == nil {
		// Without transport support every request is its own connection.
		conn = NewConnState()
	}

	if !conn.Authenticated() && g.isPublisher(r) {
		conn.markAuthenticated(RolePublisher, "")
		g.logger.Info("publisher authenticated", "conn_id", conn.ID(), "remote_addr", r.RemoteAddr)
	}

	if r.URL.Path == LogoutPath && r.Method == http.MethodDelete {
		g.logout(w, r, conn)
		return
	}

	if r.Method != http.MethodPost && r.URL.Path != LogoutPath {
		g.reject(w, r, conn, ErrMethodNotAllowed)
		return
	}

	if conn.Authenticated() {
		g.admit(w, r, conn)
		return
	}

	sess, err := g.authenticate(w, r)
	if err != nil {
		g.reject(w, r, conn, err)
		return
	}

	conn.markAuthenticated(RoleSubscriber, sess.UserID)
	g.logger.Info("subscriber authenticated", "conn_id", conn.ID(), "user_id", sess.UserID)
	g.admit(w, r, conn)
}

// authenticate is the first-request flow for a subscriber connection.
func (g *Gate) authenticate(w http.ResponseWriter, r *http.Request) (session.Session, error) {
	cookies := readSessionCookies(r)

	var sess session.Session
	var ok bool
	if r.URL.Path == LoginPath && !cookies.complete() {
		issued, err := g.issuer.issue(w, r, cookies)
		if err != nil {
			return session.Session{}, err
		}
		g.metrics.SessionIssued()
		sess, ok = issued, true
	} else {
		sess, ok = cookies.session()
	}

	if !ok {
		return session.Session{}, ErrUnauthorized
	}

	if !g.codec.Verify(sess.UserID, sess.Start, sess.ID) {
		return session.Session{}, ErrInvalidSignature
	}

	elapsed := g.now().Unix() - sess.Start
	if elapsed > int64(g.window/time.Second) {
		return session.Session{}, &SessionExpiredError{Elapsed: elapsed}
	}
	return sess, nil
}

// isPublisher compares the auth-token header to the shared secret in
// constant time.
func (g *Gate) isPublisher(r *http.Request) bool {
	if g.publisherToken == nil {
		return false
	}
	token := r.Header.Get(PublisherTokenHeader)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), g.publisherToken) == 1
}

// logout always succeeds, drops the connection back to unauthenticated and
// asks net/http to close it after the response.
func (g *Gate) logout(w http.ResponseWriter, r *http.Request, conn *ConnState) {
	g.logger.Info("logout", "conn_id", conn.ID(), "was_authenticated", conn.Authenticated())
	conn.reset()
	g.metrics.Logout()

	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, SessionDeletedMessage)
}

func (g *Gate) admit(w http.ResponseWriter, r *http.Request, conn *ConnState) {
	g.metrics.Admitted(string(conn.Role()))
	id := &Identity{UserID: conn.UserID(), Role: conn.Role(), ConnID: conn.ID()}
	g.next.Admit(w, r.WithContext(WithIdentity(r.Context(), id)))
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, conn *ConnState, err error) {
	reason := Reason(err)
	g.metrics.Rejected(reason)

	attrs := []any{"reason", reason, "conn_id", conn.ID(), "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr}
	if StatusFor(err) == http.StatusInternalServerError {
		g.logger.Error("auth failure", append(attrs, "error", err)...)
	} else {
		g.logger.Warn("auth failure", append(attrs, "error", err.Error())...)
	}
	writeError(w, err)
}
