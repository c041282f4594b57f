// ABOUTME: Login handshake: decodes credentials, mints a signed session, sets three cookies
// ABOUTME: Nothing is written server side; the client carries the whole session

package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/2389/noty-gateway/internal/session"
)

// Session cookie names.
const (
	CookieUserID       = "userId"
	CookieSessionStart = "sessStart"
	CookieSessionID    = "sessId"
)

// maxLoginBody bounds the login JSON body.
const maxLoginBody = 64 << 10

// ExpiryMode selects how the Max-Age of session cookies is computed.
type ExpiryMode string

const (
	// ExpiryRelative sets Max-Age to the validity window in seconds.
	ExpiryRelative ExpiryMode = "relative"
	// ExpiryAbsolute sets Max-Age to sessionStart+window, an epoch second
	// misused as a duration. Kept for clients that depend on the old headers.
	ExpiryAbsolute ExpiryMode = "absolute"
)

// LoginRequest is the JSON body of POST /login.
type LoginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

// sessionCookies holds whichever session attributes a request presented.
type sessionCookies struct {
	userID  *http.Cookie
	start   *http.Cookie
	sessID  *http.Cookie
	present []*http.Cookie
}

func readSessionCookies(r *http.Request) sessionCookies {
	c := sessionCookies{present: r.Cookies()}
	for _, ck := range c.present {
		switch ck.Name {
		case CookieUserID:
			c.userID = ck
		case CookieSessionStart:
			c.start = ck
		case CookieSessionID:
			c.sessID = ck
		}
	}
	return c
}

func (c sessionCookies) complete() bool {
	return c.userID != nil && c.start != nil && c.sessID != nil
}

// session parses the presented attributes. ok is false if any is missing or
// the start time is not an integer.
func (c sessionCookies) session() (s session.Session, ok bool) {
	if !c.complete() {
		return s, false
	}
	start, err := strconv.ParseInt(c.start.Value, 10, 64)
	if err != nil {
		return s, false
	}
	return session.Session{UserID: c.userID.Value, Start: start, ID: c.sessID.Value}, true
}

// issuer runs the login flow.
type issuer struct {
	codec     *session.Codec
	passwords PasswordChecker
	window    time.Duration
	expiry    ExpiryMode
	now       func() time.Time
}

// issue authenticates the login body, mints a session, expires every cookie
// the client presented and sets the three fresh session cookies on w.
func (i *issuer) issue(w http.ResponseWriter, r *http.Request, presented sessionCookies) (session.Session, error) {
	var req LoginRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody))
	if err := dec.Decode(&req); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrMalformedLogin, err)
	}
	if !ValidUserID(req.UserID) {
		return session.Session{}, ErrMalformedLogin
	}

	if err := i.passwords.CheckPassword(r.Context(), req.UserID, req.Password); err != nil {
		return session.Session{}, err
	}

	start := i.now().Unix()
	id, err := i.codec.Mint(req.UserID, start)
	if err != nil {
		return session.Session{}, fmt.Errorf("minting session: %w", err)
	}

	for _, ck := range presented.present {
		if isSessionCookie(ck.Name) {
			continue // replaced below
		}
		http.SetCookie(w, &http.Cookie{Name: ck.Name, Path: "/", MaxAge: -1})
	}

	maxAge := i.cookieMaxAge(start)
	for _, kv := range [][2]string{
		{CookieSessionID, id},
		{CookieSessionStart, strconv.FormatInt(start, 10)},
		{CookieUserID, req.UserID},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     kv[0],
			Value:    kv[1],
			Path:     "/",
			MaxAge:   maxAge,
			HttpOnly: true,
		})
	}

	return session.Session{UserID: req.UserID, Start: start, ID: id}, nil
}

func (i *issuer) cookieMaxAge(start int64) int {
	window := int64(i.window / time.Second)
	if i.expiry == ExpiryAbsolute {
		return int(start + window)
	}
	return int(window)
}

// RevokeLogin undoes a login whose admission failed before the response was
// written. Pending session cookies are replaced by expiring ones and the
// connection is reset to unauthenticated and closed.
func RevokeLogin(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	pending := h.Values("Set-Cookie")
	h.Del("Set-Cookie")
	for _, line := range pending {
		if name, _, _ := strings.Cut(line, "="); isSessionCookie(name) {
			continue
		}
		h.Add("Set-Cookie", line)
	}
	for _, name := range []string{CookieSessionID, CookieSessionStart, CookieUserID} {
		http.SetCookie(w, &http.Cookie{Name: name, Path: "/", MaxAge: -1, HttpOnly: true})
	}

	if conn := ConnStateFromContext(r.Context()); conn != nil {
		conn.reset()
	}
	h.Set("Connection", "close")
}

func isSessionCookie(name string) bool {
	return name == CookieUserID || name == CookieSessionStart || name == CookieSessionID
}

// ValidUserID reports whether id can be issued as a session cookie value.
func ValidUserID(id string) bool {
	return id != "" && validCookieValue(id)
}

// validCookieValue reports whether v survives a Set-Cookie round trip unchanged.
func validCookieValue(v string) bool {
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b <= 0x20 || b >= 0x7f || b == '"' || b == ';' || b == '\\' || b == ',' {
			return false
		}
	}
	return true
}
