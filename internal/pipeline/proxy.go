// ABOUTME: Reverse proxy pipeline forwarding admitted requests to an upstream messaging server
// ABOUTME: Replaces gateway credentials with identity headers the upstream can trust

package pipeline

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/2389/noty-gateway/internal/auth"
)

// Headers set on every forwarded request. Client-supplied values are dropped.
const (
	UserHeader = "X-Noty-User"
	RoleHeader = "X-Noty-Role"
)

// Proxy forwards admitted requests to an upstream server.
type Proxy struct {
	target *url.URL
	rp     *httputil.ReverseProxy
	logger *slog.Logger
}

// NewProxy builds a proxy to upstream, an absolute http or https URL.
func NewProxy(upstream string, logger *slog.Logger) (*Proxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream url: %w", err)
	}
	if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute http(s)", upstream)
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Proxy{
		target: target,
		logger: logger.With("component", "proxy", "upstream", target.Redacted()),
	}
	p.rp = &httputil.ReverseProxy{
		Rewrite:       p.rewrite,
		ErrorHandler:  p.handleError,
		FlushInterval: -1, // subscribe responses are streams
	}
	return p, nil
}

// Admit forwards the request upstream.
func (p *Proxy) Admit(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(p.target)
	pr.SetXForwarded()

	out := pr.Out.Header
	out.Del(auth.PublisherTokenHeader)
	out.Del(UserHeader)
	out.Del(RoleHeader)

	// Session cookies stay at the gateway; anything else passes through.
	out.Del("Cookie")
	for _, c := range pr.In.Cookies() {
		switch c.Name {
		case auth.CookieUserID, auth.CookieSessionStart, auth.CookieSessionID:
			continue
		}
		pr.Out.AddCookie(c)
	}

	if id := auth.IdentityFromContext(pr.In.Context()); id != nil {
		out.Set(RoleHeader, string(id.Role))
		if id.UserID != "" {
			out.Set(UserHeader, id.UserID)
		}
	}

	// The login body holds the password and may already be consumed by
	// session issuance; upstream only sees the identity headers.
	if pr.In.URL.Path == auth.LoginPath {
		pr.Out.Body = http.NoBody
		pr.Out.ContentLength = 0
		out.Del("Content-Length")
	}
}

func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Warn("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	if r.URL.Path == auth.LoginPath {
		auth.RevokeLogin(w, r)
	}
	writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
}
