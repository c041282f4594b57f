// ABOUTME: Gateway orchestrator wiring the auth gate, pipeline, store, and HTTP server
// ABOUTME: Attaches per-connection auth state to every accepted connection and manages lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/noty-gateway/internal/auth"
	"github.com/2389/noty-gateway/internal/config"
	"github.com/2389/noty-gateway/internal/dedupe"
	"github.com/2389/noty-gateway/internal/metrics"
	"github.com/2389/noty-gateway/internal/pipeline"
	"github.com/2389/noty-gateway/internal/session"
	"github.com/2389/noty-gateway/internal/store"
)

// Gateway owns every long-lived component of a running noty-gateway.
type Gateway struct {
	config      *config.Config
	logger      *slog.Logger
	secret      *session.Secret
	users       store.CredentialStore // nil unless password_check is "store"
	metrics     *metrics.Recorder     // nil when metrics are disabled
	dedupe      *dedupe.Window        // nil when proxying upstream
	broker      *pipeline.Broker      // nil when proxying upstream
	gate        *auth.Gate
	httpServer  *http.Server
	tsnetServer *tsnet.Server

	ready    chan struct{}
	addrMu   sync.Mutex
	listenOn net.Addr
}

// initStore opens the credential store. NOTY_DB_PATH overrides database.path.
func initStore(cfg *config.Config) (store.CredentialStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("NOTY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway from validated configuration. Failure to load the
// secret material is fatal: there is no degraded mode.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	secret, err := session.NewSecret(cfg.Auth.MACAlgorithm, []byte(cfg.Auth.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("initializing secret material: %w", err)
	}

	gw := &Gateway{
		config: cfg,
		logger: logger.With("component", "gateway"),
		secret: secret,
		ready:  make(chan struct{}),
	}

	var passwords auth.PasswordChecker = auth.AllowAnyPassword{}
	if cfg.Auth.PasswordCheck == auth.PasswordCheckStore {
		gw.users, err = initStore(cfg)
		if err != nil {
			return nil, err
		}
		passwords = auth.NewStorePasswordChecker(gw.users)
	}

	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New(metrics.DefaultNamespace)
	}

	next, err := gw.buildPipeline(logger)
	if err != nil {
		gw.closeComponents()
		return nil, err
	}

	gw.gate, err = auth.NewGate(auth.GateConfig{
		Codec:          session.NewCodec(secret),
		ValidityWindow: cfg.Auth.ValidityWindow.Std(),
		PublisherToken: cfg.Auth.PublisherToken,
		CookieExpiry:   auth.ExpiryMode(cfg.Auth.CookieExpiry),
		Passwords:      passwords,
		Next:           next,
		Logger:         logger.With("component", "gate"),
		Metrics:        gw.metrics,
	})
	if err != nil {
		gw.closeComponents()
		return nil, fmt.Errorf("creating auth gate: %w", err)
	}

	gw.httpServer = gw.newHTTPServer(logger)

	gw.logger.Info("gateway configured",
		"secret", secret,
		"validity_window", cfg.Auth.ValidityWindow.String(),
		"password_check", cfg.Auth.PasswordCheck,
		"cookie_expiry", cfg.Auth.CookieExpiry,
		"publisher_path", cfg.Auth.PublisherToken != "",
		"upstream", cfg.Pipeline.UpstreamURL,
	)
	return gw, nil
}

// buildPipeline picks the upstream proxy when configured, else the
// built-in broker.
func (g *Gateway) buildPipeline(logger *slog.Logger) (auth.Admitter, error) {
	if g.config.Pipeline.UpstreamURL != "" {
		proxy, err := pipeline.NewProxy(g.config.Pipeline.UpstreamURL, logger)
		if err != nil {
			return nil, fmt.Errorf("creating upstream proxy: %w", err)
		}
		return proxy, nil
	}

	g.dedupe = dedupe.New(g.config.Pipeline.DedupeTTL.Std(), g.config.Pipeline.DedupeMaxEntries)
	g.broker = pipeline.NewBroker(g.dedupe, logger)
	return g.broker, nil
}

func (g *Gateway) newHTTPServer(logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()

	// Ungated endpoints.
	mux.HandleFunc(config.HealthPath, g.handleHealth)
	if g.metrics != nil {
		mux.Handle(g.config.Metrics.Path, g.metrics.Handler())
	}

	// Everything else passes the gate.
	mux.Handle("/", g.gate)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		ConnContext: func(ctx context.Context, _ net.Conn) context.Context {
			return auth.WithConnState(ctx, auth.NewConnState())
		},
		ConnState: g.trackConn,
		// Connection auth state assumes requests on a connection are
		// sequential; an empty map keeps HTTP/2 from multiplexing them.
		TLSNextProto: map[string]func(*http.Server, *tls.Conn, http.Handler){},
	}
	if g.broker != nil {
		srv.RegisterOnShutdown(g.broker.Close)
	}
	return srv
}

func (g *Gateway) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		g.metrics.ConnOpened()
	case http.StateClosed, http.StateHijacked:
		g.metrics.ConnClosed()
	}
}

// Ready is closed once the gateway is accepting connections.
func (g *Gateway) Ready() <-chan struct{} { return g.ready }

// Addr returns the bound listen address, or nil before Ready.
func (g *Gateway) Addr() net.Addr {
	g.addrMu.Lock()
	defer g.addrMu.Unlock()
	return g.listenOn
}

// setupListener creates the HTTP listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}
	return g.serve(ctx, ln)
}

func (g *Gateway) serve(ctx context.Context, ln net.Listener) error {
	g.addrMu.Lock()
	g.listenOn = ln.Addr()
	g.addrMu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	close(g.ready)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents closes optional components that may be nil.
func (g *Gateway) closeComponents() []error {
	var errs []error
	if g.broker != nil {
		g.broker.Close()
	}
	if g.dedupe != nil {
		g.dedupe.Close()
	}
	if g.users != nil {
		errs = appendCloseError(errs, "store close", g.users.Close())
	}
	return errs
}

// Shutdown gracefully stops the server and releases resources. Open
// subscribe streams are ended so in-flight requests can drain.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = append(errs, g.closeComponents()...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
