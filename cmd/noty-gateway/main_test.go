// ABOUTME: Tests for the noty-gateway command helpers
// ABOUTME: Covers logger setup, generated configs, and user management commands

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/noty-gateway/internal/auth"
	"github.com/2389/noty-gateway/internal/config"
	"github.com/2389/noty-gateway/internal/session"
	"github.com/2389/noty-gateway/internal/store"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "user", "ahanda")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "ahanda", rec["user"])
}

func TestColorHandler_Attributes(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("component", "gate").WithGroup("req").Debug("admitted", "role", "publisher")

	out := buf.String()
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "admitted")
	assert.Contains(t, out, "component=gate")
	assert.Contains(t, out, "req.role=publisher")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestColorHandler_RedactsSecret(t *testing.T) {
	key := "0123456789abcdef0123456789abcdef"
	secret, err := session.NewSecret("HmacSHA256", []byte(key))
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "info"}, &buf)
	logger.Info("gateway configured", "secret", secret)

	out := buf.String()
	assert.Contains(t, out, "REDACTED")
	assert.NotContains(t, out, key)
}

func TestRenderConfig_LoadsBack(t *testing.T) {
	secret, err := randomToken(32)
	require.NoError(t, err)

	a := initAnswers{
		HTTPAddr:       "0.0.0.0:9090",
		MACAlgorithm:   "HmacSHA512",
		ValidityWindow: "30m",
		SecretKey:      secret,
		PublisherToken: "pub-token",
		PasswordCheck:  "store",
		DatabasePath:   "/var/lib/noty/users.db",
		UpstreamURL:    "http://127.0.0.1:7000",
		LogLevel:       "debug",
		LogFormat:      "json",
	}

	cfg, err := config.Parse([]byte(renderConfig(a)), false)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "HmacSHA512", cfg.Auth.MACAlgorithm)
	assert.Equal(t, "30m0s", cfg.Auth.ValidityWindow.String())
	assert.Equal(t, secret, cfg.Auth.SecretKey)
	assert.Equal(t, "pub-token", cfg.Auth.PublisherToken)
	assert.Equal(t, "store", cfg.Auth.PasswordCheck)
	assert.Equal(t, "/var/lib/noty/users.db", cfg.Database.Path)
	assert.Equal(t, "http://127.0.0.1:7000", cfg.Pipeline.UpstreamURL)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestRenderConfig_Tailscale(t *testing.T) {
	secret, err := randomToken(32)
	require.NoError(t, err)

	a := initAnswers{
		MACAlgorithm:      config.DefaultMACAlgorithm,
		ValidityWindow:    "1h",
		SecretKey:         secret,
		PasswordCheck:     "none",
		TailscaleEnabled:  true,
		TailscaleHostname: "noty",
		TailscaleFunnel:   true,
		LogLevel:          "info",
		LogFormat:         "text",
	}

	rendered := renderConfig(a)
	assert.NotContains(t, rendered, "http_addr")

	cfg, err := config.Parse([]byte(rendered), false)
	require.NoError(t, err)
	assert.True(t, cfg.Tailscale.Enabled)
	assert.True(t, cfg.Tailscale.Funnel)
	assert.Equal(t, "noty", cfg.Tailscale.Hostname)
	assert.Empty(t, cfg.Auth.PublisherToken)
}

func TestRandomToken(t *testing.T) {
	a, err := randomToken(32)
	require.NoError(t, err)
	b, err := randomToken(32)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.GreaterOrEqual(t, len(a), config.MinSecretKeyBytes)
}

func TestYes(t *testing.T) {
	assert.True(t, yes("y"))
	assert.True(t, yes(" YES "))
	assert.False(t, yes("no"))
	assert.False(t, yes(""))
}

func TestParseUserArgs(t *testing.T) {
	ua, err := parseUserArgs([]string{"--user", "ahanda", "--password=pw", "--force"}, true)
	require.NoError(t, err)
	assert.Equal(t, userArgs{userID: "ahanda", password: "pw", force: true}, ua)

	ua, err = parseUserArgs([]string{"-u", "ahanda", "-p", "pw"}, true)
	require.NoError(t, err)
	assert.Equal(t, "ahanda", ua.userID)
	assert.Equal(t, "pw", ua.password)

	ua, err = parseUserArgs([]string{"--user=ahanda"}, false)
	require.NoError(t, err)
	assert.Equal(t, "ahanda", ua.userID)
}

func TestParseUserArgs_Errors(t *testing.T) {
	tests := []struct {
		name          string
		args          []string
		allowPassword bool
		wantErr       string
	}{
		{"missing user", nil, true, "--user flag is required"},
		{"dangling user", []string{"--user"}, true, "requires a value"},
		{"dangling password", []string{"--user", "a", "--password"}, true, "requires a value"},
		{"password not allowed", []string{"--user", "a", "--password", "pw"}, false, "unknown flag"},
		{"unknown flag", []string{"--nope"}, true, "unknown flag"},
		{"positional", []string{"ahanda"}, true, "unexpected argument"},
		{"unsafe id", []string{"--user", "a;b"}, true, "not allowed in a cookie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseUserArgs(tt.args, tt.allowPassword)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAddUser(t *testing.T) {
	ctx := context.Background()
	s := store.NewMockStore()
	checker := auth.NewStorePasswordChecker(s)

	created, err := addUser(ctx, s, userArgs{userID: "ahanda", password: "first"})
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, checker.CheckPassword(ctx, "ahanda", "first"))

	_, err = addUser(ctx, s, userArgs{userID: "ahanda", password: "second"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	created, err = addUser(ctx, s, userArgs{userID: "ahanda", password: "second", force: true})
	require.NoError(t, err)
	assert.False(t, created)
	require.NoError(t, checker.CheckPassword(ctx, "ahanda", "second"))
	assert.ErrorIs(t, checker.CheckPassword(ctx, "ahanda", "first"), auth.ErrBadCredentials)
}

func TestAddUser_EmptyPassword(t *testing.T) {
	_, err := addUser(context.Background(), store.NewMockStore(), userArgs{userID: "ahanda"})
	assert.Error(t, err)
}

func TestListUsers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMockStore()

	var buf bytes.Buffer
	require.NoError(t, listUsers(ctx, s, &buf))
	assert.Equal(t, "No users.\n", buf.String())

	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "zed", PasswordHash: "x"}))
	require.NoError(t, s.CreateUser(ctx, &store.User{ID: "ahanda", PasswordHash: "x"}))

	buf.Reset()
	require.NoError(t, listUsers(ctx, s, &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ahanda"))
	assert.True(t, strings.HasPrefix(lines[1], "zed"))
}

func TestReadPassword(t *testing.T) {
	var out bytes.Buffer
	pw, err := readPassword(strings.NewReader("s3cret\r\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
	assert.Equal(t, "Password: ", out.String())

	pw, err = readPassword(strings.NewReader("no-newline"), &out)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)

	_, err = readPassword(strings.NewReader("\n"), &out)
	assert.Error(t, err)
}

func TestHealthURL(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{HTTPAddr: "127.0.0.1:8080"}}
	assert.Equal(t, "http://127.0.0.1:8080/health", healthURL(cfg))

	cfg.Tailscale = config.TailscaleConfig{Enabled: true, Hostname: "noty"}
	assert.Equal(t, "http://noty/health", healthURL(cfg))

	cfg.Tailscale.HTTPS = true
	assert.Equal(t, "https://noty/health", healthURL(cfg))
}
