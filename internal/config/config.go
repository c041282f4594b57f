// ABOUTME: Configuration loading and parsing for noty-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults, and validation

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/noty-gateway/internal/auth"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultMACAlgorithm     = "HmacSHA256"
	DefaultValidityWindow   = time.Hour
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultDedupeTTL        = 5 * time.Minute
	DefaultDedupeMaxEntries = 100_000
	DefaultMetricsPath      = "/metrics"

	// HealthPath is the ungated liveness endpoint.
	HealthPath = "/health"

	// MinSecretKeyBytes is the shortest secret_key accepted.
	MinSecretKeyBytes = 32
)

// Config represents the complete noty-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Pipeline  PipelineConfig  `yaml:"pipeline" toml:"pipeline"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the listen address and server timeouts
type ServerConfig struct {
	HTTPAddr        string   `yaml:"http_addr" toml:"http_addr"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public Funnel (implies HTTPS)
}

// AuthConfig holds the session and publisher credentials
type AuthConfig struct {
	MACAlgorithm   string   `yaml:"mac_algorithm" toml:"mac_algorithm"`
	SecretKey      string   `yaml:"secret_key" toml:"secret_key"`
	ValidityWindow Duration `yaml:"validity_window" toml:"validity_window"`
	PublisherToken string   `yaml:"publisher_token" toml:"publisher_token"`
	PasswordCheck  string   `yaml:"password_check" toml:"password_check"` // "none" or "store"
	CookieExpiry   string   `yaml:"cookie_expiry" toml:"cookie_expiry"`   // "relative" or "absolute"
}

// DatabaseConfig holds the credential store location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// PipelineConfig selects where admitted requests go
type PipelineConfig struct {
	// UpstreamURL proxies to an external server; empty uses the built-in broker.
	UpstreamURL      string   `yaml:"upstream_url" toml:"upstream_url"`
	DedupeTTL        Duration `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
	DedupeMaxEntries int      `yaml:"dedupe_max_entries" toml:"dedupe_max_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Duration accepts Go duration strings ("30m") or a bare integer number of
// seconds, in both YAML and TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	return d.parse(node.Value)
}

// UnmarshalTOML implements toml.Unmarshaler.
func (d *Duration) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case int64:
		*d = Duration(time.Duration(val) * time.Second)
		return nil
	case string:
		return d.parse(val)
	default:
		return fmt.Errorf("duration must be a string or integer, got %T", v)
	}
}

func (d *Duration) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates raw configuration bytes.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyDefaults fills every unset field that has a default.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}
	if c.Auth.MACAlgorithm == "" {
		c.Auth.MACAlgorithm = DefaultMACAlgorithm
	}
	if c.Auth.ValidityWindow == 0 {
		c.Auth.ValidityWindow = Duration(DefaultValidityWindow)
	}
	if c.Auth.PasswordCheck == "" {
		c.Auth.PasswordCheck = "none"
	}
	if c.Auth.CookieExpiry == "" {
		c.Auth.CookieExpiry = "relative"
	}
	if c.Pipeline.DedupeTTL == 0 {
		c.Pipeline.DedupeTTL = Duration(DefaultDedupeTTL)
	}
	if c.Pipeline.DedupeMaxEntries == 0 {
		c.Pipeline.DedupeMaxEntries = DefaultDedupeMaxEntries
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Auth.SecretKey == "" {
		return errors.New("auth.secret_key is required")
	}
	if len(c.Auth.SecretKey) < MinSecretKeyBytes {
		return fmt.Errorf("auth.secret_key must be at least %d bytes", MinSecretKeyBytes)
	}
	if c.Auth.ValidityWindow.Std() < time.Second {
		return errors.New("auth.validity_window must be at least 1s")
	}

	switch c.Auth.PasswordCheck {
	case "none":
	case "store":
		if c.Database.Path == "" {
			return errors.New("database.path is required when auth.password_check is \"store\"")
		}
	default:
		return fmt.Errorf("auth.password_check must be \"none\" or \"store\", got %q", c.Auth.PasswordCheck)
	}

	switch c.Auth.CookieExpiry {
	case "relative", "absolute":
	default:
		return fmt.Errorf("auth.cookie_expiry must be \"relative\" or \"absolute\", got %q", c.Auth.CookieExpiry)
	}

	if c.Pipeline.UpstreamURL != "" {
		u, err := url.Parse(c.Pipeline.UpstreamURL)
		if err != nil {
			return fmt.Errorf("pipeline.upstream_url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("pipeline.upstream_url must use http or https scheme")
		}
	}
	if c.Pipeline.DedupeMaxEntries < 0 {
		return errors.New("pipeline.dedupe_max_entries must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if err := validateMetricsPath(c.Metrics.Path); err != nil {
			return err
		}
	}
	return nil
}

// validateMetricsPath keeps the metrics route an exact path that cannot
// shadow the health check or the gate's login and logout routes.
func validateMetricsPath(p string) error {
	if !strings.HasPrefix(p, "/") {
		return errors.New("metrics.path must start with /")
	}
	if strings.HasSuffix(p, "/") {
		return fmt.Errorf("metrics.path must not end with / (got %q)", p)
	}
	if strings.ContainsAny(p, "{} \t") {
		return fmt.Errorf("metrics.path must be a literal path (got %q)", p)
	}
	switch p {
	case HealthPath, auth.LoginPath, auth.LogoutPath:
		return fmt.Errorf("metrics.path %q is reserved", p)
	}
	return nil
}

// DefaultPath resolves the config file location.
// Priority: NOTY_CONFIG env var > XDG_CONFIG_HOME/noty/gateway.yaml > ~/.config/noty/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv("NOTY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "noty", "gateway.yaml")
}
