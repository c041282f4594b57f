// ABOUTME: Interactive config file generation for noty-gateway init
// ABOUTME: Generates a fresh secret key and publisher token for every new config

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/noty-gateway/internal/config"
)

// initAnswers collects everything runInit asks for.
type initAnswers struct {
	HTTPAddr       string
	MACAlgorithm   string
	ValidityWindow string
	SecretKey      string
	PublisherToken string
	PasswordCheck  string
	DatabasePath   string
	UpstreamURL    string

	TailscaleEnabled  bool
	TailscaleHostname string
	TailscaleAuthKey  string
	TailscaleFunnel   bool

	LogLevel  string
	LogFormat string
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("noty-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	secret, err := randomToken(32)
	if err != nil {
		return fmt.Errorf("generating secret key: %w", err)
	}
	publisherToken, err := randomToken(24)
	if err != nil {
		return fmt.Errorf("generating publisher token: %w", err)
	}

	var a initAnswers
	a.SecretKey = secret

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Session Configuration ---")
	a.MACAlgorithm = prompt(reader, "MAC algorithm (HmacSHA256/HmacSHA384/HmacSHA512)", config.DefaultMACAlgorithm)
	a.ValidityWindow = prompt(reader, "Session validity window", config.DefaultValidityWindow.String())
	if yes(prompt(reader, "Enable publisher token?", "yes")) {
		a.PublisherToken = publisherToken
	}
	a.PasswordCheck = prompt(reader, "Password check (none/store)", "none")
	if a.PasswordCheck == "store" {
		a.DatabasePath = prompt(reader, "SQLite users database path", defaultDatabasePath())
	}

	fmt.Println("\n--- Pipeline Configuration ---")
	a.UpstreamURL = prompt(reader, "Upstream pub/sub URL (leave empty for built-in broker)", "")

	fmt.Println("\n--- Tailscale Configuration ---")
	a.TailscaleEnabled = yes(prompt(reader, "Enable Tailscale?", "no"))
	if a.TailscaleEnabled {
		a.TailscaleHostname = prompt(reader, "Tailscale hostname", "noty-gateway")
		a.TailscaleAuthKey = prompt(reader, "Tailscale auth key (leave empty for interactive)", "")
		a.TailscaleFunnel = yes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Println()
	green.Printf("Wrote %s\n", outputFile)
	if a.PublisherToken != "" {
		fmt.Printf("Publishers authenticate with header auth-token: %s\n", a.PublisherToken)
	}
	if a.PasswordCheck == "store" {
		fmt.Println("Add login users with: noty-gateway adduser --user ID")
	}
	return nil
}

// renderConfig writes the answers as a YAML config file.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# noty-gateway configuration\n")
	b.WriteString("# Generated by noty-gateway init\n\n")

	if !a.TailscaleEnabled {
		b.WriteString("server:\n")
		fmt.Fprintf(&b, "  http_addr: %q\n\n", a.HTTPAddr)
	}

	b.WriteString("auth:\n")
	fmt.Fprintf(&b, "  mac_algorithm: %q\n", a.MACAlgorithm)
	fmt.Fprintf(&b, "  secret_key: %q\n", a.SecretKey)
	fmt.Fprintf(&b, "  validity_window: %q\n", a.ValidityWindow)
	if a.PublisherToken != "" {
		fmt.Fprintf(&b, "  publisher_token: %q\n", a.PublisherToken)
	}
	fmt.Fprintf(&b, "  password_check: %q\n\n", a.PasswordCheck)

	if a.DatabasePath != "" {
		b.WriteString("database:\n")
		fmt.Fprintf(&b, "  path: %q\n\n", a.DatabasePath)
	}

	if a.UpstreamURL != "" {
		b.WriteString("pipeline:\n")
		fmt.Fprintf(&b, "  upstream_url: %q\n\n", a.UpstreamURL)
	}

	b.WriteString("tailscale:\n")
	fmt.Fprintf(&b, "  enabled: %t\n", a.TailscaleEnabled)
	if a.TailscaleEnabled {
		fmt.Fprintf(&b, "  hostname: %q\n", a.TailscaleHostname)
		if a.TailscaleAuthKey != "" {
			fmt.Fprintf(&b, "  auth_key: %q\n", a.TailscaleAuthKey)
		}
		fmt.Fprintf(&b, "  funnel: %t\n", a.TailscaleFunnel)
	}
	b.WriteString("\n")

	b.WriteString("logging:\n")
	fmt.Fprintf(&b, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&b, "  format: %q\n", a.LogFormat)
	return b.String()
}

func defaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "users.db"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "noty-gateway", "users.db")
}

// randomToken returns n random bytes, base64url encoded.
func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
