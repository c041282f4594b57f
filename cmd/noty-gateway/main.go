// ABOUTME: Entry point for noty-gateway, the session authentication gateway
// ABOUTME: Dispatches serve, init, health, and user management commands

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/fatih/color"

	"github.com/2389/noty-gateway/internal/config"
	"github.com/2389/noty-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                 _
  _ __   ___ | |_ _   _
 | '_ \ / _ \| __| | | |
 | | | | (_) | |_| |_| |
 |_| |_|\___/ \__|\__, |   gateway
                  |___/
`

func usage() {
	fmt.Println("Usage: noty-gateway <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                              Start the gateway server")
	fmt.Println("  init                               Create a new config file interactively")
	fmt.Println("  health                             Check gateway health")
	fmt.Println("  adduser --user ID [--password PW]  Add or update a login user")
	fmt.Println("  deluser --user ID                  Remove a login user")
	fmt.Println("  users                              List login users")
	fmt.Println("  version                            Print version")
}

func main() {
	os.Exit(run())
}

func run() int {
	// Wipe guarded key material on the way out.
	defer memguard.Purge()

	if len(os.Args) < 2 {
		usage()
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "adduser":
		err = runAddUser(ctx, os.Args[2:])
	case "deluser":
		err = runDelUser(ctx, os.Args[2:])
	case "users":
		err = runListUsers(ctx)
	case "version", "--version", "-v":
		fmt.Println(version)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func loadConfig() (*config.Config, string, error) {
	configPath := config.DefaultPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	fmt.Printf("Session:   %s, window %s\n", cfg.Auth.MACAlgorithm, cfg.Auth.ValidityWindow)
	green.Print("    ▶ ")
	if cfg.Pipeline.UpstreamURL != "" {
		fmt.Printf("Pipeline:  proxy → %s\n", cfg.Pipeline.UpstreamURL)
	} else {
		fmt.Printf("Pipeline:  built-in broker\n")
	}
	if cfg.Auth.PublisherToken == "" {
		yellow.Println("    ! publisher_token not set, publisher access disabled")
	}
	if cfg.Auth.PasswordCheck == "none" {
		yellow.Println("    ! password_check is \"none\", any password is accepted")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		} else if cfg.Tailscale.HTTPS {
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting noty-gateway",
		"version", version,
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := healthURL(cfg)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// healthURL points at the local listener, or the tailnet name when serving
// over Tailscale.
func healthURL(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		scheme := "http"
		if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
			scheme = "https"
		}
		return fmt.Sprintf("%s://%s/health", scheme, cfg.Tailscale.Hostname)
	}
	return fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
}
