// ABOUTME: Tailscale tsnet listener setup for serving the gateway on a tailnet
// ABOUTME: Plain HTTP on :80, HTTPS with tailnet certs on :443, or public Funnel

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/noty-gateway/internal/config"
)

// tailnetMode is how the gateway is exposed on the tailnet.
type tailnetMode int

const (
	tailnetHTTP   tailnetMode = iota // :80, tailnet only
	tailnetHTTPS                     // :443 with tailnet certificates
	tailnetFunnel                    // :443, public through Funnel
)

func (m tailnetMode) String() string {
	switch m {
	case tailnetHTTPS:
		return "https"
	case tailnetFunnel:
		return "funnel"
	default:
		return "http"
	}
}

// port is the tailnet port the mode listens on.
func (m tailnetMode) port() string {
	if m == tailnetHTTP {
		return ":80"
	}
	return ":443"
}

// tailnetModeFor picks the exposure. Funnel wins over HTTPS.
func tailnetModeFor(cfg config.TailscaleConfig) tailnetMode {
	switch {
	case cfg.Funnel:
		return tailnetFunnel
	case cfg.HTTPS:
		return tailnetHTTPS
	default:
		return tailnetHTTP
	}
}

// resolveTailscaleStateDir falls back to ~/.local/share/noty-gateway/tailscale.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no home directory for tailscale state (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "noty-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey prefers the config value over TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if env := os.Getenv("TS_AUTHKEY"); env != "" {
		return env, nil
	}
	return "", errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
}

// newTailnetNode builds the tsnet node for cfg without starting it.
func newTailnetNode(cfg config.TailscaleConfig) (*tsnet.Server, error) {
	stateDir, err := resolveTailscaleStateDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	authKey, err := resolveTailscaleAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, err
	}
	return &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       stateDir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}, nil
}

// tailnetTLSConfig pins ALPN to HTTP/1.1: connection auth state needs one
// request at a time per connection.
func tailnetTLSConfig(getCert func(*tls.ClientHelloInfo) (*tls.Certificate, error)) *tls.Config {
	return &tls.Config{
		GetCertificate: getCert,
		MinVersion:     tls.VersionTLS12,
		NextProtos:     []string{"http/1.1"},
	}
}

// tailnetAddrs extracts the first tailnet IP and the MagicDNS name.
func tailnetAddrs(status *ipnstate.Status) (ip, dnsName string) {
	if status == nil {
		return "", ""
	}
	if len(status.TailscaleIPs) > 0 {
		ip = status.TailscaleIPs[0].String()
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	return ip, dnsName
}

// setupTailscaleListener starts a tsnet node and returns its HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	node, err := newTailnetNode(tsCfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(node.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	g.tsnetServer = node

	mode := tailnetModeFor(tsCfg)
	g.logger.Info("starting tailscale node",
		"hostname", tsCfg.Hostname,
		"state_dir", node.Dir,
		"ephemeral", tsCfg.Ephemeral,
		"mode", mode.String(),
	)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	ip, dnsName := tailnetAddrs(status)
	if ip == "" {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	g.logger.Info("tailscale node ready", "tailscale_ip", ip, "dns_name", dnsName)

	ln, err := g.listenTailnet(node, mode)
	if err != nil {
		_ = node.Close()
		return nil, err
	}
	return ln, nil
}

func (g *Gateway) listenTailnet(node *tsnet.Server, mode tailnetMode) (net.Listener, error) {
	switch mode {
	case tailnetFunnel:
		ln, err := node.ListenFunnel("tcp", mode.port())
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel: %w", err)
		}
		return ln, nil
	case tailnetHTTPS:
		ln, err := node.Listen("tcp", mode.port())
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := node.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, tailnetTLSConfig(lc.GetCertificate)), nil
	default:
		ln, err := node.Listen("tcp", mode.port())
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}
