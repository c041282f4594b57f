// Package gateway orchestrates the noty-gateway server components.
//
// # Overview
//
// New loads the secret material, opens the credential store when passwords
// are checked, picks the pipeline (built-in broker or upstream proxy) and
// puts the auth gate in front of it. Run serves until its context ends.
//
// # Connections
//
// Every accepted connection gets its own auth.ConnState through
// http.Server.ConnContext. Requests on one connection are served one after
// another, so that state needs no locking. HTTP/2 is disabled because it
// would multiplex requests on a single connection.
//
// # HTTP Routes
//
//	/health           ungated liveness check
//	/metrics          ungated Prometheus endpoint (metrics.enabled)
//	/                 everything else, through the auth gate
//
// # Listeners
//
// Plain TCP on server.http_addr, or a Tailscale tsnet node when
// tailscale.enabled is set: HTTP on :80, HTTPS on :443 with tailnet
// certificates, or public Funnel.
package gateway
