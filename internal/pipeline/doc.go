// Package pipeline holds the implementations of auth.Admitter: what happens to
// a request once the gate lets it through.
//
// Broker is a self-contained in-memory pub/sub with three routes:
//
//	POST /login              echo the admitted identity
//	POST /publish/{topic}    fan the body out to current subscribers
//	POST /subscribe/{topic}  stream messages as Server-Sent Events
//
// Proxy forwards to an external messaging server instead, stripping gateway
// credentials and adding X-Noty-User and X-Noty-Role.
package pipeline
