// Package auth gates every client connection in front of the messaging
// pipeline.
//
// # Clients
//
// Two kinds of client reach the gateway:
//
//   - Publishers present a shared secret in the auth-token header. A match
//     authenticates the connection without touching sessions.
//
//   - Subscribers sign in with POST /login and receive three cookies:
//     userId, sessStart and sessId. sessId is a keyed MAC over
//     "userId&sessStart", so the server keeps no session table. Any later
//     connection presenting the three cookies is admitted while the session
//     is inside the validity window.
//
// # Connection State
//
// Authentication is remembered per connection, not per request. The HTTP
// server attaches a ConnState to each accepted connection through
// WithConnState; once the gate admits one request on that connection, later
// requests skip credential checks entirely. DELETE /logout resets the state
// and closes the connection.
//
// # Decision Order
//
// The Gate evaluates, first match wins:
//
//  1. auth-token header matches: mark the connection publisher.
//  2. DELETE /logout: reset, answer 200 and close.
//  3. Any verb other than POST: 405.
//  4. Connection already authenticated: admit.
//  5. Validate the session cookies, issuing them first on /login.
//
// Admitted requests carry an Identity in their context for the pipeline.
package auth
