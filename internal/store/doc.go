// Package store persists login credentials for noty-gateway.
//
// Only users and their bcrypt password hashes are stored. Sessions are signed
// and verified by recomputation in package session and never touch the
// database.
//
// SQLiteStore uses modernc.org/sqlite (pure Go, no cgo). MockStore is an
// in-memory implementation with identical error semantics for tests.
//
//	s, err := store.NewSQLiteStore("/var/lib/noty/credentials.db")
//	err = s.CreateUser(ctx, &store.User{ID: "ahanda", PasswordHash: hash})
//	u, err := s.GetUser(ctx, "ahanda") // ErrUserNotFound if missing
package store
