// Package session mints and verifies stateless signed session identifiers.
//
// A session identifier is the base64 encoded HMAC of the canonical string
//
//	<userId>&<sessionStart>
//
// where sessionStart is a unix timestamp in seconds. Nothing is stored on the
// server: a presented identifier is valid exactly when recomputing it from the
// presented user id and start time yields the same bytes.
//
// # Secret Material
//
// The signing key lives in a memguard enclave for the lifetime of the process
// and is decrypted only while a single MAC is being computed:
//
//	secret, err := session.NewSecret("HmacSHA256", key)
//	codec := session.NewCodec(secret)
//	id, err := codec.Mint("ahanda", time.Now().Unix())
//	ok := codec.Verify("ahanda", start, id)
//
// A codec without secret material fails closed: Mint returns ErrNoSecret and
// Verify reports false.
package session
