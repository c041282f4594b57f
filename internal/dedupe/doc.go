// Package dedupe tracks recently published message ids so a publisher that
// retries a request after a dropped response does not deliver twice.
package dedupe
