// Package passkey orchestrates WebAuthn registration and authentication
// ceremonies. It owns challenge lifecycle (issue, single-use consume, TTL)
// and credential persistence, but leaves transport concerns to callers.
package passkey
