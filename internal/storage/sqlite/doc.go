// Package sqlite implements the passkey storage contracts over a single
// SQLite database file with embedded schema migrations.
package sqlite
