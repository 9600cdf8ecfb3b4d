// Package id generates compact random identifiers.
//
// Identifiers are UUIDv4 bytes rendered as lowercase unpadded base32, which
// keeps them URL- and filename-safe while staying sortable-free and opaque.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a 26-character lowercase identifier backed by a random UUID.
func NewID() (string, error) {
	value, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(value[:])), nil
}
