// Package user provides user identity provisioning for passkey enrollments.
package user

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/augchan42/passkey-backend-demo/internal/platform/id"
)

// HandleSize is the byte length of a WebAuthn user handle.
const HandleSize = 16

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.\-]{3,32}$`)

// User represents an authenticated identity record.
//
// Handle is the random WebAuthn user handle bound into the authenticator at
// registration. It is distinct from ID, the server-side record key.
type User struct {
	ID        string
	Username  string
	Handle    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateUsername enforces canonical username constraints.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return fmt.Errorf("username must be 3-32 lowercase alphanumeric, dot, dash, or underscore characters")
	}
	return nil
}

// New provisions a user identity with a fresh id, random handle, and a
// generated placeholder username. The record is not persisted; registration
// writes it only after the credential verifies.
func New(now func() time.Time, idGenerator func() (string, error)) (User, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	userID, err := idGenerator()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	handle := make([]byte, HandleSize)
	if _, err := rand.Read(handle); err != nil {
		return User{}, fmt.Errorf("generate user handle: %w", err)
	}

	username, err := GenerateUsername()
	if err != nil {
		return User{}, fmt.Errorf("generate username: %w", err)
	}

	createdAt := now().UTC()
	return User{
		ID:        userID,
		Username:  username,
		Handle:    handle,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}

var firstNames = []string{
	"amber", "birch", "cedar", "delta", "ember", "fjord", "garnet", "hazel",
	"indigo", "juniper", "koa", "lumen", "maple", "nimbus", "onyx", "pine",
	"quartz", "rowan", "sage", "tundra", "umber", "vela", "willow", "zephyr",
}

var lastNames = []string{
	"archer", "brooks", "cove", "dale", "evergreen", "fields", "grove",
	"harbor", "isles", "knoll", "lagoon", "meadow", "north", "orchard",
	"prairie", "quarry", "ridge", "summit", "thicket", "vale", "wharf",
	"yonder",
}

// GenerateUsername returns a placeholder username of the form
// <first>-<last>-<5 digits>, lowercase, matching the username constraints.
func GenerateUsername() (string, error) {
	first, err := pick(firstNames)
	if err != nil {
		return "", err
	}
	last, err := pick(lastNames)
	if err != nil {
		return "", err
	}
	// 5-digit suffix keeps collisions unlikely without needing a lookup.
	n, err := rand.Int(rand.Reader, big.NewInt(90000))
	if err != nil {
		return "", fmt.Errorf("generate username suffix: %w", err)
	}
	name := strings.ToLower(fmt.Sprintf("%s-%s-%d", first, last, n.Int64()+10000))
	if err := ValidateUsername(name); err != nil {
		return "", err
	}
	return name, nil
}

func pick(values []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(values))))
	if err != nil {
		return "", fmt.Errorf("pick name: %w", err)
	}
	return values[n.Int64()], nil
}
