package storage

import (
	"context"
	"errors"
	"time"

	"github.com/augchan42/passkey-backend-demo/internal/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateCredential indicates a credential id is already registered,
// active or not. Registration must never overwrite an existing credential.
var ErrDuplicateCredential = errors.New("credential already registered")

// ErrCounterRegression indicates a counter update would move the signature
// counter backward. The stored counter only ever regresses when a cloned
// authenticator raced a legitimate one, so callers treat this as replay.
var ErrCounterRegression = errors.New("signature counter regression")

// ChallengeKindRegistration and ChallengeKindAuthentication tag which ceremony
// a stored challenge belongs to. A challenge is only valid for the ceremony
// kind it was issued under.
const (
	ChallengeKindRegistration   = "registration"
	ChallengeKindAuthentication = "authentication"
)

// Credential stores one WebAuthn credential enrollment for a user.
//
// CredentialID is the base64 raw-url encoding of the authenticator-supplied
// credential id and is unique across active and inactive rows. Deactivated
// credentials stay on disk but are invisible to lookups.
type Credential struct {
	ID           string
	UserID       string
	CredentialID string
	PublicKey    []byte
	SignCount    uint32
	DeviceType   string
	Transports   []string
	// BackupEligible and BackupState mirror the authenticator flags captured
	// at registration; assertion validation checks them for consistency.
	BackupEligible bool
	BackupState    bool
	CreatedAt      time.Time
	LastUsedAt     *time.Time
	Active         bool
}

// Challenge stores the server-side state of one in-flight ceremony, keyed by
// the session id handed to the client. SessionJSON carries the serialized
// webauthn session data, challenge value included.
type Challenge struct {
	ID          string
	Kind        string
	SessionJSON string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// CredentialStore persists WebAuthn credential records.
type CredentialStore interface {
	// CreateCredential inserts a new credential. It fails with
	// ErrDuplicateCredential when the credential id is already present,
	// whether the existing row is active or not.
	CreateCredential(ctx context.Context, credential Credential) error
	// GetCredentialByCredentialID returns the active credential with the
	// given credential id, or ErrNotFound.
	GetCredentialByCredentialID(ctx context.Context, credentialID string) (Credential, error)
	// ListCredentialsByUser returns the active credentials owned by a user.
	ListCredentialsByUser(ctx context.Context, userID string) ([]Credential, error)
	// UpdateCredentialCounter sets the signature counter and refreshes
	// last_used_at in one transaction. The counter never moves backward.
	UpdateCredentialCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error
	// DeactivateCredential marks a credential inactive. Idempotent.
	DeactivateCredential(ctx context.Context, credentialID string) error
}

// ChallengeStore persists single-use ceremony challenges.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, challenge Challenge) error
	// ConsumeChallenge atomically retrieves and deletes the challenge with
	// the given id and kind. Missing, kind-mismatched, or expired challenges
	// all surface as ErrNotFound; expired rows are deleted on the way out.
	ConsumeChallenge(ctx context.Context, id string, kind string, now time.Time) (Challenge, error)
	// DeleteExpiredChallenges sweeps challenges whose TTL has passed.
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

// UserStore persists user identity records.
type UserStore interface {
	PutUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, userID string) (user.User, error)
}

// UserCredentialStore creates a user and its first credential atomically, so a
// failed registration never leaves a user row without a credential or a
// credential pointing at a missing user.
type UserCredentialStore interface {
	CreateUserWithCredential(ctx context.Context, u user.User, credential Credential) error
}
