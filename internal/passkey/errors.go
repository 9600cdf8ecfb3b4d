package passkey

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony outcomes. Callers map these to transport
// status codes; everything else is an internal failure.
var (
	// ErrChallengeMissing is returned when a challenge id is unknown, already
	// consumed, expired, or bound to the other ceremony kind.
	ErrChallengeMissing = errors.New("challenge missing or expired")

	// ErrVerificationFailed is returned when the authenticator response does
	// not verify against the stored challenge.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrDuplicateCredential is returned when the credential id is already
	// registered.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrCredentialNotFound is returned when an assertion references a
	// credential that is unknown or deactivated.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrReplayDetected is returned when the signature counter indicates a
	// cloned authenticator.
	ErrReplayDetected = errors.New("signature counter replay detected")

	// ErrStorageUnavailable is returned when the backing store fails.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Error wraps a ceremony failure with the operation that produced it and the
// sentinel it maps to.
type Error struct {
	Op    string
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func wrapError(op string, kind error, cause error) error {
	return &Error{Op: op, Kind: kind, Cause: cause}
}
