package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/augchan42/passkey-backend-demo/internal/platform/id"
	"github.com/augchan42/passkey-backend-demo/internal/storage"
	"github.com/augchan42/passkey-backend-demo/internal/user"
)

// Store is the persistence surface the ceremony service needs.
type Store interface {
	storage.CredentialStore
	storage.ChallengeStore
	storage.UserStore
	storage.UserCredentialStore
}

type provider interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

// Result reports a completed ceremony.
type Result struct {
	Verified     bool
	UserID       string
	Username     string
	CredentialID string
}

// challengePayload is what a challenge row carries between begin and finish.
// The WebAuthn session holds the challenge bytes and the user handle; the
// prospective user identity only exists for registration ceremonies.
type challengePayload struct {
	Session  webauthn.SessionData `json:"session"`
	UserID   string               `json:"user_id,omitempty"`
	Username string               `json:"username,omitempty"`
}

// Service runs WebAuthn ceremonies against an explicit store handle.
type Service struct {
	config      Config
	provider    provider
	store       Store
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewService builds a ceremony service for the given relying party
// configuration and store.
func NewService(cfg Config, store Store) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName:         cfg.RPDisplayName,
		RPID:                  cfg.RPID,
		RPOrigins:             cfg.RPOrigins,
		AttestationPreference: protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:        protocol.ResidentKeyRequirementRequired,
			RequireResidentKey: protocol.ResidentKeyRequired(),
			UserVerification:   protocol.VerificationPreferred,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Service{
		config:      cfg,
		provider:    web,
		store:       store,
		clock:       time.Now,
		idGenerator: id.NewID,
	}, nil
}

// BeginRegistration creates a prospective user, issues creation options, and
// stores a registration challenge keyed by the returned session id. Nothing is
// persisted for the user until the ceremony finishes.
func (s *Service) BeginRegistration(ctx context.Context) (*protocol.CredentialCreation, string, error) {
	if s == nil || s.provider == nil || s.store == nil {
		return nil, "", fmt.Errorf("passkey service is not configured")
	}

	prospect, err := user.New(s.clock, s.idGenerator)
	if err != nil {
		return nil, "", fmt.Errorf("create prospective user: %w", err)
	}

	ceremony := &ceremonyUser{name: prospect.Username, handle: prospect.Handle}
	creation, session, err := s.provider.BeginRegistration(ceremony,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithConveyancePreference(protocol.PreferNoAttestation),
	)
	if err != nil {
		return nil, "", fmt.Errorf("begin registration: %w", err)
	}

	sessionID, err := s.storeChallenge(ctx, storage.ChallengeKindRegistration, challengePayload{
		Session:  *session,
		UserID:   prospect.ID,
		Username: prospect.Username,
	})
	if err != nil {
		return nil, "", err
	}
	return creation, sessionID, nil
}

// FinishRegistration consumes the challenge, verifies the attestation
// response, and persists the user together with the first credential. The
// challenge burns whether or not verification succeeds.
func (s *Service) FinishRegistration(ctx context.Context, sessionID string, response *protocol.ParsedCredentialCreationData) (Result, error) {
	if s == nil || s.provider == nil || s.store == nil {
		return Result{}, fmt.Errorf("passkey service is not configured")
	}
	if response == nil {
		return Result{}, fmt.Errorf("credential response is required")
	}

	payload, err := s.consumeChallenge(ctx, "finish registration", sessionID, storage.ChallengeKindRegistration)
	if err != nil {
		return Result{}, err
	}

	ceremony := &ceremonyUser{name: payload.Username, handle: payload.Session.UserID}
	credential, err := s.provider.CreateCredential(ceremony, payload.Session, response)
	if err != nil {
		return Result{}, wrapError("finish registration", ErrVerificationFailed, err)
	}

	now := s.clock().UTC()
	rowID, err := s.idGenerator()
	if err != nil {
		return Result{}, fmt.Errorf("create credential id: %w", err)
	}
	record := storage.Credential{
		ID:             rowID,
		UserID:         payload.UserID,
		CredentialID:   encodeCredentialID(credential.ID),
		PublicKey:      credential.PublicKey,
		SignCount:      credential.Authenticator.SignCount,
		DeviceType:     deviceType(credential),
		Transports:     transportStrings(credential.Transport),
		BackupEligible: credential.Flags.BackupEligible,
		BackupState:    credential.Flags.BackupState,
		CreatedAt:      now,
		Active:         true,
	}
	owner := user.User{
		ID:        payload.UserID,
		Username:  payload.Username,
		Handle:    payload.Session.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUserWithCredential(ctx, owner, record); err != nil {
		if errors.Is(err, storage.ErrDuplicateCredential) {
			return Result{}, wrapError("finish registration", ErrDuplicateCredential, err)
		}
		return Result{}, wrapError("finish registration", ErrStorageUnavailable, err)
	}

	return Result{
		Verified:     true,
		UserID:       payload.UserID,
		Username:     payload.Username,
		CredentialID: record.CredentialID,
	}, nil
}

// BeginAuthentication issues discoverable assertion options and stores an
// authentication challenge keyed by the returned session id. No username is
// taken; the authenticator picks the credential.
func (s *Service) BeginAuthentication(ctx context.Context) (*protocol.CredentialAssertion, string, error) {
	if s == nil || s.provider == nil || s.store == nil {
		return nil, "", fmt.Errorf("passkey service is not configured")
	}

	assertion, session, err := s.provider.BeginDiscoverableLogin(
		webauthn.WithUserVerification(protocol.VerificationPreferred),
	)
	if err != nil {
		return nil, "", fmt.Errorf("begin authentication: %w", err)
	}

	sessionID, err := s.storeChallenge(ctx, storage.ChallengeKindAuthentication, challengePayload{
		Session: *session,
	})
	if err != nil {
		return nil, "", err
	}
	return assertion, sessionID, nil
}

// FinishAuthentication consumes the challenge, verifies the assertion, and
// advances the signature counter. A clone warning from the counter check
// aborts before any state is written.
func (s *Service) FinishAuthentication(ctx context.Context, sessionID string, response *protocol.ParsedCredentialAssertionData) (Result, error) {
	if s == nil || s.provider == nil || s.store == nil {
		return Result{}, fmt.Errorf("passkey service is not configured")
	}
	if response == nil {
		return Result{}, fmt.Errorf("credential response is required")
	}

	payload, err := s.consumeChallenge(ctx, "finish authentication", sessionID, storage.ChallengeKindAuthentication)
	if err != nil {
		return Result{}, err
	}

	credentialID := encodeCredentialID(response.RawID)
	stored, err := s.store.GetCredentialByCredentialID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, wrapError("finish authentication", ErrCredentialNotFound, err)
		}
		return Result{}, wrapError("finish authentication", ErrStorageUnavailable, err)
	}
	owner, err := s.store.GetUser(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, wrapError("finish authentication", ErrCredentialNotFound, err)
		}
		return Result{}, wrapError("finish authentication", ErrStorageUnavailable, err)
	}

	_, validated, err := s.provider.ValidatePasskeyLogin(s.discoverableUserHandler(ctx), payload.Session, response)
	if err != nil {
		return Result{}, wrapError("finish authentication", ErrVerificationFailed, err)
	}
	if validated.Authenticator.CloneWarning {
		return Result{}, wrapError("finish authentication", ErrReplayDetected, nil)
	}

	if err := s.store.UpdateCredentialCounter(ctx, credentialID, validated.Authenticator.SignCount, s.clock().UTC()); err != nil {
		// A concurrent authentication can advance the counter between the
		// clone check and this write; the regression is still a replay.
		if errors.Is(err, storage.ErrCounterRegression) {
			return Result{}, wrapError("finish authentication", ErrReplayDetected, err)
		}
		return Result{}, wrapError("finish authentication", ErrStorageUnavailable, err)
	}

	return Result{
		Verified:     true,
		UserID:       stored.UserID,
		Username:     owner.Username,
		CredentialID: credentialID,
	}, nil
}

// SweepExpiredChallenges removes challenges whose TTL has passed.
func (s *Service) SweepExpiredChallenges(ctx context.Context) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("passkey service is not configured")
	}
	if err := s.store.DeleteExpiredChallenges(ctx, s.clock().UTC()); err != nil {
		return wrapError("sweep challenges", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Service) storeChallenge(ctx context.Context, kind string, payload challengePayload) (string, error) {
	sessionID, err := s.idGenerator()
	if err != nil {
		return "", fmt.Errorf("create session id: %w", err)
	}
	sessionJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode challenge payload: %w", err)
	}
	now := s.clock().UTC()
	err = s.store.PutChallenge(ctx, storage.Challenge{
		ID:          sessionID,
		Kind:        kind,
		SessionJSON: string(sessionJSON),
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.ChallengeTTL),
	})
	if err != nil {
		return "", wrapError("store challenge", ErrStorageUnavailable, err)
	}
	return sessionID, nil
}

func (s *Service) consumeChallenge(ctx context.Context, op string, sessionID string, kind string) (challengePayload, error) {
	if strings.TrimSpace(sessionID) == "" {
		return challengePayload{}, wrapError(op, ErrChallengeMissing, nil)
	}
	record, err := s.store.ConsumeChallenge(ctx, sessionID, kind, s.clock().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return challengePayload{}, wrapError(op, ErrChallengeMissing, err)
		}
		return challengePayload{}, wrapError(op, ErrStorageUnavailable, err)
	}
	var payload challengePayload
	if err := json.Unmarshal([]byte(record.SessionJSON), &payload); err != nil {
		return challengePayload{}, fmt.Errorf("%s: decode challenge payload: %w", op, err)
	}
	return payload, nil
}

// discoverableUserHandler resolves the asserted credential to its owner so the
// library can check the user handle and verify the signature.
func (s *Service) discoverableUserHandler(ctx context.Context) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) == 0 {
			return nil, fmt.Errorf("user handle is required")
		}
		stored, err := s.store.GetCredentialByCredentialID(ctx, encodeCredentialID(rawID))
		if err != nil {
			return nil, err
		}
		owner, err := s.store.GetUser(ctx, stored.UserID)
		if err != nil {
			return nil, err
		}
		records, err := s.store.ListCredentialsByUser(ctx, stored.UserID)
		if err != nil {
			return nil, err
		}
		credentials := make([]webauthn.Credential, 0, len(records))
		for _, record := range records {
			credential, err := decodeStoredCredential(record)
			if err != nil {
				return nil, err
			}
			credentials = append(credentials, credential)
		}
		return &ceremonyUser{name: owner.Username, handle: owner.Handle, credentials: credentials}, nil
	}
}

func decodeStoredCredential(record storage.Credential) (webauthn.Credential, error) {
	rawID, err := decodeCredentialID(record.CredentialID)
	if err != nil {
		return webauthn.Credential{}, fmt.Errorf("decode credential id %s: %w", record.CredentialID, err)
	}
	transports := make([]protocol.AuthenticatorTransport, 0, len(record.Transports))
	for _, transport := range record.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(transport))
	}
	return webauthn.Credential{
		ID:        rawID,
		PublicKey: record.PublicKey,
		Transport: transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: record.BackupEligible,
			BackupState:    record.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			SignCount: record.SignCount,
		},
	}, nil
}

func deviceType(credential *webauthn.Credential) string {
	if credential.Authenticator.Attachment != "" {
		return string(credential.Authenticator.Attachment)
	}
	return "unknown"
}

func transportStrings(transports []protocol.AuthenticatorTransport) []string {
	if len(transports) == 0 {
		return nil
	}
	values := make([]string, 0, len(transports))
	for _, transport := range transports {
		values = append(values, string(transport))
	}
	return values
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCredentialID(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(encoded)
}
