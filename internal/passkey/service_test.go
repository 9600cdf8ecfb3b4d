package passkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/augchan42/passkey-backend-demo/internal/storage"
	"github.com/augchan42/passkey-backend-demo/internal/user"
)

type fakeStore struct {
	users       map[string]user.User
	credentials map[string]storage.Credential
	challenges  map[string]storage.Challenge

	putChallengeErr error
	consumeErr      error
	createErr       error
	getErr          error
	counterErr      error

	counterUpdates []uint32
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       make(map[string]user.User),
		credentials: make(map[string]storage.Credential),
		challenges:  make(map[string]storage.Challenge),
	}
}

func (s *fakeStore) CreateCredential(_ context.Context, credential storage.Credential) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.credentials[credential.CredentialID]; ok {
		return storage.ErrDuplicateCredential
	}
	s.credentials[credential.CredentialID] = credential
	return nil
}

func (s *fakeStore) GetCredentialByCredentialID(_ context.Context, credentialID string) (storage.Credential, error) {
	if s.getErr != nil {
		return storage.Credential{}, s.getErr
	}
	credential, ok := s.credentials[credentialID]
	if !ok || !credential.Active {
		return storage.Credential{}, storage.ErrNotFound
	}
	return credential, nil
}

func (s *fakeStore) ListCredentialsByUser(_ context.Context, userID string) ([]storage.Credential, error) {
	credentials := make([]storage.Credential, 0)
	for _, credential := range s.credentials {
		if credential.UserID == userID && credential.Active {
			credentials = append(credentials, credential)
		}
	}
	return credentials, nil
}

func (s *fakeStore) UpdateCredentialCounter(_ context.Context, credentialID string, newCounter uint32, usedAt time.Time) error {
	if s.counterErr != nil {
		return s.counterErr
	}
	credential, ok := s.credentials[credentialID]
	if !ok {
		return storage.ErrNotFound
	}
	credential.SignCount = newCounter
	credential.LastUsedAt = &usedAt
	s.credentials[credentialID] = credential
	s.counterUpdates = append(s.counterUpdates, newCounter)
	return nil
}

func (s *fakeStore) DeactivateCredential(_ context.Context, credentialID string) error {
	credential, ok := s.credentials[credentialID]
	if !ok {
		return nil
	}
	credential.Active = false
	s.credentials[credentialID] = credential
	return nil
}

func (s *fakeStore) PutChallenge(_ context.Context, challenge storage.Challenge) error {
	if s.putChallengeErr != nil {
		return s.putChallengeErr
	}
	s.challenges[challenge.ID] = challenge
	return nil
}

func (s *fakeStore) ConsumeChallenge(_ context.Context, id string, kind string, now time.Time) (storage.Challenge, error) {
	if s.consumeErr != nil {
		return storage.Challenge{}, s.consumeErr
	}
	challenge, ok := s.challenges[id]
	if !ok {
		return storage.Challenge{}, storage.ErrNotFound
	}
	delete(s.challenges, id)
	if challenge.Kind != kind || !challenge.ExpiresAt.After(now) {
		return storage.Challenge{}, storage.ErrNotFound
	}
	return challenge, nil
}

func (s *fakeStore) DeleteExpiredChallenges(_ context.Context, now time.Time) error {
	for id, challenge := range s.challenges {
		if !challenge.ExpiresAt.After(now) {
			delete(s.challenges, id)
		}
	}
	return nil
}

func (s *fakeStore) PutUser(_ context.Context, u user.User) error {
	s.users[u.ID] = u
	return nil
}

func (s *fakeStore) GetUser(_ context.Context, userID string) (user.User, error) {
	u, ok := s.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeStore) CreateUserWithCredential(ctx context.Context, u user.User, credential storage.Credential) error {
	if err := s.CreateCredential(ctx, credential); err != nil {
		return err
	}
	s.users[u.ID] = u
	return nil
}

type fakeProvider struct {
	credential           *webauthn.Credential
	beginRegistrationErr error
	beginLoginErr        error
	createErr            error
	validateErr          error

	registeredUser webauthn.User
}

func (f *fakeProvider) BeginRegistration(u webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if f.beginRegistrationErr != nil {
		return nil, nil, f.beginRegistrationErr
	}
	f.registeredUser = u
	return &protocol.CredentialCreation{}, &webauthn.SessionData{Challenge: "challenge", UserID: u.WebAuthnID()}, nil
}

func (f *fakeProvider) CreateCredential(u webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.credential != nil {
		return f.credential, nil
	}
	return &webauthn.Credential{ID: []byte("cred")}, nil
}

func (f *fakeProvider) BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginLoginErr != nil {
		return nil, nil, f.beginLoginErr
	}
	return &protocol.CredentialAssertion{}, &webauthn.SessionData{Challenge: "challenge"}, nil
}

func (f *fakeProvider) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	if f.validateErr != nil {
		return nil, nil, f.validateErr
	}
	resolved, err := handler(response.RawID, response.Response.UserHandle)
	if err != nil {
		return nil, nil, err
	}
	credential := f.credential
	if credential == nil {
		credential = &webauthn.Credential{ID: []byte("cred")}
	}
	return resolved, credential, nil
}

func newTestService(store Store, provider provider) *Service {
	sequence := 0
	return &Service{
		config: Config{
			RPDisplayName: "Passkey Demo",
			RPID:          "localhost",
			RPOrigins:     []string{"http://localhost:3000"},
			ChallengeTTL:  5 * time.Minute,
		},
		provider: provider,
		store:    store,
		clock: func() time.Time {
			return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
		},
		idGenerator: func() (string, error) {
			sequence++
			return fmt.Sprintf("id-%d", sequence), nil
		},
	}
}

func seedChallenge(t *testing.T, store *fakeStore, id string, kind string, payload challengePayload, expiresAt time.Time) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	store.challenges[id] = storage.Challenge{
		ID:          id,
		Kind:        kind,
		SessionJSON: string(data),
		CreatedAt:   expiresAt.Add(-5 * time.Minute),
		ExpiresAt:   expiresAt,
	}
}

func TestNewServiceRequiresStore(t *testing.T) {
	if _, err := NewService(LoadConfigFromEnv(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestBeginRegistrationStoresChallenge(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	svc := newTestService(store, provider)

	creation, sessionID, err := svc.BeginRegistration(context.Background())
	if err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	if creation == nil {
		t.Fatal("expected creation options")
	}
	if sessionID == "" {
		t.Fatal("expected session id")
	}

	challenge, ok := store.challenges[sessionID]
	if !ok {
		t.Fatal("expected stored challenge")
	}
	if challenge.Kind != storage.ChallengeKindRegistration {
		t.Fatalf("kind = %q, want %q", challenge.Kind, storage.ChallengeKindRegistration)
	}
	wantExpiry := svc.clock().UTC().Add(5 * time.Minute)
	if !challenge.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expires at = %v, want %v", challenge.ExpiresAt, wantExpiry)
	}

	var payload challengePayload
	if err := json.Unmarshal([]byte(challenge.SessionJSON), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID == "" || payload.Username == "" {
		t.Fatalf("expected prospective user in payload, got %+v", payload)
	}
	if len(payload.Session.UserID) != user.HandleSize {
		t.Fatalf("handle length = %d, want %d", len(payload.Session.UserID), user.HandleSize)
	}

	// No user row exists until the ceremony finishes.
	if len(store.users) != 0 {
		t.Fatalf("expected no users, got %d", len(store.users))
	}
}

func TestBeginRegistrationExposesHandleNotUserID(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{}
	svc := newTestService(store, provider)

	if _, _, err := svc.BeginRegistration(context.Background()); err != nil {
		t.Fatalf("begin registration: %v", err)
	}
	handle := provider.registeredUser.WebAuthnID()
	if len(handle) != user.HandleSize {
		t.Fatalf("handle length = %d, want %d", len(handle), user.HandleSize)
	}
	if string(handle) == "id-1" {
		t.Fatal("user handle must not be the server user id")
	}
}

func TestFinishRegistrationSuccess(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:        []byte("cred-1"),
			PublicKey: []byte{0xa5, 0x01},
			Transport: []protocol.AuthenticatorTransport{protocol.Internal},
			Flags:     webauthn.CredentialFlags{BackupEligible: true, BackupState: true},
			Authenticator: webauthn.Authenticator{
				SignCount:  1,
				Attachment: protocol.Platform,
			},
		},
	}
	svc := newTestService(store, provider)

	handle := make([]byte, user.HandleSize)
	seedChallenge(t, store, "session-1", storage.ChallengeKindRegistration, challengePayload{
		Session:  webauthn.SessionData{Challenge: "challenge", UserID: handle},
		UserID:   "user-1",
		Username: "sage-harbor-12345",
	}, svc.clock().Add(time.Minute))

	result, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if err != nil {
		t.Fatalf("finish registration: %v", err)
	}
	if !result.Verified {
		t.Fatal("expected verified result")
	}
	if result.UserID != "user-1" || result.Username != "sage-harbor-12345" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CredentialID != encodeCredentialID([]byte("cred-1")) {
		t.Fatalf("credential id = %q", result.CredentialID)
	}

	owner, ok := store.users["user-1"]
	if !ok {
		t.Fatal("expected persisted user")
	}
	if string(owner.Handle) != string(handle) {
		t.Fatal("persisted handle mismatch")
	}

	stored, ok := store.credentials[result.CredentialID]
	if !ok {
		t.Fatal("expected persisted credential")
	}
	if stored.DeviceType != "platform" {
		t.Fatalf("device type = %q, want %q", stored.DeviceType, "platform")
	}
	if !stored.BackupEligible || !stored.BackupState {
		t.Fatal("expected backup flags persisted")
	}
	if len(stored.Transports) != 1 || stored.Transports[0] != "internal" {
		t.Fatalf("transports = %v", stored.Transports)
	}

	if _, ok := store.challenges["session-1"]; ok {
		t.Fatal("expected challenge consumed")
	}
}

func TestFinishRegistrationMissingChallenge(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{})

	_, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected ErrChallengeMissing, got %v", err)
	}
}

func TestFinishRegistrationConsumesChallengeOnce(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})

	seedChallenge(t, store, "session-1", storage.ChallengeKindRegistration, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge", UserID: make([]byte, user.HandleSize)},
		UserID:  "user-1",
	}, svc.clock().Add(time.Minute))

	if _, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{}); err != nil {
		t.Fatalf("first finish: %v", err)
	}
	_, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected ErrChallengeMissing on replay, got %v", err)
	}
}

func TestFinishRegistrationKindMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})

	seedChallenge(t, store, "session-1", storage.ChallengeKindAuthentication, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge"},
	}, svc.clock().Add(time.Minute))

	_, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected ErrChallengeMissing, got %v", err)
	}
}

func TestFinishRegistrationExpiredChallenge(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})

	seedChallenge(t, store, "session-1", storage.ChallengeKindRegistration, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge"},
	}, svc.clock().Add(-time.Second))

	_, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected ErrChallengeMissing, got %v", err)
	}
}

func TestFinishRegistrationVerificationFailureBurnsChallenge(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{createErr: errors.New("bad attestation")})

	seedChallenge(t, store, "session-1", storage.ChallengeKindRegistration, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge", UserID: make([]byte, user.HandleSize)},
		UserID:  "user-1",
	}, svc.clock().Add(time.Minute))

	_, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if _, ok := store.challenges["session-1"]; ok {
		t.Fatal("expected challenge consumed despite failure")
	}
	if len(store.users) != 0 {
		t.Fatal("expected no user persisted")
	}
}

func TestFinishRegistrationDuplicateCredential(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{credential: &webauthn.Credential{ID: []byte("cred-1"), PublicKey: []byte{0x01}}}
	svc := newTestService(store, provider)

	store.credentials[encodeCredentialID([]byte("cred-1"))] = storage.Credential{
		CredentialID: encodeCredentialID([]byte("cred-1")),
		UserID:       "someone-else",
		Active:       true,
	}
	seedChallenge(t, store, "session-1", storage.ChallengeKindRegistration, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge", UserID: make([]byte, user.HandleSize)},
		UserID:  "user-1",
	}, svc.clock().Add(time.Minute))

	_, err := svc.FinishRegistration(context.Background(), "session-1", &protocol.ParsedCredentialCreationData{})
	if !errors.Is(err, ErrDuplicateCredential) {
		t.Fatalf("expected ErrDuplicateCredential, got %v", err)
	}
}

func TestBeginAuthenticationStoresChallenge(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})

	assertion, sessionID, err := svc.BeginAuthentication(context.Background())
	if err != nil {
		t.Fatalf("begin authentication: %v", err)
	}
	if assertion == nil {
		t.Fatal("expected assertion options")
	}

	challenge, ok := store.challenges[sessionID]
	if !ok {
		t.Fatal("expected stored challenge")
	}
	if challenge.Kind != storage.ChallengeKindAuthentication {
		t.Fatalf("kind = %q, want %q", challenge.Kind, storage.ChallengeKindAuthentication)
	}

	var payload challengePayload
	if err := json.Unmarshal([]byte(challenge.SessionJSON), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID != "" {
		t.Fatalf("expected no user in authentication payload, got %q", payload.UserID)
	}
}

func seedAuthenticatedUser(t *testing.T, svc *Service, store *fakeStore, signCount uint32) (handle []byte, credentialID string) {
	t.Helper()
	handle = make([]byte, user.HandleSize)
	for i := range handle {
		handle[i] = byte(i + 1)
	}
	credentialID = encodeCredentialID([]byte("cred-1"))
	store.users["user-1"] = user.User{ID: "user-1", Username: "sage-harbor-12345", Handle: handle}
	store.credentials[credentialID] = storage.Credential{
		ID:           "row-1",
		UserID:       "user-1",
		CredentialID: credentialID,
		PublicKey:    []byte{0xa5, 0x01},
		SignCount:    signCount,
		Active:       true,
	}
	seedChallenge(t, store, "session-1", storage.ChallengeKindAuthentication, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge"},
	}, svc.clock().Add(time.Minute))
	return handle, credentialID
}

func assertionResponse(rawID []byte, userHandle []byte) *protocol.ParsedCredentialAssertionData {
	response := &protocol.ParsedCredentialAssertionData{}
	response.RawID = protocol.URLEncodedBase64(rawID)
	response.Response.UserHandle = userHandle
	return response
}

func TestFinishAuthenticationSuccess(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("cred-1"),
			Authenticator: webauthn.Authenticator{SignCount: 5},
		},
	}
	svc := newTestService(store, provider)
	handle, credentialID := seedAuthenticatedUser(t, svc, store, 4)

	result, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if err != nil {
		t.Fatalf("finish authentication: %v", err)
	}
	if !result.Verified || result.UserID != "user-1" || result.Username != "sage-harbor-12345" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.CredentialID != credentialID {
		t.Fatalf("credential id = %q, want %q", result.CredentialID, credentialID)
	}

	if len(store.counterUpdates) != 1 || store.counterUpdates[0] != 5 {
		t.Fatalf("counter updates = %v, want [5]", store.counterUpdates)
	}
	if stored := store.credentials[credentialID]; stored.LastUsedAt == nil {
		t.Fatal("expected last used timestamp")
	}
	if _, ok := store.challenges["session-1"]; ok {
		t.Fatal("expected challenge consumed")
	}
}

func TestFinishAuthenticationMissingChallenge(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{})

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), nil))
	if !errors.Is(err, ErrChallengeMissing) {
		t.Fatalf("expected ErrChallengeMissing, got %v", err)
	}
}

func TestFinishAuthenticationUnknownCredential(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})

	seedChallenge(t, store, "session-1", storage.ChallengeKindAuthentication, challengePayload{
		Session: webauthn.SessionData{Challenge: "challenge"},
	}, svc.clock().Add(time.Minute))

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("unknown"), nil))
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestFinishAuthenticationDeactivatedCredential(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})
	handle, credentialID := seedAuthenticatedUser(t, svc, store, 0)

	if err := store.DeactivateCredential(context.Background(), credentialID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestFinishAuthenticationVerificationFailure(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{validateErr: errors.New("bad signature")})
	handle, _ := seedAuthenticatedUser(t, svc, store, 0)

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
}

func TestFinishAuthenticationCloneWarning(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("cred-1"),
			Authenticator: webauthn.Authenticator{SignCount: 2, CloneWarning: true},
		},
	}
	svc := newTestService(store, provider)
	handle, _ := seedAuthenticatedUser(t, svc, store, 10)

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}
	if len(store.counterUpdates) != 0 {
		t.Fatalf("expected no counter update, got %v", store.counterUpdates)
	}
}

func TestFinishAuthenticationZeroCounter(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("cred-1"),
			Authenticator: webauthn.Authenticator{SignCount: 0},
		},
	}
	svc := newTestService(store, provider)
	handle, credentialID := seedAuthenticatedUser(t, svc, store, 0)

	result, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if err != nil {
		t.Fatalf("finish authentication: %v", err)
	}
	if !result.Verified {
		t.Fatalf("expected verified result, got %+v", result)
	}
	if len(store.counterUpdates) != 1 || store.counterUpdates[0] != 0 {
		t.Fatalf("counter updates = %v, want [0]", store.counterUpdates)
	}
	if stored := store.credentials[credentialID]; stored.SignCount != 0 {
		t.Fatalf("sign count = %d, want 0", stored.SignCount)
	}
}

func TestFinishAuthenticationCounterRegressionIsReplay(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("cred-1"),
			Authenticator: webauthn.Authenticator{SignCount: 5},
		},
	}
	svc := newTestService(store, provider)
	handle, _ := seedAuthenticatedUser(t, svc, store, 4)
	store.counterErr = fmt.Errorf("stored 6, new 5: %w", storage.ErrCounterRegression)

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}
	if errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("regression must not look retryable, got %v", err)
	}
}

func TestFinishAuthenticationStorageFailure(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{
		credential: &webauthn.Credential{
			ID:            []byte("cred-1"),
			Authenticator: webauthn.Authenticator{SignCount: 5},
		},
	}
	svc := newTestService(store, provider)
	handle, _ := seedAuthenticatedUser(t, svc, store, 4)
	store.counterErr = errors.New("disk gone")

	_, err := svc.FinishAuthentication(context.Background(), "session-1", assertionResponse([]byte("cred-1"), handle))
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestSweepExpiredChallenges(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{})

	seedChallenge(t, store, "stale", storage.ChallengeKindRegistration, challengePayload{}, svc.clock().Add(-time.Minute))
	seedChallenge(t, store, "fresh", storage.ChallengeKindRegistration, challengePayload{}, svc.clock().Add(time.Minute))

	if err := svc.SweepExpiredChallenges(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, ok := store.challenges["stale"]; ok {
		t.Fatal("expected stale challenge removed")
	}
	if _, ok := store.challenges["fresh"]; !ok {
		t.Fatal("expected fresh challenge kept")
	}
}
