package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/augchan42/passkey-backend-demo/internal/storage"
)

func testChallenge(id string, kind string, issuedAt time.Time) storage.Challenge {
	return storage.Challenge{
		ID:          id,
		Kind:        kind,
		SessionJSON: `{"challenge":"dGVzdC1jaGFsbGVuZ2U"}`,
		CreatedAt:   issuedAt,
		ExpiresAt:   issuedAt.Add(5 * time.Minute),
	}
}

func TestConsumeChallengeSucceedsOnce(t *testing.T) {
	store := openTempStore(t)
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(context.Background(), testChallenge("session-1", storage.ChallengeKindRegistration, issued)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	got, err := store.ConsumeChallenge(context.Background(), "session-1", storage.ChallengeKindRegistration, issued.Add(time.Minute))
	if err != nil {
		t.Fatalf("consume challenge: %v", err)
	}
	if got.SessionJSON == "" {
		t.Fatal("expected session json")
	}
	if !got.CreatedAt.Equal(issued) {
		t.Fatalf("created at = %v, want %v", got.CreatedAt, issued)
	}

	_, err = store.ConsumeChallenge(context.Background(), "session-1", storage.ChallengeKindRegistration, issued.Add(time.Minute))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found on second consume, got %v", err)
	}
}

func TestConsumeChallengeUnknownID(t *testing.T) {
	store := openTempStore(t)

	_, err := store.ConsumeChallenge(context.Background(), "missing", storage.ChallengeKindRegistration, time.Now())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConsumeChallengeKindMismatch(t *testing.T) {
	store := openTempStore(t)
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(context.Background(), testChallenge("session-1", storage.ChallengeKindRegistration, issued)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	_, err := store.ConsumeChallenge(context.Background(), "session-1", storage.ChallengeKindAuthentication, issued.Add(time.Minute))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for kind mismatch, got %v", err)
	}

	// The mismatched consume still burned the challenge.
	_, err = store.ConsumeChallenge(context.Background(), "session-1", storage.ChallengeKindRegistration, issued.Add(time.Minute))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected challenge consumed, got %v", err)
	}
}

func TestConsumeChallengeExpired(t *testing.T) {
	store := openTempStore(t)
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(context.Background(), testChallenge("session-1", storage.ChallengeKindAuthentication, issued)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	_, err := store.ConsumeChallenge(context.Background(), "session-1", storage.ChallengeKindAuthentication, issued.Add(10*time.Minute))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found for expired challenge, got %v", err)
	}
}

func TestPutChallengeRejectsUnknownKind(t *testing.T) {
	store := openTempStore(t)

	err := store.PutChallenge(context.Background(), testChallenge("session-1", "recovery", time.Now()))
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDeleteExpiredChallenges(t *testing.T) {
	store := openTempStore(t)
	issued := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.PutChallenge(context.Background(), testChallenge("stale", storage.ChallengeKindRegistration, issued)); err != nil {
		t.Fatalf("put challenge: %v", err)
	}
	if err := store.PutChallenge(context.Background(), testChallenge("fresh", storage.ChallengeKindRegistration, issued.Add(20*time.Minute))); err != nil {
		t.Fatalf("put challenge: %v", err)
	}

	if err := store.DeleteExpiredChallenges(context.Background(), issued.Add(10*time.Minute)); err != nil {
		t.Fatalf("delete expired: %v", err)
	}

	if _, err := store.ConsumeChallenge(context.Background(), "stale", storage.ChallengeKindRegistration, issued.Add(11*time.Minute)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected stale challenge swept, got %v", err)
	}
	if _, err := store.ConsumeChallenge(context.Background(), "fresh", storage.ChallengeKindRegistration, issued.Add(11*time.Minute)); err != nil {
		t.Fatalf("expected fresh challenge intact, got %v", err)
	}
}
