package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/augchan42/passkey-backend-demo/internal/storage"
)

// PutChallenge stores an in-flight ceremony challenge.
func (s *Store) PutChallenge(ctx context.Context, challenge storage.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(challenge.ID) == "" {
		return fmt.Errorf("challenge id is required")
	}
	if challenge.Kind != storage.ChallengeKindRegistration && challenge.Kind != storage.ChallengeKindAuthentication {
		return fmt.Errorf("challenge kind %q is invalid", challenge.Kind)
	}
	if strings.TrimSpace(challenge.SessionJSON) == "" {
		return fmt.Errorf("session json is required")
	}
	if challenge.ExpiresAt.IsZero() {
		return fmt.Errorf("expiry is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO passkey_challenges (id, kind, session_json, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)`,
		challenge.ID,
		challenge.Kind,
		challenge.SessionJSON,
		toMillis(challenge.CreatedAt),
		toMillis(challenge.ExpiresAt),
	); err != nil {
		return fmt.Errorf("put challenge: %w", err)
	}
	return nil
}

// ConsumeChallenge retrieves and deletes a challenge in one transaction. The
// delete's row count decides the winner when two completions race: exactly one
// caller observes the row, every other caller gets ErrNotFound. Expired rows
// are deleted on the way out and reported as missing.
func (s *Store) ConsumeChallenge(ctx context.Context, id string, kind string, now time.Time) (storage.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return storage.Challenge{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Challenge{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return storage.Challenge{}, fmt.Errorf("challenge id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var challenge storage.Challenge
	var createdAt int64
	var expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT id, kind, session_json, created_at, expires_at FROM passkey_challenges WHERE id = ?`,
		id,
	).Scan(&challenge.ID, &challenge.Kind, &challenge.SessionJSON, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Challenge{}, storage.ErrNotFound
		}
		return storage.Challenge{}, fmt.Errorf("get challenge: %w", err)
	}
	challenge.CreatedAt = fromMillis(createdAt)
	challenge.ExpiresAt = fromMillis(expiresAt)

	result, err := tx.ExecContext(ctx, `DELETE FROM passkey_challenges WHERE id = ?`, id)
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("delete challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Challenge{}, fmt.Errorf("delete challenge: %w", err)
	}
	if affected != 1 {
		return storage.Challenge{}, storage.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return storage.Challenge{}, fmt.Errorf("commit challenge consume: %w", err)
	}

	// The row is gone either way; a stale or mismatched challenge cannot be
	// retried with a second consume.
	if challenge.Kind != kind {
		return storage.Challenge{}, storage.ErrNotFound
	}
	if !challenge.ExpiresAt.After(now.UTC()) {
		return storage.Challenge{}, storage.ErrNotFound
	}
	return challenge, nil
}

// DeleteExpiredChallenges removes challenges whose TTL has passed.
func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM passkey_challenges WHERE expires_at <= ?`,
		toMillis(now),
	); err != nil {
		return fmt.Errorf("delete expired challenges: %w", err)
	}
	return nil
}
