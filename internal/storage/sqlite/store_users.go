package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/augchan42/passkey-backend-demo/internal/storage"
	"github.com/augchan42/passkey-backend-demo/internal/user"
)

// PutUser persists a user identity record.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(u.Handle) == 0 {
		return fmt.Errorf("user handle is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO users (id, username, handle, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET username = excluded.username, updated_at = excluded.updated_at`,
		u.ID,
		u.Username,
		u.Handle,
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

// GetUser fetches a user record by id.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}

	var u user.User
	var createdAt int64
	var updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, username, handle, created_at, updated_at FROM users WHERE id = ?`,
		userID,
	).Scan(&u.ID, &u.Username, &u.Handle, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// CreateUserWithCredential writes a new user and its first credential in a
// single transaction, so a duplicate credential rolls back the user row too.
func (s *Store) CreateUserWithCredential(ctx context.Context, u user.User, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	if len(u.Handle) == 0 {
		return fmt.Errorf("user handle is required")
	}
	if u.ID != credential.UserID {
		return fmt.Errorf("credential user id %q does not match user %q", credential.UserID, u.ID)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO users (id, username, handle, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.Handle,
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	if err := insertCredential(ctx, tx, credential); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit user with credential: %w", err)
	}
	return nil
}
