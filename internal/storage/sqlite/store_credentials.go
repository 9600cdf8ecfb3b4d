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

const credentialColumns = `id, user_id, credential_id, public_key, sign_count, device_type, transports, backup_eligible, backup_state, created_at, last_used_at, active`

// CreateCredential inserts a new credential record. The duplicate pre-check
// runs in the same transaction as the insert and considers inactive rows, so
// a revoked credential id can never be re-registered.
func (s *Store) CreateCredential(ctx context.Context, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if len(credential.PublicKey) == 0 {
		return fmt.Errorf("public key is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertCredential(ctx, tx, credential); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credential: %w", err)
	}
	return nil
}

func insertCredential(ctx context.Context, tx *sql.Tx, credential storage.Credential) error {
	var existing int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM passkey_credentials WHERE credential_id = ?`,
		credential.CredentialID,
	).Scan(&existing)
	if err == nil {
		return storage.ErrDuplicateCredential
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check credential id: %w", err)
	}

	lastUsed := sql.NullInt64{}
	if credential.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: toMillis(*credential.LastUsedAt), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO passkey_credentials (
	id, user_id, credential_id, public_key, sign_count, device_type, transports, backup_eligible, backup_state, created_at, last_used_at, active
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		credential.ID,
		credential.UserID,
		credential.CredentialID,
		credential.PublicKey,
		int64(credential.SignCount),
		credential.DeviceType,
		strings.Join(credential.Transports, ","),
		boolToInt(credential.BackupEligible),
		boolToInt(credential.BackupState),
		toMillis(credential.CreatedAt),
		lastUsed,
	)
	if err != nil {
		// Unique index backstop in case a concurrent insert won the race.
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return storage.ErrDuplicateCredential
		}
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

// GetCredentialByCredentialID fetches an active credential.
func (s *Store) GetCredentialByCredentialID(ctx context.Context, credentialID string) (storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return storage.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Credential{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.Credential{}, fmt.Errorf("credential id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM passkey_credentials WHERE credential_id = ? AND active = 1`,
		credentialID,
	)
	credential, err := scanCredential(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Credential{}, storage.ErrNotFound
		}
		return storage.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return credential, nil
}

// ListCredentialsByUser returns the active credentials for a user.
func (s *Store) ListCredentialsByUser(ctx context.Context, userID string) ([]storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM passkey_credentials WHERE user_id = ? AND active = 1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	credentials := make([]storage.Credential, 0)
	for rows.Next() {
		credential, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return credentials, nil
}

// UpdateCredentialCounter sets the signature counter and last-used timestamp
// in one transaction. A regressed counter is refused so no error path can move
// the stored counter backward.
func (s *Store) UpdateCredentialCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT sign_count FROM passkey_credentials WHERE credential_id = ? AND active = 1`,
		credentialID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get credential counter: %w", err)
	}
	if int64(newCounter) < current {
		return fmt.Errorf("stored %d, new %d: %w", current, newCounter, storage.ErrCounterRegression)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE passkey_credentials SET sign_count = ?, last_used_at = ? WHERE credential_id = ?`,
		int64(newCounter),
		toMillis(usedAt),
		credentialID,
	); err != nil {
		return fmt.Errorf("update credential counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit counter update: %w", err)
	}
	return nil
}

// DeactivateCredential marks a credential inactive. Idempotent: deactivating
// an unknown or already inactive credential is not an error.
func (s *Store) DeactivateCredential(ctx context.Context, credentialID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return fmt.Errorf("credential id is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`UPDATE passkey_credentials SET active = 0 WHERE credential_id = ?`,
		credentialID,
	); err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	return nil
}

func scanCredential(scan func(dest ...any) error) (storage.Credential, error) {
	var credential storage.Credential
	var signCount int64
	var transports string
	var backupEligible int64
	var backupState int64
	var createdAt int64
	var lastUsedAt sql.NullInt64
	var active int64
	if err := scan(
		&credential.ID,
		&credential.UserID,
		&credential.CredentialID,
		&credential.PublicKey,
		&signCount,
		&credential.DeviceType,
		&transports,
		&backupEligible,
		&backupState,
		&createdAt,
		&lastUsedAt,
		&active,
	); err != nil {
		return storage.Credential{}, err
	}
	credential.SignCount = uint32(signCount)
	if transports != "" {
		credential.Transports = strings.Split(transports, ",")
	}
	credential.BackupEligible = backupEligible != 0
	credential.BackupState = backupState != 0
	credential.CreatedAt = fromMillis(createdAt)
	if lastUsedAt.Valid {
		value := fromMillis(lastUsedAt.Int64)
		credential.LastUsedAt = &value
	}
	credential.Active = active != 0
	return credential, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
