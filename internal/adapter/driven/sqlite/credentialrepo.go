package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Credential records live in session_credentials (one row per session id);
// key records live in session_keys keyed by (session_id, category, key_id).
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo on the given database.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// LoadCredentials returns the credential record for the session, or an empty
// record if none has been saved yet.
func (r *CredentialRepo) LoadCredentials(ctx context.Context, sessionID string) (*model.CredentialRecord, error) {
	const query = `SELECT device_id, identity_key, noise_key, registered, updated_at
		FROM session_credentials WHERE session_id = ?`

	rec := &model.CredentialRecord{SessionID: sessionID}
	var registered int
	var updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query, sessionID).Scan(
		&rec.DeviceID, &rec.IdentityKey, &rec.NoiseKey, &registered, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}

	rec.Registered = registered != 0
	rec.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for session %q: %w", sessionID, err)
	}
	return rec, nil
}

// SaveCredentials stores the record, replacing any previous one.
func (r *CredentialRepo) SaveCredentials(ctx context.Context, sessionID string, rec *model.CredentialRecord) error {
	const query = `INSERT OR REPLACE INTO session_credentials
		(session_id, device_id, identity_key, noise_key, registered, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`

	registered := 0
	if rec.Registered {
		registered = 1
	}
	_, err := r.db.Writer.ExecContext(ctx, query, sessionID, rec.DeviceID, rec.IdentityKey, rec.NoiseKey, registered)
	if err != nil {
		return fmt.Errorf("%w: save credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// GetKeys returns the subset of the requested ids present in the category.
// Absent ids are simply omitted from the result map.
func (r *CredentialRepo) GetKeys(ctx context.Context, sessionID, category string, ids []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	const query = `SELECT value FROM session_keys
		WHERE session_id = ? AND category = ? AND key_id = ?`

	for _, id := range ids {
		var value []byte
		err := r.db.Reader.QueryRowContext(ctx, query, sessionID, category, id).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get key %s/%s for session %q: %v", driven.ErrStoreUnavailable, category, id, sessionID, err)
		}
		result[id] = value
	}
	return result, nil
}

// SetKeys applies a batch of key updates in one transaction: a nil value
// deletes the row, any other value upserts it.
func (r *CredentialRepo) SetKeys(ctx context.Context, sessionID, category string, updates map[string][]byte) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin key batch for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `INSERT OR REPLACE INTO session_keys
		(session_id, category, key_id, value, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`
	const remove = `DELETE FROM session_keys
		WHERE session_id = ? AND category = ? AND key_id = ?`

	for id, value := range updates {
		if value == nil {
			_, err = tx.ExecContext(ctx, remove, sessionID, category, id)
		} else {
			_, err = tx.ExecContext(ctx, upsert, sessionID, category, id, value)
		}
		if err != nil {
			return fmt.Errorf("%w: set key %s/%s for session %q: %v", driven.ErrStoreUnavailable, category, id, sessionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit key batch for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// Clear deletes the credential record and all key records for the session.
func (r *CredentialRepo) Clear(ctx context.Context, sessionID string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin clear for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_keys WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: clear keys for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM session_credentials WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("%w: clear credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit clear for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// parseTime parses SQLite's CURRENT_TIMESTAMP format, falling back to RFC3339.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
