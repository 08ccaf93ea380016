// Package filestore implements the CredentialStore port on a directory tree
// of JSON files, one subdirectory per session id.
package filestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

const credentialsFile = "credentials.json"

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// Store persists credential and key records under root:
//
//	<root>/<session id>/credentials.json
//	<root>/<session id>/keys.<category>.json
//
// A single mutex serializes all access, which satisfies the per-call
// atomicity the port requires under the single-writer assumption.
// Concurrent access from a second process is not supported.
type Store struct {
	root string
	mu   sync.Mutex
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: create store root %q: %v", driven.ErrStoreUnavailable, dir, err)
	}
	return &Store{root: dir}, nil
}

// credentialsDoc is the on-disk shape of a credential record.
type credentialsDoc struct {
	DeviceID    string    `json:"device_id"`
	IdentityKey []byte    `json:"identity_key,omitempty"`
	NoiseKey    []byte    `json:"noise_key,omitempty"`
	Registered  bool      `json:"registered"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadCredentials returns the stored record, or an empty one if the session
// has never been paired. A corrupt file is logged and treated as absent so
// it cannot block session startup.
func (s *Store) LoadCredentials(_ context.Context, sessionID string) (*model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &model.CredentialRecord{SessionID: sessionID}

	var doc credentialsDoc
	path := filepath.Join(s.sessionDir(sessionID), credentialsFile)
	switch err := readJSON(path, &doc); {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return rec, nil
	case isDecodeError(err):
		slog.Warn("discarding corrupt credentials file", "session_id", sessionID, "path", path, "error", err)
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: read credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}

	rec.DeviceID = doc.DeviceID
	rec.IdentityKey = doc.IdentityKey
	rec.NoiseKey = doc.NoiseKey
	rec.Registered = doc.Registered
	rec.UpdatedAt = doc.UpdatedAt
	return rec, nil
}

// SaveCredentials writes the record, replacing any previous one.
func (s *Store) SaveCredentials(_ context.Context, sessionID string, rec *model.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := credentialsDoc{
		DeviceID:    rec.DeviceID,
		IdentityKey: rec.IdentityKey,
		NoiseKey:    rec.NoiseKey,
		Registered:  rec.Registered,
		UpdatedAt:   time.Now().UTC(),
	}

	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create session dir %q: %v", driven.ErrStoreUnavailable, dir, err)
	}
	if err := writeJSON(filepath.Join(dir, credentialsFile), doc); err != nil {
		return fmt.Errorf("%w: write credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// GetKeys returns the subset of the requested ids present in the category.
func (s *Store) GetKeys(_ context.Context, sessionID, category string, ids []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.readKeys(sessionID, category)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(ids))
	for _, id := range ids {
		if v, ok := keys[id]; ok {
			result[id] = v
		}
	}
	return result, nil
}

// SetKeys applies a batch of key updates under the store lock: nil values
// delete, everything else upserts. The category file is rewritten once, so
// the batch is atomic with respect to concurrent reads in this process.
func (s *Store) SetKeys(_ context.Context, sessionID, category string, updates map[string][]byte) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.readKeys(sessionID, category)
	if err != nil {
		return err
	}

	for id, value := range updates {
		if value == nil {
			delete(keys, id)
		} else {
			keys[id] = value
		}
	}

	dir := s.sessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create session dir %q: %v", driven.ErrStoreUnavailable, dir, err)
	}
	if err := writeJSON(filepath.Join(dir, keysFile(category)), keys); err != nil {
		return fmt.Errorf("%w: write %s keys for session %q: %v", driven.ErrStoreUnavailable, category, sessionID, err)
	}
	return nil
}

// Clear removes the whole session directory: credentials and every key file.
func (s *Store) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.RemoveAll(s.sessionDir(sessionID)); err != nil {
		return fmt.Errorf("%w: clear session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// readKeys loads the key map for one category. Missing or corrupt files are
// treated as empty.
func (s *Store) readKeys(sessionID, category string) (map[string][]byte, error) {
	path := filepath.Join(s.sessionDir(sessionID), keysFile(category))

	keys := make(map[string][]byte)
	switch err := readJSON(path, &keys); {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
	case isDecodeError(err):
		slog.Warn("discarding corrupt key file", "session_id", sessionID, "category", category, "path", path, "error", err)
		return make(map[string][]byte), nil
	default:
		return nil, fmt.Errorf("%w: read %s keys for session %q: %v", driven.ErrStoreUnavailable, category, sessionID, err)
	}
	return keys, nil
}

// sessionDir maps a session id to its directory, encoding ids that are not
// safe as path components.
func (s *Store) sessionDir(sessionID string) string {
	return filepath.Join(s.root, pathSafe(sessionID))
}

func keysFile(category string) string {
	return "keys." + pathSafe(category) + ".json"
}

// pathSafe keeps plain identifiers readable on disk and encodes anything
// else. Dots are never allowed through: the ids "." and ".." would escape
// the store root as path components.
func pathSafe(name string) string {
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return base64.RawURLEncoding.EncodeToString([]byte(name))
	}
	if name == "" {
		return "_"
	}
	return name
}

// decodeError marks JSON syntax failures so callers can distinguish a corrupt
// record from an I/O failure.
type decodeError struct{ err error }

func (e decodeError) Error() string { return e.err.Error() }
func (e decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de decodeError
	return errors.As(err, &de)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return decodeError{err: err}
	}
	return nil
}

// writeJSON writes via a temp file and rename so a crash mid-write cannot
// leave a truncated record behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
