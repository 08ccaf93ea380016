// Package natskv implements the CredentialStore port on a NATS JetStream
// key-value bucket, for deployments where the bot host has no durable disk.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*Store)(nil)

// Store persists credential and key records in one KV bucket:
//
//	creds.<session id>                 JSON credential record
//	keys.<session id>.<category>.<id>  raw key bytes
//
// Key ids may contain characters outside the NATS key charset; every
// segment is encoded before use. Single-writer assumption applies: two
// processes sharing one bucket is not supported.
type Store struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

// New connects to NATS and opens (or creates) the credential bucket.
func New(url, bucket string) (*Store, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to nats %q: %v", driven.ErrStoreUnavailable, url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: create jetstream context: %v", driven.ErrStoreUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "devbot session credentials",
			History:     1,
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: create kv bucket %q: %v", driven.ErrStoreUnavailable, bucket, err)
		}
	}

	return &Store{conn: conn, kv: kv, bucket: bucket}, nil
}

// Close closes the NATS connection.
func (s *Store) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	return nil
}

// credentialsDoc is the stored shape of a credential record.
type credentialsDoc struct {
	DeviceID    string    `json:"device_id"`
	IdentityKey []byte    `json:"identity_key,omitempty"`
	NoiseKey    []byte    `json:"noise_key,omitempty"`
	Registered  bool      `json:"registered"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadCredentials returns the stored record, or an empty one when absent.
// A record that fails to decode is logged and treated as absent.
func (s *Store) LoadCredentials(ctx context.Context, sessionID string) (*model.CredentialRecord, error) {
	rec := &model.CredentialRecord{SessionID: sessionID}

	entry, err := s.kv.Get(ctx, credsKey(sessionID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}

	var doc credentialsDoc
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		slog.Warn("discarding corrupt credentials entry", "session_id", sessionID, "bucket", s.bucket, "error", err)
		return rec, nil
	}

	rec.DeviceID = doc.DeviceID
	rec.IdentityKey = doc.IdentityKey
	rec.NoiseKey = doc.NoiseKey
	rec.Registered = doc.Registered
	rec.UpdatedAt = doc.UpdatedAt
	return rec, nil
}

// SaveCredentials stores the record, replacing any previous one.
func (s *Store) SaveCredentials(ctx context.Context, sessionID string, rec *model.CredentialRecord) error {
	doc := credentialsDoc{
		DeviceID:    rec.DeviceID,
		IdentityKey: rec.IdentityKey,
		NoiseKey:    rec.NoiseKey,
		Registered:  rec.Registered,
		UpdatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal credentials for session %q: %w", sessionID, err)
	}

	if _, err := s.kv.Put(ctx, credsKey(sessionID), data); err != nil {
		return fmt.Errorf("%w: save credentials for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}
	return nil
}

// GetKeys returns the subset of the requested ids present in the category.
func (s *Store) GetKeys(ctx context.Context, sessionID, category string, ids []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(ids))

	for _, id := range ids {
		entry, err := s.kv.Get(ctx, recordKey(sessionID, category, id))
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get key %s/%s for session %q: %v", driven.ErrStoreUnavailable, category, id, sessionID, err)
		}
		result[id] = entry.Value()
	}
	return result, nil
}

// SetKeys applies a batch of key updates: nil values delete, everything else
// upserts. NATS KV has no multi-key transaction; per-entry application is
// sufficient under the single-writer assumption.
func (s *Store) SetKeys(ctx context.Context, sessionID, category string, updates map[string][]byte) error {
	for id, value := range updates {
		key := recordKey(sessionID, category, id)
		var err error
		if value == nil {
			err = s.kv.Purge(ctx, key)
		} else {
			_, err = s.kv.Put(ctx, key, value)
		}
		if err != nil {
			return fmt.Errorf("%w: set key %s/%s for session %q: %v", driven.ErrStoreUnavailable, category, id, sessionID, err)
		}
	}
	return nil
}

// Clear deletes the credential record and every key record for the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: list keys for session %q: %v", driven.ErrStoreUnavailable, sessionID, err)
	}

	prefix := "keys." + segment(sessionID) + "."
	for _, key := range keys {
		if key != credsKey(sessionID) && !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := s.kv.Purge(ctx, key); err != nil {
			return fmt.Errorf("%w: purge %q for session %q: %v", driven.ErrStoreUnavailable, key, sessionID, err)
		}
	}
	return nil
}

func credsKey(sessionID string) string {
	return "creds." + segment(sessionID)
}

func recordKey(sessionID, category, id string) string {
	return "keys." + segment(sessionID) + "." + segment(category) + "." + segment(id)
}

// segment makes an arbitrary identifier a valid NATS KV key token. Plain
// identifiers pass through untouched for operability; anything else is
// base64url-encoded (the alphabet is within the KV key charset).
func segment(name string) string {
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
