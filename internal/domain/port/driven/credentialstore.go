// Package driven defines the outbound port interfaces implemented by the
// adapter layer.
package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/devbot/internal/domain/model"
)

// ErrStoreUnavailable is returned by CredentialStore operations when the
// backing store cannot be reached (file I/O failure, database error, broker
// outage). It is fatal to the in-progress connect attempt, not to the process.
var ErrStoreUnavailable = errors.New("credential store unavailable")

// CredentialStore is the driven port for durable credential persistence.
// Implementations are interchangeable: swapping the backend changes latency
// and availability characteristics, never observable behavior.
//
// The store assumes a single writer: exactly one session manager per session
// id. Pointing a second process at the same backend is not supported.
type CredentialStore interface {
	// LoadCredentials returns the credential record for the session, or a
	// freshly initialized empty record if none exists. "Not found" is never
	// an error; only I/O failures are, wrapped with ErrStoreUnavailable.
	LoadCredentials(ctx context.Context, sessionID string) (*model.CredentialRecord, error)

	// SaveCredentials stores the record with full-overwrite upsert semantics.
	SaveCredentials(ctx context.Context, sessionID string, rec *model.CredentialRecord) error

	// GetKeys returns the subset of the requested key ids actually present
	// in the given category. Absent ids are omitted from the result, not
	// errors.
	GetKeys(ctx context.Context, sessionID, category string, ids []string) (map[string][]byte, error)

	// SetKeys applies a batch of key updates: a nil value deletes the key
	// (tombstone), any other value upserts it. The batch is atomic with
	// respect to concurrent reads from the same process.
	SetKeys(ctx context.Context, sessionID, category string, updates map[string][]byte) error

	// Clear deletes the credential record and every key record for the
	// session. Used only for forced re-pairing.
	Clear(ctx context.Context, sessionID string) error
}
