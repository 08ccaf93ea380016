package driven

import (
	"context"

	"github.com/ericfisherdev/devbot/internal/domain/model"
)

// TransportClient is the driven port for the external messaging transport.
// The wire protocol and its cryptography live entirely behind this interface.
type TransportClient interface {
	// Connect opens one logical connection using the given credentials.
	// The transport reads and writes its cryptographic material through
	// keys, which is the credential store scoped to this session.
	// Connect is bounded by the transport's own timeout; no additional
	// timeout layer is applied by callers.
	Connect(ctx context.Context, creds *model.CredentialRecord, keys KeyStore) (TransportConn, error)
}

// TransportConn is one live connection handle.
type TransportConn interface {
	// Events delivers connection lifecycle events in order. The channel is
	// closed after a terminal disconnect event or Close.
	Events() <-chan TransportEvent

	// SendText delivers a text message to one destination. The error is
	// terminal for this message; the transport does not retry.
	SendText(ctx context.Context, destination, text string) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// KeyStore is the slice of the credential store the transport is handed:
// batch reads by id and batch writes where a nil value deletes the key.
type KeyStore interface {
	GetKeys(ctx context.Context, category string, ids []string) (map[string][]byte, error)
	SetKeys(ctx context.Context, category string, updates map[string][]byte) error
}

// TransportEvent is a typed connection lifecycle event.
type TransportEvent interface {
	transportEvent()
}

// EventPairingCode is emitted when the transport has no valid identity and
// needs the user to confirm an out-of-band pairing code. Each new event
// supersedes any previously issued code.
type EventPairingCode struct {
	Code string
}

// EventAuthenticated is emitted after a successful handshake. Credentials
// carries the identity material as the transport last updated it (freshly
// minted on first pairing) and must be persisted by the receiver.
type EventAuthenticated struct {
	Credentials *model.CredentialRecord
}

// EventDisconnected is emitted on an involuntary disconnect. It is terminal
// for this connection handle.
type EventDisconnected struct {
	Reason model.DisconnectReason
}

func (EventPairingCode) transportEvent()   {}
func (EventAuthenticated) transportEvent() {}
func (EventDisconnected) transportEvent()  {}
