package model

// ConnState is the in-memory connection state of the session manager.
// It is never persisted; every process starts at StateDisconnected.
type ConnState string

const (
	StateDisconnected    ConnState = "disconnected"
	StateConnecting      ConnState = "connecting"
	StateAwaitingPairing ConnState = "awaiting_pairing"
	StateOpen            ConnState = "open"
	StateClosing         ConnState = "closing"
)

// DisconnectReason classifies an involuntary transport disconnect.
type DisconnectReason string

const (
	// DisconnectLoggedOut means the transport revoked our credentials.
	// This is the only reason that discards stored credentials.
	DisconnectLoggedOut DisconnectReason = "logged_out"

	// DisconnectNetwork covers network drops, idle timeouts, and server
	// restarts. Stored credentials remain valid; reconnect is automatic.
	DisconnectNetwork DisconnectReason = "network"
)

// Revoked reports whether the disconnect invalidated our credentials.
func (r DisconnectReason) Revoked() bool {
	return r == DisconnectLoggedOut
}
