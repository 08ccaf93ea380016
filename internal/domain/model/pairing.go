package model

import "time"

// PairingCode is a short-lived out-of-band pairing artifact produced by the
// transport handshake. Only the most recent code is valid; Generation
// increases monotonically so consumers can tell a stale render from a fresh
// one.
type PairingCode struct {
	Code       string
	Generation uint64
	IssuedAt   time.Time
}
