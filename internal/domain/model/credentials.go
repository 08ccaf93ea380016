// Package model contains the domain types shared by ports, adapters, and services.
package model

import "time"

// CredentialRecord holds the long-lived identity material for one logical
// transport session: the device address assigned by the transport at pairing
// time plus the key pairs that authenticate subsequent connections. Exactly
// one record exists per session id. The zero value (plus SessionID) is a
// valid "not yet paired" record.
type CredentialRecord struct {
	SessionID   string
	DeviceID    string // transport-assigned device address; empty until paired
	IdentityKey []byte
	NoiseKey    []byte
	Registered  bool
	UpdatedAt   time.Time
}

// HasIdentity reports whether the record carries usable pairing material.
// A record without identity forces the transport into the pairing flow.
func (r *CredentialRecord) HasIdentity() bool {
	return r.Registered && r.DeviceID != "" && len(r.IdentityKey) > 0
}

// Well-known key record categories used by the transport's key store.
// The set is open-ended; these are the categories the transport is known
// to read and write today.
const (
	KeyCategorySession  = "session"
	KeyCategoryPreKey   = "prekey"
	KeyCategorySender   = "sender-key"
	KeyCategoryAppState = "app-state"
)
