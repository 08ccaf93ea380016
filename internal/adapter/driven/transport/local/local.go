// Package local is an in-process stand-in for the production messaging
// transport. It drives the same pairing and authentication events the real
// transport would, logs outgoing messages instead of delivering them, and
// lets the binary and its tests run end-to-end without network access.
package local

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TransportClient = (*Client)(nil)

// Client implements the transport port in-process.
type Client struct {
	logger *slog.Logger

	// PairDelay is how long a fresh session waits in awaiting_pairing
	// before the simulated pairing confirmation arrives.
	PairDelay time.Duration
}

// NewClient creates a local transport client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{logger: logger, PairDelay: 3 * time.Second}
}

// Connect opens a simulated connection. Sessions with stored identity
// authenticate immediately; fresh sessions go through a pairing code and a
// delayed confirmation that mints new identity material.
func (c *Client) Connect(_ context.Context, creds *model.CredentialRecord, keys driven.KeyStore) (driven.TransportConn, error) {
	conn := &conn{
		events: make(chan driven.TransportEvent, 4),
		keys:   keys,
		logger: c.logger,
	}

	if creds.HasIdentity() {
		copied := *creds
		conn.events <- driven.EventAuthenticated{Credentials: &copied}
		return conn, nil
	}

	code := pairingCode()
	conn.events <- driven.EventPairingCode{Code: code}

	// Simulated out-of-band confirmation: mint identity material the way
	// the real transport would after the user scanned the code.
	minted := &model.CredentialRecord{
		SessionID:   creds.SessionID,
		DeviceID:    uuid.NewString() + "@local",
		IdentityKey: randomKey(),
		NoiseKey:    randomKey(),
		Registered:  true,
	}
	conn.confirm = time.AfterFunc(c.PairDelay, func() {
		conn.emit(driven.EventAuthenticated{Credentials: minted})
	})

	return conn, nil
}

type conn struct {
	events chan driven.TransportEvent
	keys   driven.KeyStore
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	confirm *time.Timer
}

func (c *conn) Events() <-chan driven.TransportEvent { return c.events }

func (c *conn) SendText(ctx context.Context, destination, text string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return fmt.Errorf("connection closed")
	}

	// Touch the key store the way a real transport would before encrypting.
	if _, err := c.keys.GetKeys(ctx, model.KeyCategorySession, []string{destination}); err != nil {
		return fmt.Errorf("load session key: %w", err)
	}

	c.logger.Info("local transport delivered message",
		"destination", destination,
		"length", len(text),
	)
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.confirm != nil {
		c.confirm.Stop()
	}
	close(c.events)
	return nil
}

func (c *conn) emit(ev driven.TransportEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.events <- ev
	}
}

// pairingCode formats a short uppercase code like the real transport's
// "ABCD-EFGH" pairing codes.
func pairingCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	var b strings.Builder
	for i, v := range buf {
		if i == 4 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[int(v)%len(alphabet)])
	}
	return b.String()
}

func randomKey() []byte {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return buf
}
