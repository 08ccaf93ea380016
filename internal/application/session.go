// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/devbot/internal/domain/model"
	"github.com/ericfisherdev/devbot/internal/domain/port/driven"
	"github.com/ericfisherdev/devbot/internal/metrics"
)

// SessionConfig tunes the session manager's reconnect behavior.
type SessionConfig struct {
	SessionID string

	// ReconnectDelay is the fixed spacing between soft-reconnect attempts.
	// The workload is low frequency, so no backoff growth is applied.
	ReconnectDelay time.Duration

	// RepairSettle is the pause between clearing credentials and starting
	// the fresh pairing connection during forced re-pairing.
	RepairSettle time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SessionID == "" {
		c.SessionID = "default"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.RepairSettle <= 0 {
		c.RepairSettle = 2 * time.Second
	}
	return c
}

// SessionStatus is a point-in-time snapshot of the session manager.
type SessionStatus struct {
	SessionID         string
	State             model.ConnState
	Connected         bool
	PairingPending    bool
	PairingGeneration uint64
}

// SessionManager owns the one logical connection to the messaging transport.
// It runs the connect / authenticate / open / reconnect state machine,
// persists credential mutations through the injected store, and surfaces
// pairing codes to a single registered observer.
//
// Two disconnect paths are deliberately kept apart: a soft disconnect
// (network drop, idle timeout) reconnects with the stored credentials and
// needs no user action, while a credentials-revoked disconnect discards the
// stored credentials and forces a fresh pairing. Conflating the two either
// makes users re-scan pairing codes for every network blip or loops forever
// against permanently revoked credentials.
type SessionManager struct {
	client driven.TransportClient
	store  driven.CredentialStore
	cfg    SessionConfig
	logger *slog.Logger

	mu         sync.Mutex
	state      model.ConnState
	conn       driven.TransportConn
	epoch      uint64 // bumped on every teardown; stale pumps and timers check it
	timer      *time.Timer
	pairing    *model.PairingCode
	pairingGen uint64
	onPairing  func(model.PairingCode)

	runCtx    context.Context
	runCancel context.CancelFunc
}

// NewSessionManager creates a SessionManager. The credential store is an
// explicit dependency; there is no ambient store access anywhere.
func NewSessionManager(client driven.TransportClient, store driven.CredentialStore, cfg SessionConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		client: client,
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
		state:  model.StateDisconnected,
	}
}

// OnPairingCode registers the single pairing-code observer. Each delivered
// code supersedes any previously displayed one. Must be called before Start.
func (s *SessionManager) OnPairingCode(fn func(model.PairingCode)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPairing = fn
}

// Start connects to the transport. It is idempotent: when the session is
// already connecting or open it returns the current state and does nothing.
// A store or transport failure aborts this attempt but leaves the manager
// ready for another Start.
func (s *SessionManager) Start(ctx context.Context) (model.ConnState, error) {
	s.mu.Lock()
	if s.state != model.StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return state, nil
	}
	s.state = model.StateConnecting
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.Info("session starting", "session_id", s.cfg.SessionID)

	if err := s.connect(ctx, epoch); err != nil {
		s.mu.Lock()
		if epoch == s.epoch {
			s.state = model.StateDisconnected
		}
		s.mu.Unlock()
		return model.StateDisconnected, err
	}
	return s.State(), nil
}

// Stop tears the session down. It always succeeds from the caller's
// perspective; transport errors during teardown are logged, not raised.
// Any in-flight reconnect timer is canceled.
func (s *SessionManager) Stop() {
	s.mu.Lock()
	s.state = model.StateClosing
	conn := s.teardownLocked()
	if s.runCancel != nil {
		s.runCancel()
	}
	s.pairing = nil
	s.state = model.StateDisconnected
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Warn("transport close failed", "session_id", s.cfg.SessionID, "error", err)
		}
	}
	metrics.ConnectionState.Set(0)
	s.logger.Info("session stopped", "session_id", s.cfg.SessionID)
}

// Send delivers text to one destination. It returns false immediately when
// the session is not open, without touching the transport, and otherwise
// reports the transport's own success or failure. No retry happens here;
// retry is the scheduler's job.
func (s *SessionManager) Send(ctx context.Context, destination, text string) bool {
	s.mu.Lock()
	if s.state != model.StateOpen || s.conn == nil {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn("send rejected, session not open", "session_id", s.cfg.SessionID, "state", state, "destination", destination)
		metrics.SendsTotal.WithLabelValues("rejected").Inc()
		return false
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.SendText(ctx, destination, text); err != nil {
		s.logger.Error("send failed", "session_id", s.cfg.SessionID, "destination", destination, "error", err)
		metrics.SendsTotal.WithLabelValues("failure").Inc()
		return false
	}
	metrics.SendsTotal.WithLabelValues("success").Inc()
	return true
}

// SendToMany fans text out to destinations one at a time, continuing past
// individual failures. Sequential on purpose: it keeps transport call
// ordering simple and avoids rate-sensitive bursts.
func (s *SessionManager) SendToMany(ctx context.Context, destinations []string, text string) (successes, failures int) {
	for _, dest := range destinations {
		if s.Send(ctx, dest, text) {
			successes++
		} else {
			failures++
		}
	}
	return successes, failures
}

// ForceReconnect runs the forced re-pairing procedure regardless of the
// current disconnect cause: stop the transport, clear stored credentials,
// settle, and reconnect from scratch. Used when an operator suspects a
// broken session the transport has not reported.
func (s *SessionManager) ForceReconnect(ctx context.Context) error {
	s.mu.Lock()
	conn := s.teardownLocked()
	s.state = model.StateDisconnected
	s.pairing = nil
	if s.runCtx == nil {
		s.runCtx, s.runCancel = context.WithCancel(context.Background())
	}
	epoch := s.epoch
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Warn("transport close failed", "session_id", s.cfg.SessionID, "error", err)
		}
	}

	s.logger.Info("forced re-pairing requested", "session_id", s.cfg.SessionID)
	metrics.ReconnectsTotal.WithLabelValues("forced").Inc()

	return s.repair(ctx, epoch)
}

// Status is a pure read of the current state.
func (s *SessionManager) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{
		SessionID:         s.cfg.SessionID,
		State:             s.state,
		Connected:         s.state == model.StateOpen,
		PairingPending:    s.pairing != nil,
		PairingGeneration: s.pairingGen,
	}
}

// State returns the current connection state.
func (s *SessionManager) State() model.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PairingCode returns the current pairing artifact, if one is pending.
func (s *SessionManager) PairingCode() (model.PairingCode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairing == nil {
		return model.PairingCode{}, false
	}
	return *s.pairing, true
}

// connect loads credentials and opens a transport connection. On success the
// connection is registered and its event pump started; the state moves on
// from connecting only when transport events arrive. On failure the caller
// decides what state to fall back to.
func (s *SessionManager) connect(ctx context.Context, epoch uint64) error {
	creds, err := s.store.LoadCredentials(ctx, s.cfg.SessionID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	conn, err := s.client.Connect(ctx, creds, s.keyStore())
	if err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	s.mu.Lock()
	if epoch != s.epoch {
		// Stop or ForceReconnect won the race; this connection is orphaned.
		s.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()

	go s.pump(conn, epoch)
	return nil
}

// pump forwards transport events into the state machine until the event
// channel closes. Events from a superseded connection are dropped by the
// epoch check inside handleEvent.
func (s *SessionManager) pump(conn driven.TransportConn, epoch uint64) {
	for ev := range conn.Events() {
		s.handleEvent(ev, epoch)
	}
}

// handleEvent is the single place state transitions happen. The mutex makes
// transition processing single-writer; no two transitions interleave.
func (s *SessionManager) handleEvent(ev driven.TransportEvent, epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return
	}

	switch e := ev.(type) {
	case driven.EventPairingCode:
		if s.state == model.StateOpen {
			// The transport must not ask for pairing on an open session.
			s.mu.Unlock()
			s.logger.Warn("pairing code ignored on open session", "session_id", s.cfg.SessionID)
			return
		}
		s.state = model.StateAwaitingPairing
		s.pairingGen++
		code := model.PairingCode{Code: e.Code, Generation: s.pairingGen, IssuedAt: time.Now()}
		s.pairing = &code
		cb := s.onPairing
		s.mu.Unlock()

		s.logger.Info("pairing code issued", "session_id", s.cfg.SessionID, "generation", code.Generation)
		if cb != nil {
			cb(code)
		}

	case driven.EventAuthenticated:
		s.state = model.StateOpen
		s.pairing = nil
		ctx := s.runCtx
		s.mu.Unlock()

		s.logger.Info("session open", "session_id", s.cfg.SessionID)
		metrics.ConnectionState.Set(1)

		if e.Credentials != nil {
			if err := s.store.SaveCredentials(ctx, s.cfg.SessionID, e.Credentials); err != nil {
				// The session stays usable; credentials are re-saved on the
				// next authenticated event.
				s.logger.Error("persist credentials failed", "session_id", s.cfg.SessionID, "error", err)
			}
		}

	case driven.EventDisconnected:
		metrics.ConnectionState.Set(0)
		if e.Reason.Revoked() {
			conn := s.teardownLocked()
			s.state = model.StateDisconnected
			s.pairing = nil
			newEpoch := s.epoch
			ctx := s.runCtx
			s.mu.Unlock()

			if conn != nil {
				_ = conn.Close()
			}
			s.logger.Warn("credentials revoked by transport, forcing re-pair", "session_id", s.cfg.SessionID)
			metrics.ReconnectsTotal.WithLabelValues("repair").Inc()

			go func() {
				if err := s.repair(ctx, newEpoch); err != nil {
					s.logger.Error("re-pairing failed", "session_id", s.cfg.SessionID, "error", err)
				}
			}()
			return
		}

		conn := s.teardownLocked()
		s.state = model.StateConnecting
		newEpoch := s.epoch
		s.scheduleReconnectLocked(newEpoch)
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		s.logger.Warn("transport disconnected, reconnecting",
			"session_id", s.cfg.SessionID,
			"reason", e.Reason,
			"delay", s.cfg.ReconnectDelay,
		)
		metrics.ReconnectsTotal.WithLabelValues("soft").Inc()

	default:
		s.mu.Unlock()
	}
}

// repair clears stored credentials, waits the settle delay, and reconnects
// from scratch. This is the only path that discards credentials. A store
// failure aborts the attempt and is returned; a transport connect failure
// falls back to the automatic reconnect timer.
func (s *SessionManager) repair(ctx context.Context, epoch uint64) error {
	if err := s.store.Clear(ctx, s.cfg.SessionID); err != nil {
		s.mu.Lock()
		if epoch == s.epoch {
			s.state = model.StateDisconnected
		}
		s.mu.Unlock()
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.Info("credentials cleared", "session_id", s.cfg.SessionID)

	sleepCtx(ctx, s.cfg.RepairSettle)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	s.state = model.StateConnecting
	s.mu.Unlock()

	if err := s.connect(ctx, epoch); err != nil {
		s.logger.Error("reconnect after re-pair failed, retrying", "session_id", s.cfg.SessionID, "error", err)
		s.mu.Lock()
		if epoch == s.epoch {
			s.scheduleReconnectLocked(epoch)
		}
		s.mu.Unlock()
	}
	return nil
}

// reconnect is the timer-driven soft-reconnect attempt. Failures reschedule
// at the same fixed delay; the daily workload does not warrant backoff
// growth here.
func (s *SessionManager) reconnect(epoch uint64) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != model.StateConnecting {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	s.mu.Unlock()

	if err := s.connect(ctx, epoch); err != nil {
		s.logger.Error("reconnect failed, retrying", "session_id", s.cfg.SessionID, "delay", s.cfg.ReconnectDelay, "error", err)
		s.mu.Lock()
		if epoch == s.epoch {
			s.scheduleReconnectLocked(epoch)
		}
		s.mu.Unlock()
	}
}

// scheduleReconnectLocked arms the reconnect timer. Caller holds s.mu.
func (s *SessionManager) scheduleReconnectLocked(epoch uint64) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.ReconnectDelay, func() { s.reconnect(epoch) })
}

// teardownLocked invalidates the current connection: the epoch bump makes
// every in-flight pump, timer, and orphaned connect a no-op. Caller holds
// s.mu and is responsible for closing the returned connection.
func (s *SessionManager) teardownLocked() driven.TransportConn {
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	conn := s.conn
	s.conn = nil
	return conn
}

// keyStore returns the credential store scoped to this session, in the shape
// the transport demands.
func (s *SessionManager) keyStore() driven.KeyStore {
	return sessionKeyStore{store: s.store, sessionID: s.cfg.SessionID}
}

// sessionKeyStore adapts CredentialStore's key operations to the transport's
// KeyStore surface by pinning the session id.
type sessionKeyStore struct {
	store     driven.CredentialStore
	sessionID string
}

func (k sessionKeyStore) GetKeys(ctx context.Context, category string, ids []string) (map[string][]byte, error) {
	return k.store.GetKeys(ctx, k.sessionID, category, ids)
}

func (k sessionKeyStore) SetKeys(ctx context.Context, category string, updates map[string][]byte) error {
	return k.store.SetKeys(ctx, k.sessionID, category, updates)
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
