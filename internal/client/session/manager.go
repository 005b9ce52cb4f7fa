// Package session tracks the absolute age of a signed-in session and
// forces a full local sign-out once it exceeds the configured duration.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/federicoroldos/sofull-site/internal/client/credstore"
	"github.com/federicoroldos/sofull-site/internal/client/identity"
	"github.com/federicoroldos/sofull-site/internal/client/token"
	"github.com/federicoroldos/sofull-site/internal/domain"
	"github.com/federicoroldos/sofull-site/internal/pkg/id"
)

// RecordKey is the storage key the session record persists under.
const RecordKey = "session.v1"

// ReasonExpired is the user-visible message surfaced when the session age
// limit forces a sign-out.
const ReasonExpired = "session expired, sign in again"

// ReasonProviderSignOut is reported when the identity provider signals a
// sign-out that originated outside this process.
const ReasonProviderSignOut = "signed out"

// Record is the persisted session marker. StartMs is the instant of the
// first sign-in of this session, never advanced by later activity.
type Record struct {
	SessionID string `json:"session_id"`
	StartMs   int64  `json:"start_ms"`
}

// Config tunes the manager.
type Config struct {
	// Duration is the maximum session age. Default 30 days.
	Duration time.Duration
	// CheckInterval is the recurring expiry check cadence; zero disables
	// the ticker. Default one hour.
	CheckInterval time.Duration
	// OnForcedLogout receives the user-visible reason after a forced
	// sign-out completes.
	OnForcedLogout func(reason string)
}

func (c *Config) applyDefaults() {
	if c.Duration == 0 {
		c.Duration = 30 * 24 * time.Hour
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = time.Hour
	}
}

// Manager owns the session record and the forced-logout path.
type Manager struct {
	store    credstore.Store
	creds    *credstore.CredentialStore
	tokens   *token.Manager
	provider identity.Provider
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	record *Record

	cancelState func()
	stop        chan struct{}
	closeOnce   sync.Once
}

func NewManager(store credstore.Store, creds *credstore.CredentialStore, tokens *token.Manager, provider identity.Provider, cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		store:    store,
		creds:    creds,
		tokens:   tokens,
		provider: provider,
		cfg:      cfg,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	m.loadRecord()
	// On-load check: a session that aged out while the process was gone
	// is terminated immediately.
	m.CheckNow(context.Background())
	// Provider-side sign-outs (another surface revoked the session) must
	// converge local state too, complementing the storage-change path.
	m.cancelState = provider.OnStateChanged(func(signedIn bool) {
		if !signedIn {
			m.observeProviderSignOut()
		}
	})
	if cfg.CheckInterval > 0 {
		go m.checkLoop()
	}
	return m
}

// StartSession records the session start instant. Idempotent: an existing
// record is left untouched so the session age always measures from the
// first sign-in.
func (m *Manager) StartSession() (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record != nil {
		rec := *m.record
		return &rec, nil
	}
	rec := &Record{SessionID: id.New(), StartMs: m.now().UnixMilli()}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := m.store.Write(RecordKey, string(raw)); err != nil {
		return nil, err
	}
	m.record = rec
	out := *rec
	return &out, nil
}

// Current returns the active session record, or nil when signed out.
func (m *Manager) Current() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.record == nil {
		return nil
	}
	rec := *m.record
	return &rec
}

// IsExpired reports whether the session age meets or exceeds the limit at
// the given instant. A missing record is never expired.
func (m *Manager) IsExpired(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record != nil && now.Sub(time.UnixMilli(m.record.StartMs)) >= m.cfg.Duration
}

// CheckNow runs one expiry check, forcing a logout when the session has
// aged out. Redundant invocations are no-ops.
func (m *Manager) CheckNow(ctx context.Context) {
	if m.IsExpired(m.now()) {
		m.ForceLogout(ctx, ReasonExpired)
	}
}

// ForceLogout wipes all local sign-in state and signs out of the identity
// provider, then surfaces reason through the configured callback. The
// record is cleared first, under the lock, so concurrent expiry triggers
// produce exactly one logout. The wipe always runs to completion; a
// provider sign-out failure is logged, not propagated, because stale
// partial state is worse than no state.
func (m *Manager) ForceLogout(ctx context.Context, reason string) {
	m.mu.Lock()
	if m.record == nil {
		m.mu.Unlock()
		return
	}
	m.record = nil
	m.mu.Unlock()

	if err := m.store.Delete(RecordKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("delete session record", "err", err)
	}
	if err := m.creds.Clear(); err != nil {
		slog.Warn("clear credentials on logout", "err", err)
	}
	m.tokens.Reset()
	if err := m.provider.SignOut(ctx); err != nil {
		slog.Warn("provider sign-out failed, local state already wiped", "err", err)
	}
	if m.cfg.OnForcedLogout != nil {
		m.cfg.OnForcedLogout(reason)
	}
}

// observeProviderSignOut converges local state after a sign-out that the
// identity provider reports from elsewhere. The provider call is skipped;
// it already happened. Safe against re-entry from our own ForceLogout
// because the record is already nil by the time SignOut runs.
func (m *Manager) observeProviderSignOut() {
	m.mu.Lock()
	had := m.record != nil
	m.record = nil
	m.mu.Unlock()

	if had {
		if err := m.store.Delete(RecordKey); err != nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("delete session record", "err", err)
		}
	}
	if err := m.creds.Clear(); err != nil {
		slog.Warn("clear credentials on provider sign-out", "err", err)
	}
	m.tokens.Reset()
	if had && m.cfg.OnForcedLogout != nil {
		m.cfg.OnForcedLogout(ReasonProviderSignOut)
	}
}

// Close stops the recurring check and the provider subscription.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		if m.cancelState != nil {
			m.cancelState()
		}
	})
}

func (m *Manager) loadRecord() {
	raw, err := m.store.Read(RecordKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("read session record", "err", err)
		}
		return
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		slog.Warn("session record corrupt, dropping", "err", err)
		_ = m.store.Delete(RecordKey)
		return
	}
	m.mu.Lock()
	m.record = &rec
	m.mu.Unlock()
}

func (m *Manager) checkLoop() {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CheckNow(context.Background())
		case <-m.stop:
			return
		}
	}
}
