// Package token owns the access-token lifecycle: acquisition, expiry,
// silent and interactive refresh, scope escalation, and cross-writer
// invalidation. All state transitions are idempotent so the advisory
// timers and storage notifications can fire redundantly without harm.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/federicoroldos/sofull-site/internal/client/credstore"
	"github.com/federicoroldos/sofull-site/internal/client/identity"
	"github.com/federicoroldos/sofull-site/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// State is a snapshot of the in-memory token state. Expired true implies
// AccessToken empty; an expired token only becomes valid again through a
// successful refresh round trip, never by the passage of time.
type State struct {
	AccessToken string
	ExpiresAt   time.Time
	Expired     bool
}

// Options modify one GetAccessToken call.
type Options struct {
	// Interactive permits user-facing consent UI. Non-interactive calls
	// never prompt and return the best available token on failure.
	Interactive bool
	// ForceRefresh bypasses the cached token.
	ForceRefresh bool
	// RequireElevatedScope requests the elevated scope set in addition to
	// the baseline. Once granted, elevation is sticky until sign-out.
	RequireElevatedScope bool
}

// Config tunes the manager.
type Config struct {
	BaseScopes     []string
	ElevatedScopes []string

	// DefaultTTL is the assumed token lifetime when the provider reports
	// none. Also the fallback for cached entries missing expiry metadata.
	DefaultTTL time.Duration
	// RefreshAhead is how long before expiry the proactive refresh fires.
	RefreshAhead time.Duration
	// PollInterval is the drift-check cadence; zero disables the poll.
	PollInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.DefaultTTL == 0 {
		c.DefaultTTL = time.Hour
	}
	if c.RefreshAhead == 0 {
		c.RefreshAhead = 5 * time.Minute
	}
}

// Manager coordinates token acquisition and expiry for one signed-in user.
type Manager struct {
	provider identity.Provider
	creds    *credstore.CredentialStore
	cfg      Config
	now      func() time.Time

	mu       sync.Mutex
	state    State
	elevated bool

	group singleflight.Group

	refreshTimer *time.Timer
	stopPoll     chan struct{}
	unsubscribe  func()
	closeOnce    sync.Once
}

func NewManager(provider identity.Provider, creds *credstore.CredentialStore, cfg Config) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		provider: provider,
		creds:    creds,
		cfg:      cfg,
		now:      time.Now,
		stopPoll: make(chan struct{}),
	}
	m.adoptStored()
	// Async so a notification arriving mid-install cannot deadlock.
	m.unsubscribe = creds.Subscribe(func() { go m.Reconcile() })
	if cfg.PollInterval > 0 {
		go m.pollLoop()
	}
	return m
}

// GetAccessToken returns a valid bearer token, refreshing when necessary.
// A non-expired cached token is returned immediately unless a force or a
// not-yet-granted elevation demands a round trip. Silent refresh failures
// are never fatal: the previous token is returned while nominally valid,
// otherwise the empty string, and the caller prompts re-authentication.
func (m *Manager) GetAccessToken(ctx context.Context, opts Options) (string, error) {
	m.mu.Lock()
	needElevation := opts.RequireElevatedScope && !m.elevated
	if !opts.ForceRefresh && !needElevation && m.validLocked() {
		tok := m.state.AccessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()

	return m.refresh(ctx, opts.Interactive, opts.RequireElevatedScope)
}

// Refresh requests a new token. The silent path never prompts; the
// interactive path may, and may carry the elevated scope set.
func (m *Manager) Refresh(ctx context.Context, interactive bool) (string, error) {
	return m.refresh(ctx, interactive, false)
}

// Adopt installs a credential obtained outside the manager, typically the
// application's own interactive sign-in flow.
func (m *Manager) Adopt(cred *identity.Credential) {
	m.install(cred, false)
}

// BaseScopes returns the configured baseline scope set.
func (m *Manager) BaseScopes() []string {
	return append([]string(nil), m.cfg.BaseScopes...)
}

// Expire invalidates the current token immediately, independent of the
// expiry timer.
func (m *Manager) Expire() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markExpiredLocked()
}

// Reset clears the token state and any scope elevation. Called at
// sign-out: elevation is a per-session grant and must not leak into the
// next signed-in user's refreshes.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markExpiredLocked()
	m.elevated = false
}

// State returns a snapshot of the current token state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Elevated reports whether the elevated scope grant is active.
func (m *Manager) Elevated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elevated
}

// CheckNow recomputes expiry from the wall clock, catching drift from
// system clock changes or a long-suspended process. Firing it redundantly
// is a no-op when state is already consistent.
func (m *Manager) CheckNow() {
	m.mu.Lock()
	stale := m.state.AccessToken != "" && !m.now().Before(m.state.ExpiresAt)
	if stale {
		m.markExpiredLocked()
	}
	m.mu.Unlock()
	if stale {
		if _, err := m.refresh(context.Background(), false, false); err != nil {
			slog.Warn("drift-triggered refresh failed", "err", err)
		}
	}
}

// Reconcile re-reads persisted state and converges on it: another writer
// (a second tab, another process) may have refreshed or cleared the
// credential. Recomputing expiry from stored data is always safe, so no
// lock is shared with the writer.
func (m *Manager) Reconcile() {
	entry, err := m.creds.Load()
	if err != nil {
		if errors.Is(err, domain.ErrNoCredential) {
			m.Expire()
		}
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	expiresAt := entry.ExpiresAt(m.cfg.DefaultTTL)
	if !m.now().Before(expiresAt) {
		m.markExpiredLocked()
		return
	}
	m.state = State{AccessToken: entry.Token, ExpiresAt: expiresAt}
	m.armRefreshLocked()
}

// Close stops the timers and the storage subscription.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopPoll)
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		m.mu.Lock()
		if m.refreshTimer != nil {
			m.refreshTimer.Stop()
		}
		m.mu.Unlock()
	})
}

func (m *Manager) validLocked() bool {
	return m.state.AccessToken != "" && !m.state.Expired && m.now().Before(m.state.ExpiresAt)
}

func (m *Manager) markExpiredLocked() {
	m.state = State{Expired: true}
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

// refresh coalesces concurrent callers onto one in-flight provider round
// trip per mode, so a burst of token requests produces a single network
// call and at most one consent prompt.
func (m *Manager) refresh(ctx context.Context, interactive, elevate bool) (string, error) {
	key := "silent"
	if interactive {
		key = "interactive"
	}
	if elevate {
		key += "+scope"
	}
	tok, err, _ := m.group.Do(key, func() (interface{}, error) {
		return m.doRefresh(ctx, interactive, elevate)
	})
	if err != nil {
		return "", err
	}
	return tok.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context, interactive, elevate bool) (string, error) {
	m.mu.Lock()
	scopes := append([]string(nil), m.cfg.BaseScopes...)
	if elevate || m.elevated {
		scopes = append(scopes, m.cfg.ElevatedScopes...)
	}
	m.mu.Unlock()

	cred, err := m.provider.SignIn(ctx, identity.SignInRequest{Interactive: interactive, Scopes: scopes})
	if err != nil {
		if interactive {
			return "", fmt.Errorf("interactive sign-in: %w", err)
		}
		if errors.Is(err, identity.ErrInteractionRequired) {
			slog.Info("silent refresh requires user interaction")
		} else {
			slog.Warn("silent token refresh failed", "err", err)
		}
		return m.afterSilentFailure(), nil
	}
	return m.install(cred, elevate), nil
}

// afterSilentFailure leaves a nominally valid token alone and only marks
// expiry when the deadline has concretely passed.
func (m *Manager) afterSilentFailure() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.AccessToken != "" {
		if m.now().Before(m.state.ExpiresAt) {
			return m.state.AccessToken
		}
		m.markExpiredLocked()
	}
	return ""
}

// install persists and adopts a fresh credential. The provider-reported
// lifetime (or the token's own exp claim) wins for the stored expiry; when
// neither is available the entry is stored without expiry metadata and the
// default TTL applies implicitly on every read.
func (m *Manager) install(cred *identity.Credential, elevate bool) string {
	now := m.now()
	var expiresAt time.Time
	reported := false
	switch {
	case cred.ExpiresIn > 0:
		expiresAt = now.Add(cred.ExpiresIn)
		reported = true
	default:
		if exp, ok := tokenExpiry(cred.AccessToken); ok {
			expiresAt = exp
			reported = true
		} else {
			expiresAt = now.Add(m.cfg.DefaultTTL)
		}
	}

	entry := &credstore.Entry{Token: cred.AccessToken, StoredAtMs: now.UnixMilli()}
	if reported {
		ms := expiresAt.UnixMilli()
		entry.ExpiresAtMs = &ms
	}
	if err := m.creds.Save(entry); err != nil {
		slog.Warn("persist credential failed", "err", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{AccessToken: cred.AccessToken, ExpiresAt: expiresAt}
	if elevate && scopesGranted(cred.GrantedScopes, m.cfg.ElevatedScopes) {
		m.elevated = true
	}
	m.armRefreshLocked()
	return cred.AccessToken
}

// adoptStored seeds in-memory state from a previously persisted entry.
func (m *Manager) adoptStored() {
	entry, err := m.creds.Load()
	if err != nil {
		return
	}
	expiresAt := entry.ExpiresAt(m.cfg.DefaultTTL)
	if !m.now().Before(expiresAt) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{AccessToken: entry.Token, ExpiresAt: expiresAt}
	m.armRefreshLocked()
}

func (m *Manager) armRefreshLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
	}
	d := m.state.ExpiresAt.Add(-m.cfg.RefreshAhead).Sub(m.now())
	if d <= 0 {
		return
	}
	m.refreshTimer = time.AfterFunc(d, func() {
		if _, err := m.refresh(context.Background(), false, false); err != nil {
			slog.Warn("scheduled refresh failed", "err", err)
		}
	})
}

func (m *Manager) pollLoop() {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CheckNow()
		case <-m.stopPoll:
			return
		}
	}
}

// scopesGranted reports whether all wanted scopes appear in granted. An
// empty granted list means the provider did not enumerate grants; assume
// the request was honored.
func scopesGranted(granted, wanted []string) bool {
	if len(granted) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range wanted {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// tokenExpiry pulls the exp claim from a JWT-shaped access token without
// verifying the signature; only the local expiry schedule depends on it.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
