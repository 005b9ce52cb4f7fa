package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/federicoroldos/sofull-site/internal/domain"
)

const (
	// CurrentKey holds the v2 credential entry.
	CurrentKey = "credential.v2"
	// LegacyKey is the pre-versioning storage key still found on devices
	// that last signed in before the schema change.
	LegacyKey = "credential"

	schemaVersion = 2
)

// Entry is the persisted credential record. ExpiresAtMs is nil when the
// identity provider reported no lifetime; readers then derive an implicit
// expiry from StoredAtMs plus the default TTL.
type Entry struct {
	Version    int    `json:"v"`
	Token      string `json:"token"`
	StoredAtMs int64  `json:"stored_at_ms"`
	ExpiresAtMs *int64 `json:"expires_at_ms,omitempty"`
}

// ExpiresAt resolves the entry's effective expiry.
func (e *Entry) ExpiresAt(defaultTTL time.Duration) time.Time {
	if e.ExpiresAtMs != nil {
		return time.UnixMilli(*e.ExpiresAtMs)
	}
	return time.UnixMilli(e.StoredAtMs).Add(defaultTTL)
}

// legacyEntry is the pre-versioning shape: a bare token plus its write
// instant, lifetime always implicit.
type legacyEntry struct {
	Token string `json:"token"`
	TS    int64  `json:"ts"`
}

// migrateLegacy converts a legacy raw value to a v2 entry, or nil when the
// value is unparseable or past its implicit validity window. Pure.
func migrateLegacy(raw []byte, defaultTTL time.Duration, now time.Time) *Entry {
	var legacy legacyEntry
	if err := json.Unmarshal(raw, &legacy); err != nil || legacy.Token == "" {
		return nil
	}
	if now.Sub(time.UnixMilli(legacy.TS)) >= defaultTTL {
		return nil
	}
	return &Entry{
		Version:    schemaVersion,
		Token:      legacy.Token,
		StoredAtMs: legacy.TS,
	}
}

// CredentialStore owns the persisted credential entry: one current entry per
// storage scope, superseded atomically on refresh, deleted on sign-out.
type CredentialStore struct {
	store      Store
	defaultTTL time.Duration
	now        func() time.Time
}

func NewCredentialStore(store Store, defaultTTL time.Duration) *CredentialStore {
	return &CredentialStore{store: store, defaultTTL: defaultTTL, now: time.Now}
}

// Load returns the current entry, migrating a still-valid legacy entry
// forward on the way. Migration is write-current-then-delete-legacy, in that
// fixed order, and idempotent, so racing readers converge without locking.
func (c *CredentialStore) Load() (*Entry, error) {
	if raw, err := c.store.Read(CurrentKey); err == nil {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("credential entry corrupt: %w", err)
		}
		return &e, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	raw, err := c.store.Read(LegacyKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoCredential
		}
		return nil, err
	}

	entry := migrateLegacy([]byte(raw), c.defaultTTL, c.now())
	if entry == nil {
		// Expired or unreadable: drop it, nothing to migrate.
		if err := c.store.Delete(LegacyKey); err != nil {
			slog.Warn("drop expired legacy credential", "err", err)
		}
		return nil, domain.ErrNoCredential
	}

	if err := c.Save(entry); err != nil {
		return nil, err
	}
	if err := c.store.Delete(LegacyKey); err != nil {
		slog.Warn("delete legacy credential after migration", "err", err)
	}
	return entry, nil
}

// Save persists the entry under the current key, superseding any prior one.
func (c *CredentialStore) Save(e *Entry) error {
	e.Version = schemaVersion
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.store.Write(CurrentKey, string(raw))
}

// Clear removes both current and legacy entries.
func (c *CredentialStore) Clear() error {
	err1 := c.store.Delete(CurrentKey)
	err2 := c.store.Delete(LegacyKey)
	if err1 != nil {
		return err1
	}
	return err2
}

// Subscribe forwards change notifications for the credential keys.
func (c *CredentialStore) Subscribe(fn func()) (cancel func()) {
	return c.store.Subscribe(func(key string) {
		if key == CurrentKey || key == LegacyKey {
			fn()
		}
	})
}
