// Package client assembles the sign-in session context: credential
// storage, token lifecycle, session lifecycle, and the auth-event
// notifier, constructed explicitly at application startup and torn down
// with Close. Nothing here is a package-level singleton; the owning
// application decides the lifetime.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/federicoroldos/sofull-site/internal/client/credstore"
	"github.com/federicoroldos/sofull-site/internal/client/identity"
	"github.com/federicoroldos/sofull-site/internal/client/notifier"
	"github.com/federicoroldos/sofull-site/internal/client/session"
	"github.com/federicoroldos/sofull-site/internal/client/token"
)

// Config assembles one session context.
type Config struct {
	Platform     credstore.Platform
	StorageDir   string
	DeviceSecret string

	// AuthEventsURL is the dispatch endpoint; empty disables notification.
	AuthEventsURL string
	HTTPClient    *http.Client

	Token   token.Config
	Session session.Config

	// DefaultTokenTTL is the assumed credential lifetime when the provider
	// reports none. Defaults to one hour.
	DefaultTokenTTL time.Duration
}

// Client is the constructed session context.
type Client struct {
	Creds    *credstore.CredentialStore
	Tokens   *token.Manager
	Sessions *session.Manager
	Notifier *notifier.Notifier

	provider identity.Provider
}

// New wires the client for the given platform. The caller owns the
// returned Client and must Close it at shutdown.
func New(provider identity.Provider, cfg Config) (*Client, error) {
	if cfg.DefaultTokenTTL == 0 {
		cfg.DefaultTokenTTL = time.Hour
	}
	store, err := credstore.Select(cfg.Platform, cfg.StorageDir, cfg.DeviceSecret)
	if err != nil {
		return nil, fmt.Errorf("select credential backend: %w", err)
	}
	creds := credstore.NewCredentialStore(store, cfg.DefaultTokenTTL)
	if cfg.Token.DefaultTTL == 0 {
		cfg.Token.DefaultTTL = cfg.DefaultTokenTTL
	}
	tokens := token.NewManager(provider, creds, cfg.Token)
	sessions := session.NewManager(store, creds, tokens, provider, cfg.Session)

	c := &Client{
		Creds:    creds,
		Tokens:   tokens,
		Sessions: sessions,
		provider: provider,
	}
	if cfg.AuthEventsURL != "" {
		c.Notifier = notifier.New(cfg.AuthEventsURL, cfg.HTTPClient)
	}
	return c, nil
}

// SignIn runs an interactive sign-in, starts the session, and reports the
// auth event best-effort.
func (c *Client) SignIn(ctx context.Context, ev notifier.Event) error {
	cred, err := c.provider.SignIn(ctx, identity.SignInRequest{Interactive: true, Scopes: c.Tokens.BaseScopes()})
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	c.Tokens.Adopt(cred)
	if _, err := c.Sessions.StartSession(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if c.Notifier != nil {
		if ev.IDToken == "" {
			ev.IDToken = cred.IDToken
		}
		c.Notifier.Notify(ctx, ev)
	}
	return nil
}

// SignOut tears the session down, wiping local state even when the
// provider call fails.
func (c *Client) SignOut(ctx context.Context, reason string) {
	c.Sessions.ForceLogout(ctx, reason)
}

// Close stops the background watchers. It does not sign the user out.
func (c *Client) Close() {
	c.Sessions.Close()
	c.Tokens.Close()
}
