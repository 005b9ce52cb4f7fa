package identity

import (
	"context"
	"errors"
	"time"
)

// ErrInteractionRequired is returned by providers when a silent sign-in
// cannot complete without showing consent UI.
var ErrInteractionRequired = errors.New("user interaction required")

// Credential is the result of one sign-in round trip with the identity
// provider.
type Credential struct {
	AccessToken string
	IDToken     string

	// ExpiresIn is the provider-reported token lifetime; zero means the
	// provider did not report one.
	ExpiresIn time.Duration

	GrantedScopes []string
}

// SignInRequest describes one token acquisition. Interactive permits
// user-facing consent UI; a non-interactive request must never prompt.
type SignInRequest struct {
	Interactive bool
	Scopes      []string
}

// Provider is the third-party identity provider surface the lifecycle
// managers consume.
type Provider interface {
	SignIn(ctx context.Context, req SignInRequest) (*Credential, error)
	SignOut(ctx context.Context) error
	// OnStateChanged registers a listener for provider-side sign-in state
	// transitions. The returned func cancels the registration.
	OnStateChanged(fn func(signedIn bool)) (cancel func())
}
