package identitytest

import (
	"context"
	"sync"

	"github.com/federicoroldos/sofull-site/internal/client/identity"
)

// Fake is a scriptable identity provider for tests. It records every
// request and answers from the configured hooks.
type Fake struct {
	mu sync.Mutex

	// SignInFunc answers SignIn calls; nil returns an empty credential.
	SignInFunc func(req identity.SignInRequest) (*identity.Credential, error)
	// SignOutErr is returned from SignOut.
	SignOutErr error

	signIns   []identity.SignInRequest
	signOuts  int
	listeners []func(bool)
}

var _ identity.Provider = (*Fake)(nil)

func (f *Fake) SignIn(_ context.Context, req identity.SignInRequest) (*identity.Credential, error) {
	f.mu.Lock()
	f.signIns = append(f.signIns, req)
	fn := f.SignInFunc
	f.mu.Unlock()
	if fn == nil {
		return &identity.Credential{AccessToken: "token"}, nil
	}
	return fn(req)
}

func (f *Fake) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return f.SignOutErr
}

func (f *Fake) OnStateChanged(fn func(signedIn bool)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
	return func() {}
}

// SignIns returns a copy of the recorded sign-in requests.
func (f *Fake) SignIns() []identity.SignInRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]identity.SignInRequest, len(f.signIns))
	copy(out, f.signIns)
	return out
}

// SignOuts returns how many times SignOut was called.
func (f *Fake) SignOuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOuts
}

// EmitStateChange invokes all registered listeners.
func (f *Fake) EmitStateChange(signedIn bool) {
	f.mu.Lock()
	ls := append([]func(bool){}, f.listeners...)
	f.mu.Unlock()
	for _, fn := range ls {
		fn(signedIn)
	}
}
