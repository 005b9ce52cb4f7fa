package google

import (
	"context"
	"fmt"

	"github.com/federicoroldos/sofull-site/internal/domain"
	"google.golang.org/api/idtoken"
)

// Verifier verifies Google ID tokens against a specific client ID.
type Verifier struct {
	clientID string
}

func NewVerifier(clientID string) *Verifier {
	return &Verifier{clientID: clientID}
}

// Verify validates the identity assertion and returns the extracted identity.
// The auth_time claim is the instant the underlying sign-in occurred; it is
// optional and reported in epoch seconds, converted here to milliseconds.
// Returns a domain.ErrUnauthorized-wrapped error if the token is invalid.
func (v *Verifier) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	p, err := idtoken.Validate(ctx, token, v.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid identity assertion: %w", domain.ErrUnauthorized)
	}
	email, _ := p.Claims["email"].(string)
	name, _ := p.Claims["name"].(string)

	ident := &domain.Identity{
		UID:         p.Subject,
		Email:       email,
		DisplayName: name,
	}
	if at, ok := p.Claims["auth_time"].(float64); ok {
		ms := int64(at) * 1000
		ident.AuthTimeMs = &ms
	}
	return ident, nil
}
