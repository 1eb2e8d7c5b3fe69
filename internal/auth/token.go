package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is the uniform verification failure. Verifiers wrap the
// underlying cause but callers only branch on this sentinel; the specific
// failure must not leak to an unauthenticated caller.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the claim set a verifier extracts from a valid bearer token.
type Identity struct {
	// SubjectID is the provider-scoped stable identifier of the caller.
	SubjectID string

	// Role is the asserted role claim; empty when the token carries none.
	Role string

	// InviteValidated is true once the identity provider has recorded a
	// completed invite redemption for this subject.
	InviteValidated bool

	// Email is informational only and never used for authorization.
	Email string
}

// TokenVerifier checks a raw bearer token and extracts the caller's
// identity. Implementations must return ErrInvalidToken (possibly wrapped)
// for any token that fails verification.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}
