// resolver.go is the request-time decision path: given whatever credentials
// an inbound request carries, produce exactly one Decision.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/identity"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/safego"
)

// touchTimeout bounds the background last-used stamp so a slow store cannot
// pin goroutines.
const touchTimeout = 5 * time.Second

// Request carries the raw credentials extracted from an inbound request.
// Either field may be empty.
type Request struct {
	// APIKey is the raw secret from the X-API-Key header.
	APIKey string
	// Bearer is the raw token from the Authorization header.
	Bearer string
}

// Resolver turns request credentials into Decisions. The API-key path takes
// priority: when both credentials are present the bearer token is ignored
// entirely, even if the key turns out to be invalid.
type Resolver struct {
	keys     *Keys
	profiles *identity.Manager
	verifier TokenVerifier
}

// NewResolver creates a Resolver.
func NewResolver(keys *Keys, profiles *identity.Manager, verifier TokenVerifier) *Resolver {
	return &Resolver{keys: keys, profiles: profiles, verifier: verifier}
}

// Resolve produces the decision for one request. A nil error accompanies
// every Outcome including Unauthorized; errors mean the decision could not
// be made at all (store outage) and the caller must fail closed.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Decision, error) {
	if req.APIKey != "" {
		return r.resolveAPIKey(ctx, req.APIKey)
	}
	if req.Bearer != "" {
		return r.resolveToken(ctx, req.Bearer)
	}
	return Unauthorized(), nil
}

// resolveAPIKey authenticates by digest lookup. Unknown and revoked keys
// are indistinguishable to the caller.
func (r *Resolver) resolveAPIKey(ctx context.Context, secret string) (Decision, error) {
	digest := HashKeySecret(secret)
	key, err := r.keys.Lookup(ctx, digest)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve api key: %w", err)
	}
	if key == nil || key.Revoked() {
		return Unauthorized(), nil
	}

	profile, err := r.profiles.GetProfile(ctx, key.SubjectID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve api key: %w", err)
	}
	if profile == nil {
		// A key without a backing profile is an orphan, not a caller.
		slog.Warn("api key references missing profile",
			"key_id", key.KeyID, "subject_id", key.SubjectID)
		return Unauthorized(), nil
	}

	dc := DecisionContext{
		CredentialKind: CredentialAPIKey,
		KeyID:          key.KeyID,
		Scopes:         key.Scopes,
	}
	if profile.IsSuspended() {
		return Deny(profile.SubjectID, ReasonSuspendedAccount, dc), nil
	}

	r.touchAsync(digest, key.KeyID)
	return Allow(profile.SubjectID, profile.Role, dc), nil
}

// resolveToken authenticates by token verification, gates on invite
// validation, and lazily creates the profile on first sight of a subject.
// The invite gate runs before the suspension check: a subject who never
// finished onboarding gets the onboarding error even if an operator has
// also suspended the half-created account.
func (r *Resolver) resolveToken(ctx context.Context, rawToken string) (Decision, error) {
	id, err := r.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Unauthorized(), nil
	}

	dc := DecisionContext{CredentialKind: CredentialToken}
	if !id.InviteValidated {
		return Deny(id.SubjectID, ReasonInviteRequired, dc), nil
	}

	if err := r.profiles.EnsureProfile(ctx, id.SubjectID, identity.Seed{Role: id.Role}); err != nil {
		return Decision{}, fmt.Errorf("resolve token: %w", err)
	}
	profile, err := r.profiles.GetProfile(ctx, id.SubjectID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve token: %w", err)
	}
	if profile == nil {
		// Created-then-gone means the store lost the row between two reads.
		// The caller cannot be identified, so this is an authentication
		// failure, not an infrastructure one.
		slog.Warn("profile absent immediately after ensure", "subject_id", id.SubjectID)
		return Unauthorized(), nil
	}

	if profile.IsSuspended() {
		return Deny(profile.SubjectID, ReasonSuspendedAccount, dc), nil
	}
	return Allow(profile.SubjectID, profile.Role, dc), nil
}

// touchAsync stamps the key's last-used time in the background. The request
// never waits on it and a failure only logs.
func (r *Resolver) touchAsync(digest, keyID string) {
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := r.keys.TouchLastUsed(ctx, digest); err != nil {
			slog.Debug("last-used stamp failed", "key_id", keyID, "error", err)
		}
	})
}
