// Package auth - jwt.go verifies shared-secret bearer tokens, including lazy
// secret initialization and claims parsing. This is the token mode for
// single-deployment installs; multi-tenant installs use the oidc verifier.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// signingSecret holds the validated shared secret
	signingSecret     string
	signingSecretOnce sync.Once
	signingSecretErr  error
)

// Claims is the JWT claims structure the hub issues and accepts.
type Claims struct {
	Role            string `json:"role,omitempty"`
	InviteValidated bool   `json:"invite_validated,omitempty"`
	Email           string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ValidateSigningSecret checks that the shared token secret is configured.
// Call this at application startup; verification fails fast afterwards.
func ValidateSigningSecret() error {
	signingSecretOnce.Do(func() {
		secret := os.Getenv("HUB_TOKEN_SECRET")
		if secret == "" {
			signingSecretErr = errors.New("HUB_TOKEN_SECRET environment variable is required " +
				"when auth.token.mode is shared_secret. Generate one with: openssl rand -hex 32")
			return
		}
		if len(secret) < 32 {
			slog.Warn("HUB_TOKEN_SECRET is shorter than the recommended 32 characters")
		}
		signingSecret = secret
	})
	return signingSecretErr
}

// ResetSigningSecretForTest clears the cached secret so tests can exercise
// different HUB_TOKEN_SECRET values. Tests only.
func ResetSigningSecretForTest() {
	signingSecret = ""
	signingSecretErr = nil
	signingSecretOnce = sync.Once{}
}

// SignToken mints an HS256 token for an identity. Used by the dev token
// subcommand and by tests; production tokens normally come from the
// identity provider.
func SignToken(id Identity, expiresIn time.Duration) (string, error) {
	if err := ValidateSigningSecret(); err != nil {
		return "", err
	}
	if expiresIn == 0 {
		expiresIn = 1 * time.Hour
	}
	claims := &Claims{
		Role:            id.Role,
		InviteValidated: id.InviteValidated,
		Email:           id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "ai-learning-hub",
			Subject:   id.SubjectID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingSecret))
}

// SharedSecretVerifier verifies HS256 tokens signed with the deployment's
// shared secret. It implements TokenVerifier.
type SharedSecretVerifier struct{}

// NewSharedSecretVerifier validates the secret and returns the verifier.
func NewSharedSecretVerifier() (*SharedSecretVerifier, error) {
	if err := ValidateSigningSecret(); err != nil {
		return nil, err
	}
	return &SharedSecretVerifier{}, nil
}

// Verify parses and validates a token, mapping its claims to an Identity.
func (v *SharedSecretVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	claims, err := parseClaims(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &Identity{
		SubjectID:       claims.Subject,
		Role:            claims.Role,
		InviteValidated: claims.InviteValidated,
		Email:           claims.Email,
	}, nil
}

func parseClaims(rawToken string) (*Claims, error) {
	if err := ValidateSigningSecret(); err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(rawToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(signingSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub claim")
	}
	return claims, nil
}
