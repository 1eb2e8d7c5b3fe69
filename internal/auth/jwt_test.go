package auth

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	// Set a known test secret before any test runs. The sync.Once captures
	// this value on first call to ValidateSigningSecret.
	os.Setenv("HUB_TOKEN_SECRET", "test-token-secret-that-is-32-chars")
	os.Exit(m.Run())
}

func TestValidateSigningSecret(t *testing.T) {
	t.Run("valid secret from env", func(t *testing.T) {
		ResetSigningSecretForTest()
		t.Setenv("HUB_TOKEN_SECRET", "exactly-32-char-secret-for-test!!")
		if err := ValidateSigningSecret(); err != nil {
			t.Errorf("ValidateSigningSecret() unexpected error: %v", err)
		}
	})

	t.Run("missing secret fails", func(t *testing.T) {
		ResetSigningSecretForTest()
		t.Setenv("HUB_TOKEN_SECRET", "")
		if err := ValidateSigningSecret(); err == nil {
			t.Error("ValidateSigningSecret() expected error without secret, got nil")
		}
		ResetSigningSecretForTest()
	})
}

func TestSharedSecretVerifier(t *testing.T) {
	ResetSigningSecretForTest()
	t.Setenv("HUB_TOKEN_SECRET", "test-token-secret-that-is-32-chars")
	v, err := NewSharedSecretVerifier()
	if err != nil {
		t.Fatalf("NewSharedSecretVerifier() error: %v", err)
	}
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		token, err := SignToken(Identity{
			SubjectID:       "auth0|abc123",
			Role:            "admin",
			InviteValidated: true,
			Email:           "test@example.com",
		}, time.Hour)
		if err != nil {
			t.Fatalf("SignToken() error: %v", err)
		}

		id, err := v.Verify(ctx, token)
		if err != nil {
			t.Fatalf("Verify() error: %v", err)
		}
		if id.SubjectID != "auth0|abc123" {
			t.Errorf("SubjectID = %q, want %q", id.SubjectID, "auth0|abc123")
		}
		if id.Role != "admin" {
			t.Errorf("Role = %q, want %q", id.Role, "admin")
		}
		if !id.InviteValidated {
			t.Error("InviteValidated = false, want true")
		}
		if id.Email != "test@example.com" {
			t.Errorf("Email = %q", id.Email)
		}
	})

	t.Run("invite flag defaults to false", func(t *testing.T) {
		token, err := SignToken(Identity{SubjectID: "auth0|new"}, time.Hour)
		if err != nil {
			t.Fatalf("SignToken() error: %v", err)
		}
		id, err := v.Verify(ctx, token)
		if err != nil {
			t.Fatalf("Verify() error: %v", err)
		}
		if id.InviteValidated {
			t.Error("InviteValidated = true for token without the claim")
		}
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := SignToken(Identity{SubjectID: "auth0|abc"}, -time.Minute)
		if err != nil {
			t.Fatalf("SignToken() error: %v", err)
		}
		if _, err := v.Verify(ctx, token); err == nil {
			t.Error("Verify() accepted an expired token")
		}
	})

	t.Run("garbage token rejected with ErrInvalidToken", func(t *testing.T) {
		_, err := v.Verify(ctx, "not.a.token")
		if err == nil {
			t.Fatal("Verify() accepted garbage")
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("error %v does not wrap ErrInvalidToken", err)
		}
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		token, err := SignToken(Identity{SubjectID: "auth0|abc"}, time.Hour)
		if err != nil {
			t.Fatalf("SignToken() error: %v", err)
		}
		if _, err := v.Verify(ctx, token+"x"); err == nil {
			t.Error("Verify() accepted a tampered token")
		}
	})
}
