// Package invites implements single-use onboarding codes: generation,
// revocation, and atomic idempotent redemption.
//
// A code's redeemedBy field transitions at most once, from absent to a fixed
// subject, and only through the conditional update in Redeem. A repeat
// redemption by the subject that already holds the code is success without a
// write, which keeps multi-step onboarding flows safely retryable.
package invites

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
)

// Code length bounds. Generated codes are uppercase alphanumeric.
const (
	MinCodeLength = 8
	MaxCodeLength = 16
)

// codeAlphabet excludes nothing; codes are not meant to be typed from paper,
// they are pasted.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateAttempts bounds collision retries on code generation.
const generateAttempts = 5

var (
	// ErrNotFound reports an unknown invite code.
	ErrNotFound = errors.New("invites: code not found")

	// ErrRedeemedByOther reports a code already redeemed by a different
	// subject.
	ErrRedeemedByOther = errors.New("invites: code already redeemed by another subject")

	// ErrRevoked reports a revoked code.
	ErrRevoked = errors.New("invites: code revoked")

	// ErrExpired reports an expired code.
	ErrExpired = errors.New("invites: code expired")

	// ErrAlreadyRedeemed reports an attempt to revoke a redeemed code.
	ErrAlreadyRedeemed = errors.New("invites: code already redeemed")
)

// Invite is a single-use onboarding token.
type Invite struct {
	Code        string     `json:"code"`
	GeneratedBy string     `json:"generated_by"`
	GeneratedAt time.Time  `json:"generated_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsRevoked   bool       `json:"is_revoked,omitempty"`
	RedeemedBy  string     `json:"redeemed_by,omitempty"`
	RedeemedAt  *time.Time `json:"redeemed_at,omitempty"`
}

// Usability is the outcome of the pure validation decision.
type Usability int

const (
	UsabilityValid Usability = iota
	UsabilityRedeemedBySelf
	UsabilityRedeemedByOther
	UsabilityRevoked
	UsabilityExpired
)

func (u Usability) String() string {
	switch u {
	case UsabilityValid:
		return "valid"
	case UsabilityRedeemedBySelf:
		return "redeemed_by_self"
	case UsabilityRedeemedByOther:
		return "redeemed_by_other"
	case UsabilityRevoked:
		return "revoked"
	case UsabilityExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ValidateUsability decides whether subjectID may use the invite at time
// now. Self-redemption short-circuits before the revoked and expired checks:
// a subject that already holds the code must not be blocked by the code
// later expiring or being revoked.
func ValidateUsability(inv *Invite, subjectID string, now time.Time) Usability {
	if inv.RedeemedBy != "" {
		if inv.RedeemedBy == subjectID {
			return UsabilityRedeemedBySelf
		}
		return UsabilityRedeemedByOther
	}
	if inv.IsRevoked {
		return UsabilityRevoked
	}
	if inv.ExpiresAt != nil && now.After(*inv.ExpiresAt) {
		return UsabilityExpired
	}
	return UsabilityValid
}

// usabilityError maps a non-valid usability to its taxonomy error.
func usabilityError(u Usability) error {
	switch u {
	case UsabilityRedeemedByOther:
		return ErrRedeemedByOther
	case UsabilityRevoked:
		return ErrRevoked
	case UsabilityExpired:
		return ErrExpired
	default:
		return fmt.Errorf("invites: unexpected usability %s", u)
	}
}

// Store combines the atomic contract with the set index used to list the
// codes a subject generated. Index maintenance is best-effort; the code row
// alone decides redeemability.
type Store interface {
	store.Store
	store.SetStore
}

// Engine performs invite operations over the atomic store.
type Engine struct {
	store Store
	now   func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(s Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func inviteKey(code string) string {
	return "invite:" + code
}

func generatorKey(subject string) string {
	return "invites:generated_by:" + subject
}

// Lookup returns the invite for code, or nil when none exists.
func (e *Engine) Lookup(ctx context.Context, code string) (*Invite, error) {
	raw, err := e.store.Get(ctx, inviteKey(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup invite: %w", err)
	}
	var inv Invite
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("decode invite: %w", err)
	}
	return &inv, nil
}

// Redeem assigns the code to subjectID. The write is conditional on the code
// existing, being unredeemed, and not revoked; expiry is checked before the
// write but deliberately not part of the predicate. If the conditional write
// loses a race, the record is re-fetched and re-validated so the caller gets
// the accurate reason (someone else redeemed it vs. it got revoked), not a
// generic conflict.
//
// Redeeming a code this subject already holds is success without any write.
func (e *Engine) Redeem(ctx context.Context, code, subjectID string) (*Invite, error) {
	inv, err := e.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}

	switch u := ValidateUsability(inv, subjectID, e.now()); u {
	case UsabilityValid:
		// fall through to the conditional write
	case UsabilityRedeemedBySelf:
		return inv, nil
	default:
		return nil, usabilityError(u)
	}

	updated, err := e.conditionalRedeem(ctx, code, subjectID)
	if errors.Is(err, store.ErrConditionFailed) {
		// Lost the race. Re-fetch to report what actually happened.
		inv, lerr := e.Lookup(ctx, code)
		if lerr != nil {
			return nil, lerr
		}
		if inv == nil {
			return nil, ErrNotFound
		}
		switch u := ValidateUsability(inv, subjectID, e.now()); u {
		case UsabilityRedeemedBySelf:
			return inv, nil
		case UsabilityValid:
			// Predicate failed yet the record validates. Transient state
			// we cannot explain; surface the conflict as a store problem.
			return nil, fmt.Errorf("redeem invite: %w", err)
		default:
			return nil, usabilityError(u)
		}
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (e *Engine) conditionalRedeem(ctx context.Context, code, subjectID string) (*Invite, error) {
	var updated Invite
	_, err := e.store.Update(ctx, inviteKey(code), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrConditionFailed
		}
		var inv Invite
		if err := json.Unmarshal(current, &inv); err != nil {
			return nil, fmt.Errorf("decode invite: %w", err)
		}
		if inv.RedeemedBy != "" || inv.IsRevoked {
			return nil, store.ErrConditionFailed
		}
		now := e.now().UTC()
		inv.RedeemedBy = subjectID
		inv.RedeemedAt = &now
		updated = inv
		return json.Marshal(inv)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Generate creates and stores a fresh invite code of the given length,
// clamped to [MinCodeLength, MaxCodeLength]. ttl of zero means the code
// never expires. Collisions with existing codes are retried with a new
// random code.
func (e *Engine) Generate(ctx context.Context, generatedBy string, length int, ttl time.Duration) (*Invite, error) {
	if length < MinCodeLength {
		length = MinCodeLength
	}
	if length > MaxCodeLength {
		length = MaxCodeLength
	}

	for attempt := 0; attempt < generateAttempts; attempt++ {
		code, err := randomCode(length)
		if err != nil {
			return nil, err
		}
		now := e.now().UTC()
		inv := Invite{
			Code:        code,
			GeneratedBy: generatedBy,
			GeneratedAt: now,
		}
		if ttl > 0 {
			exp := now.Add(ttl)
			inv.ExpiresAt = &exp
		}
		raw, err := json.Marshal(inv)
		if err != nil {
			return nil, fmt.Errorf("encode invite: %w", err)
		}
		err = e.store.PutIfAbsent(ctx, inviteKey(code), raw)
		if errors.Is(err, store.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("generate invite: %w", err)
		}
		if err := e.store.SetAdd(ctx, generatorKey(generatedBy), code); err != nil {
			return nil, fmt.Errorf("index invite: %w", err)
		}
		return &inv, nil
	}
	return nil, errors.New("invites: could not generate a unique code")
}

// ListByGenerator returns every invite the subject generated, in no
// particular order. Redeemed and revoked codes are included.
func (e *Engine) ListByGenerator(ctx context.Context, generatedBy string) ([]*Invite, error) {
	codes, err := e.store.SetMembers(ctx, generatorKey(generatedBy))
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	out := make([]*Invite, 0, len(codes))
	for _, code := range codes {
		inv, err := e.Lookup(ctx, code)
		if err != nil {
			return nil, err
		}
		if inv != nil {
			out = append(out, inv)
		}
	}
	return out, nil
}

// Revoke marks an unredeemed code revoked. Revoking a redeemed code fails
// with ErrAlreadyRedeemed; revoking an already revoked code is a no-op.
func (e *Engine) Revoke(ctx context.Context, code string) (*Invite, error) {
	var updated Invite
	_, err := e.store.Update(ctx, inviteKey(code), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var inv Invite
		if err := json.Unmarshal(current, &inv); err != nil {
			return nil, fmt.Errorf("decode invite: %w", err)
		}
		if inv.RedeemedBy != "" {
			return nil, ErrAlreadyRedeemed
		}
		inv.IsRevoked = true
		updated = inv
		return json.Marshal(inv)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyRedeemed) {
			return nil, err
		}
		return nil, fmt.Errorf("revoke invite: %w", err)
	}
	return &updated, nil
}

// randomCode draws length characters from codeAlphabet using crypto/rand.
func randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invite code: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}
