// Package identity manages the durable per-subject account record (the
// Profile) and its lifecycle: lazy creation on first authentication,
// suspension, and role changes.
//
// Profiles are created exactly once per subject. Creation is conditioned on
// absence via the store's PutIfAbsent, so any number of concurrent first
// authentications for the same subject produce a single row with a single
// creation timestamp; every other caller observes already-exists and treats
// it as success.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
)

// DefaultRole is assigned when neither the seed attributes nor the token
// metadata carry a role.
const DefaultRole = "user"

// ErrNotFound reports an operation on a subject with no Profile row.
var ErrNotFound = errors.New("identity: profile not found")

// Profile is the durable account record for a subject. A present
// SuspendedAt means the account is suspended. Profiles are never hard
// deleted by this core.
type Profile struct {
	SubjectID   string     `json:"subject_id"`
	Role        string     `json:"role"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsSuspended reports whether the account is suspended.
func (p *Profile) IsSuspended() bool {
	return p != nil && p.SuspendedAt != nil
}

// Seed holds the attributes a first authentication may contribute to a
// freshly created Profile.
type Seed struct {
	Role string
}

// Manager implements the profile lifecycle over the atomic store.
type Manager struct {
	store store.Store
	now   func() time.Time
}

// NewManager creates a Manager.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func profileKey(subjectID string) string {
	return "profile:" + subjectID
}

// GetProfile returns the Profile for subjectID, or nil when none exists.
// Pure read, no side effects.
func (m *Manager) GetProfile(ctx context.Context, subjectID string) (*Profile, error) {
	raw, err := m.store.Get(ctx, profileKey(subjectID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", subjectID, err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", subjectID, err)
	}
	return &p, nil
}

// EnsureProfile creates the Profile for subjectID if it does not exist.
// An existing row is success, not a conflict, so the call is safe on every
// authentication, not just the first. Of N concurrent calls for the same
// subject exactly one writes; the row is never re-created or modified here.
func (m *Manager) EnsureProfile(ctx context.Context, subjectID string, seed Seed) error {
	role := seed.Role
	if role == "" {
		role = DefaultRole
	}
	now := m.now().UTC()
	p := Profile{
		SubjectID: subjectID,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", subjectID, err)
	}
	err = m.store.PutIfAbsent(ctx, profileKey(subjectID), raw)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ensure profile %s: %w", subjectID, err)
	}
	return nil
}

// Suspend marks the subject's account suspended. Suspending an already
// suspended account is a no-op that returns the current row.
func (m *Manager) Suspend(ctx context.Context, subjectID string) (*Profile, error) {
	return m.mutate(ctx, subjectID, func(p *Profile, now time.Time) {
		if p.SuspendedAt == nil {
			p.SuspendedAt = &now
		}
	})
}

// Unsuspend clears the suspension marker.
func (m *Manager) Unsuspend(ctx context.Context, subjectID string) (*Profile, error) {
	return m.mutate(ctx, subjectID, func(p *Profile, _ time.Time) {
		p.SuspendedAt = nil
	})
}

// SetRole replaces the subject's role.
func (m *Manager) SetRole(ctx context.Context, subjectID, role string) (*Profile, error) {
	return m.mutate(ctx, subjectID, func(p *Profile, _ time.Time) {
		p.Role = role
	})
}

// mutate applies change under a conditional update guarded on row existence.
func (m *Manager) mutate(ctx context.Context, subjectID string, change func(*Profile, time.Time)) (*Profile, error) {
	var updated Profile
	_, err := m.store.Update(ctx, profileKey(subjectID), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		var p Profile
		if err := json.Unmarshal(current, &p); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", subjectID, err)
		}
		now := m.now().UTC()
		change(&p, now)
		p.UpdatedAt = now
		updated = p
		return json.Marshal(p)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update profile %s: %w", subjectID, err)
	}
	return &updated, nil
}
