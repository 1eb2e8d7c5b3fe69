// keys.go manages the API key collection in the atomic store: issuance,
// lookup by digest, revocation, and the best-effort last-used stamp.
//
// Key records are stored under their digest; a per-subject set of digests
// serves as the secondary index for listing and revocation-by-id. Index
// maintenance is best-effort; the digest row alone decides whether a key
// authenticates.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
)

// ErrKeyNotFound reports a revocation or lookup targeting a key the subject
// does not own.
var ErrKeyNotFound = errors.New("auth: api key not found")

// Key is a long-lived credential record. A key is usable iff RevokedAt is
// absent. LastUsedAt is advisory only and may be lost under concurrent or
// cold-start conditions.
type Key struct {
	SubjectID     string     `json:"subject_id"`
	KeyID         string     `json:"key_id"`
	DisplayPrefix string     `json:"display_prefix"`
	Scopes        []string   `json:"scopes"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Revoked reports whether the key has been revoked.
func (k *Key) Revoked() bool { return k != nil && k.RevokedAt != nil }

// KeyStore combines the atomic contract with the set index the key
// collection needs.
type KeyStore interface {
	store.Store
	store.SetStore
}

// Keys is the API key service.
type Keys struct {
	store  KeyStore
	prefix string
	now    func() time.Time
}

// NewKeys creates the key service. prefix is prepended to every generated
// secret (e.g. "hub").
func NewKeys(s KeyStore, prefix string) *Keys {
	return &Keys{store: s, prefix: prefix, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (k *Keys) WithClock(now func() time.Time) *Keys {
	k.now = now
	return k
}

func keyRecordKey(digest string) string { return "apikey:" + digest }
func subjectKeysKey(subject string) string { return "apikeys:subject:" + subject }

// Issue creates a new API key for subjectID with the given non-empty scope
// set. Returns the secret, which is shown exactly once.
func (k *Keys) Issue(ctx context.Context, subjectID string, scopes []string) (secret string, key *Key, err error) {
	if len(scopes) == 0 {
		return "", nil, errors.New("auth: api key requires at least one scope")
	}

	secret, digest, displayPrefix, err := GenerateKeySecret(k.prefix)
	if err != nil {
		return "", nil, err
	}

	rec := Key{
		SubjectID:     subjectID,
		KeyID:         uuid.New().String(),
		DisplayPrefix: displayPrefix,
		Scopes:        scopes,
		CreatedAt:     k.now().UTC(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("encode api key: %w", err)
	}
	if err := k.store.PutIfAbsent(ctx, keyRecordKey(digest), raw); err != nil {
		// A digest collision would mean a duplicated 256-bit secret;
		// any failure here is infrastructure.
		return "", nil, fmt.Errorf("store api key: %w", err)
	}
	if err := k.store.SetAdd(ctx, subjectKeysKey(subjectID), digest); err != nil {
		return "", nil, fmt.Errorf("index api key: %w", err)
	}
	return secret, &rec, nil
}

// Lookup returns the key record for a digest, or nil when none exists.
func (k *Keys) Lookup(ctx context.Context, digest string) (*Key, error) {
	raw, err := k.store.Get(ctx, keyRecordKey(digest))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	var rec Key
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode api key: %w", err)
	}
	return &rec, nil
}

// List returns the subject's keys, revoked ones included.
func (k *Keys) List(ctx context.Context, subjectID string) ([]*Key, error) {
	digests, err := k.store.SetMembers(ctx, subjectKeysKey(subjectID))
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	keys := make([]*Key, 0, len(digests))
	for _, digest := range digests {
		rec, err := k.Lookup(ctx, digest)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			keys = append(keys, rec)
		}
	}
	return keys, nil
}

// Revoke marks the subject's key revoked. Revocation is terminal; revoking
// an already revoked key is a no-op. ErrKeyNotFound when the subject owns
// no key with keyID.
func (k *Keys) Revoke(ctx context.Context, subjectID, keyID string) (*Key, error) {
	digests, err := k.store.SetMembers(ctx, subjectKeysKey(subjectID))
	if err != nil {
		return nil, fmt.Errorf("revoke api key: %w", err)
	}
	for _, digest := range digests {
		rec, err := k.Lookup(ctx, digest)
		if err != nil {
			return nil, err
		}
		if rec == nil || rec.KeyID != keyID || rec.SubjectID != subjectID {
			continue
		}
		return k.revokeDigest(ctx, digest)
	}
	return nil, ErrKeyNotFound
}

func (k *Keys) revokeDigest(ctx context.Context, digest string) (*Key, error) {
	var updated Key
	_, err := k.store.Update(ctx, keyRecordKey(digest), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrKeyNotFound
		}
		var rec Key
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, fmt.Errorf("decode api key: %w", err)
		}
		if rec.RevokedAt == nil {
			now := k.now().UTC()
			rec.RevokedAt = &now
		}
		updated = rec
		return json.Marshal(rec)
	})
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("revoke api key: %w", err)
	}
	return &updated, nil
}

// TouchLastUsed stamps the key's last-used time. Best-effort: failures are
// the caller's to log, never to propagate, and a lost update is acceptable.
func (k *Keys) TouchLastUsed(ctx context.Context, digest string) error {
	_, err := k.store.Update(ctx, keyRecordKey(digest), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrConditionFailed
		}
		var rec Key
		if err := json.Unmarshal(current, &rec); err != nil {
			return nil, err
		}
		now := k.now().UTC()
		rec.LastUsedAt = &now
		return json.Marshal(rec)
	})
	return err
}
