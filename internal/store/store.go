// Package store defines the atomic key-value contract that every stateful
// component of the identity core is built on, plus its Redis implementation.
//
// The store is the only shared mutable state in the system: request handlers
// run as independent stateless instances, and all coordination between them is
// expressed as single-key conditional operations. The contract therefore
// exposes exactly the primitives the backing store can make atomic (a point
// read, a create-if-absent write, a conditional update, and a counter
// increment with expiry) and nothing resembling a cross-key transaction.
//
// Outcome discipline: ErrNotFound, ErrAlreadyExists, and ErrConditionFailed
// are not failures, they are first-class results callers branch on with
// errors.Is. Transport and availability problems are wrapped in
// *UnavailableError so that no raw driver error ever crosses this package
// boundary.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound reports that no value exists under the requested key.
	ErrNotFound = errors.New("store: key not found")

	// ErrAlreadyExists reports that PutIfAbsent found an existing value.
	ErrAlreadyExists = errors.New("store: key already exists")

	// ErrConditionFailed reports that an Update predicate did not hold.
	// Callers must treat this as an expected outcome, re-read the record,
	// and decide what actually happened, never surface it verbatim.
	ErrConditionFailed = errors.New("store: condition failed")
)

// UpdateFunc inspects the current value under a key and returns its
// replacement. current is nil when the key is absent. Returning an error
// aborts the update without writing; return ErrConditionFailed (possibly
// wrapped) when the record's state no longer satisfies the caller's
// predicate. The predicate check and the write are atomic with respect to
// concurrent updates of the same key.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is the atomic key-value contract. Implementations hold no in-process
// state beyond their client handle; all side effects live in the backing
// store.
type Store interface {
	// Get returns the value under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// PutIfAbsent writes value under key only if the key does not exist.
	// Returns ErrAlreadyExists otherwise. Atomic with respect to concurrent
	// callers: of N racing writers exactly one succeeds.
	PutIfAbsent(ctx context.Context, key string, value []byte) error

	// Update applies fn to the current value under key and writes the
	// result, atomically with respect to concurrent updates of the same
	// key. Returns the written value, or the error fn returned.
	Update(ctx context.Context, key string, fn UpdateFunc) ([]byte, error)

	// IncrBy atomically adds amount to the integer counter under key and
	// returns the new value. The counter is created on first use with an
	// expiry at expireAt; the expiry is not refreshed on later increments.
	IncrBy(ctx context.Context, key string, amount int64, expireAt time.Time) (int64, error)
}

// SetStore provides unordered membership sets, used only for secondary
// indexes (e.g. subject → issued key digests). Index maintenance is
// best-effort and never participates in the conditional-write guarantees of
// Store.
type SetStore interface {
	SetAdd(ctx context.Context, key, member string) error
	SetRemove(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
}

// UnavailableError wraps a transport or availability failure of the backing
// store. Each component applies its own availability policy when it sees
// one: the rate limiter fails open, everything else fails closed.
type UnavailableError struct {
	Op  string
	Key string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store: %s %q unavailable: %v", e.Op, e.Key, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is (or wraps) a store availability
// failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
