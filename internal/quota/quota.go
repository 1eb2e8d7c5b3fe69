// Package quota throttles privileged operations with fixed-window counters
// keyed by (operation, subject) in the atomic store.
//
// The limiter always increments before comparing, so the recorded count can
// exceed the limit by the number of concurrently rejected requests in the
// same window. That over-count is deliberate: it keeps the hot path to a
// single atomic increment, at the cost of slightly inflated counters when a
// burst is being rejected.
//
// Availability policy: this is the one component that fails OPEN. If the
// store is unreachable the limiter allows the request, reports current=0,
// and logs a warning. Denying legitimate traffic over an infrastructure
// hiccup is worse than briefly under-enforcing a quota. Every other
// component in this core fails closed.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
)

// Result is the outcome of one limit check.
type Result struct {
	Allowed bool
	Current int64
	Limit   int64
	// RetryAfter is the time until the current window closes; only set when
	// the request was not allowed.
	RetryAfter time.Duration
	// FailedOpen marks a result produced while the store was unreachable.
	// The request was allowed, but Current is not meaningful.
	FailedOpen bool
}

// ExceededError is returned by Enforce when the quota is exhausted. It
// carries the retry hint handlers surface to clients.
type ExceededError struct {
	Operation  string
	Limit      int64
	Current    int64
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d, retry in %s",
		e.Operation, e.Current, e.Limit, e.RetryAfter)
}

// WindowKey returns the fixed window identifier for now: the Unix timestamp
// truncated down to the nearest multiple of windowSeconds. Two timestamps in
// the same window map to the same key; timestamps straddling a window
// boundary map to different keys.
func WindowKey(windowSeconds int64, now time.Time) string {
	start := now.Unix() - now.Unix()%windowSeconds
	return fmt.Sprintf("%d", start)
}

// CounterTTL returns the expiry for a window's counter: window start plus
// twice the window length. The counter therefore outlives its own window by
// a full window of slack before the store reclaims it.
func CounterTTL(windowSeconds int64, now time.Time) time.Time {
	start := now.Unix() - now.Unix()%windowSeconds
	return time.Unix(start+2*windowSeconds, 0)
}

// Limiter implements the fixed-window quota check.
type Limiter struct {
	store store.Store
	now   func() time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(s store.Store) *Limiter {
	return &Limiter{store: s, now: time.Now}
}

// WithClock overrides the time source. Tests only.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func counterKey(operation, subject string, windowSeconds int64, now time.Time) string {
	return fmt.Sprintf("quota:%s:%s:%s", operation, subject, WindowKey(windowSeconds, now))
}

// CheckAndIncrement counts this request against the (operation, subject)
// window and reports whether it is within limit. The increment happens
// unconditionally before the comparison and is never rolled back.
func (l *Limiter) CheckAndIncrement(ctx context.Context, operation, subject string, limit int64, window time.Duration) (Result, error) {
	windowSeconds := int64(window / time.Second)
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	now := l.now()

	current, err := l.store.IncrBy(ctx,
		counterKey(operation, subject, windowSeconds, now),
		1,
		CounterTTL(windowSeconds, now),
	)
	if err != nil {
		if store.IsUnavailable(err) {
			slog.Warn("rate limit store unavailable, failing open",
				"operation", operation, "subject", subject, "error", err)
			return Result{Allowed: true, Current: 0, Limit: limit, FailedOpen: true}, nil
		}
		return Result{}, fmt.Errorf("rate limit %s/%s: %w", operation, subject, err)
	}

	res := Result{
		Allowed: current <= limit,
		Current: current,
		Limit:   limit,
	}
	if !res.Allowed {
		windowStart := now.Unix() - now.Unix()%windowSeconds
		res.RetryAfter = time.Unix(windowStart+windowSeconds, 0).Sub(now)
	}
	return res, nil
}

// Enforce is CheckAndIncrement with fail-fast semantics: it returns an
// *ExceededError when the quota is exhausted, for call sites that treat
// throttling as an error path.
func (l *Limiter) Enforce(ctx context.Context, operation, subject string, limit int64, window time.Duration) error {
	res, err := l.CheckAndIncrement(ctx, operation, subject, limit, window)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return &ExceededError{
			Operation:  operation,
			Limit:      res.Limit,
			Current:    res.Current,
			RetryAfter: res.RetryAfter,
		}
	}
	return nil
}
