// Package storetest provides an in-memory Store implementation for tests.
// It honours the same atomicity contract as the Redis store (a coarse mutex
// makes every operation atomic), counts writes so tests can assert
// idempotency, and can be forced into an unavailable state to exercise
// fail-open and fail-closed paths.
package storetest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
)

// Memory is an in-memory store.Store and store.SetStore.
type Memory struct {
	mu       sync.Mutex
	values   map[string][]byte
	counters map[string]counter
	sets     map[string]map[string]struct{}

	// FailWith, when non-nil, is returned (wrapped as unavailable) by every
	// operation. Set it to simulate a store outage.
	FailWith error

	// Clock supplies "now" for counter expiry checks; defaults to time.Now.
	Clock func() time.Time

	puts    int
	updates int
	incrs   int
}

type counter struct {
	value    int64
	expireAt time.Time
}

// New returns an empty Memory store.
func New() *Memory {
	return &Memory{
		values:   make(map[string][]byte),
		counters: make(map[string]counter),
		sets:     make(map[string]map[string]struct{}),
		Clock:    time.Now,
	}
}

// PutCalls returns how many PutIfAbsent calls reached the store.
func (m *Memory) PutCalls() int { m.mu.Lock(); defer m.mu.Unlock(); return m.puts }

// UpdateCalls returns how many Update calls performed a write.
func (m *Memory) UpdateCalls() int { m.mu.Lock(); defer m.mu.Unlock(); return m.updates }

// IncrCalls returns how many IncrBy calls reached the store.
func (m *Memory) IncrCalls() int { m.mu.Lock(); defer m.mu.Unlock(); return m.incrs }

func (m *Memory) unavailable(op, key string) error {
	return &store.UnavailableError{Op: op, Key: key, Err: m.FailWith}
}

// Get implements store.Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.unavailable("get", key)
	}
	val, ok := m.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// PutIfAbsent implements store.Store.
func (m *Memory) PutIfAbsent(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.unavailable("putifabsent", key)
	}
	if _, ok := m.values[key]; ok {
		return store.ErrAlreadyExists
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	m.puts++
	return nil
}

// Update implements store.Store. The mutex is held across the whole
// read-check-write cycle, matching the atomicity of the Redis WATCH
// transaction.
func (m *Memory) Update(_ context.Context, key string, fn store.UpdateFunc) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.unavailable("update", key)
	}
	current := m.values[key] // nil when absent
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	stored := make([]byte, len(next))
	copy(stored, next)
	m.values[key] = stored
	m.updates++
	return next, nil
}

// IncrBy implements store.Store, including the expiry semantics: a counter
// whose expireAt has passed is treated as absent and recreated.
func (m *Memory) IncrBy(_ context.Context, key string, amount int64, expireAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return 0, m.unavailable("incrby", key)
	}
	m.incrs++
	now := m.Clock()
	c, ok := m.counters[key]
	if !ok || now.After(c.expireAt) {
		c = counter{value: amount, expireAt: expireAt}
		m.counters[key] = c
		return c.value, nil
	}
	c.value += amount
	m.counters[key] = c
	return c.value, nil
}

// CounterValue returns the raw counter value for assertions.
func (m *Memory) CounterValue(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key].value
}

// SetAdd implements store.SetStore.
func (m *Memory) SetAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.unavailable("setadd", key)
	}
	set, ok := m.sets[key]
	if !ok {
		set = make(map[string]struct{})
		m.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

// SetRemove implements store.SetStore.
func (m *Memory) SetRemove(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.unavailable("setremove", key)
	}
	delete(m.sets[key], member)
	return nil
}

// SetMembers implements store.SetStore.
func (m *Memory) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.unavailable("setmembers", key)
	}
	members := make([]string, 0, len(m.sets[key]))
	for member := range m.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

// Seed writes a value directly, bypassing call counters. Test setup only.
func (m *Memory) Seed(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

// Raw returns the stored value (nil when absent). Test assertions only.
func (m *Memory) Raw(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// String implements fmt.Stringer for debugging test failures.
func (m *Memory) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "storetest.Memory{" + strconv.Itoa(len(m.values)) + " values, " +
		strconv.Itoa(len(m.counters)) + " counters}"
}
