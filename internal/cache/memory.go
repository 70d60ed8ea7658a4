package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// gcEvery is the number of operations between opportunistic sweeps.
const gcEvery = 5000

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

// Memory is a process-local Store.
type Memory struct {
	// Now is the clock used for expiry; tests may replace it.
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	ops     uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		Now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// lookup returns the live entry for key, evicting it if expired. It also runs
// the periodic sweep. Caller must hold m.mu.
func (m *Memory) lookup(key string, now time.Time) *entry {
	m.ops++
	if m.ops >= gcEvery {
		for k, e := range m.entries {
			if !now.Before(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		m.ops = 0
	}

	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !now.Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key, m.Now())
	if e == nil {
		return nil, false, nil
	}
	if e.value == nil {
		// counter entries read back as their decimal value
		return []byte(strconv.FormatInt(e.count, 10)), true, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	v := make([]byte, len(value))
	copy(v, value)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{value: v, expiresAt: m.Now().Add(ttl)}
	return nil
}

// Incr implements Store.
func (m *Memory) Incr(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	now := m.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key, now)
	if e == nil {
		e = &entry{expiresAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.expiresAt, nil
}

// Count implements Store.
func (m *Memory) Count(_ context.Context, key string) (int64, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.lookup(key, m.Now())
	if e == nil {
		return 0, time.Time{}, nil
	}
	return e.count, e.expiresAt, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including expired ones not yet
// swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
