package guard

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	last    time.Time
	expires time.Time
}

// MemoryStore is a single-process Store. Expired records are swept periodically.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store and starts its janitor. A non-positive sweepEvery disables it.
func NewMemoryStore(sweepEvery time.Duration) *MemoryStore {
	m := &MemoryStore{
		entries: make(map[string]memoryEntry),
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go m.janitor(sweepEvery)
	}
	return m
}

// TouchIfIdle implements Store
func (m *MemoryStore) TouchIfIdle(ctx context.Context, key string, now time.Time, interval, ttl time.Duration) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		elapsed := now.Sub(e.last)
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed < interval {
			return interval - elapsed, nil
		}
	}

	m.entries[key] = memoryEntry{last: now, expires: now.Add(ttl)}
	return 0, nil
}

// Len returns the number of records held
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the janitor
func (m *MemoryStore) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *MemoryStore) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *MemoryStore) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.entries {
		if !now.Before(e.expires) {
			delete(m.entries, key)
		}
	}
}
