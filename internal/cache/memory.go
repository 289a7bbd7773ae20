package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// sweepEvery is how many writes pass between scans for expired entries.
// Get only drops the key it reads, so keys nobody reads again would
// otherwise stay resident.
const sweepEvery = 128

// Memory is an in-process cache guarded by a mutex.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
	writes  int
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock is NewMemory with expiry measured against now.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: now}
}

// Len reports how many entries are resident, expired or not.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true, nil
}

func (c *Memory) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = c.entry(data, ttl)
	c.noteWrite()
	return nil
}

func (c *Memory) SetNX(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok && !e.expired(c.now()) {
		return false, nil
	}
	c.entries[key] = c.entry(data, ttl)
	c.noteWrite()
	return true, nil
}

func (c *Memory) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *Memory) Close() error { return nil }

// noteWrite counts a write and sweeps expired entries every sweepEvery
// writes. The caller holds c.mu.
func (c *Memory) noteWrite() {
	c.writes++
	if c.writes < sweepEvery {
		return
	}
	c.writes = 0
	now := c.now()
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
		}
	}
}

func (c *Memory) entry(data []byte, ttl time.Duration) memoryEntry {
	buf := make([]byte, len(data))
	copy(buf, data)
	e := memoryEntry{data: buf}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	return e
}

var _ Cache = (*Memory)(nil)
