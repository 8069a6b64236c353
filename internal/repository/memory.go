package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback used in tests and during Redis
// outages. Dedup marks and counters expire lazily on access.
type MemoryStore struct {
	seen       sync.Map // "provider:eventID" -> expiry time.Time
	rateLimits sync.Map // key -> *rateLimitEntry
	mu         sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (r *MemoryStore) MarkEventSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	key := provider + ":" + eventID
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.seen.Load(key); ok {
		if expiry := v.(time.Time); now.Before(expiry) {
			return false, nil
		}
	}
	r.seen.Store(key, now.Add(ttl))
	return true, nil
}

func (r *MemoryStore) ClearEventSeen(ctx context.Context, provider, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen.Delete(provider + ":" + eventID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var entry *rateLimitEntry
	if v, ok := r.rateLimits.Load(key); ok {
		entry = v.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	} else {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
