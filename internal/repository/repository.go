// Package repository holds the fast-path state the API and reconciler
// share: webhook event deduplication marks and rate-limit counters.
// Redis is the primary store; a memory store backs it so a Redis outage
// degrades to per-process behavior instead of failing requests.
package repository

import (
	"context"
	"time"
)

// Store is implemented by the redis, memory and failover stores.
type Store interface {
	// MarkEventSeen records a (provider, event id) pair and reports
	// whether this is the first sighting. Used as the cheap first line
	// of webhook deduplication; the webhook_events unique index is the
	// durable second line.
	MarkEventSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error)

	// ClearEventSeen drops a dedup mark. Called when the durable enqueue
	// behind a fresh mark fails, so the provider's retry is not answered
	// as a duplicate of an event that was never queued.
	ClearEventSeen(ctx context.Context, provider, eventID string) error

	// CheckRateLimit counts a hit for key inside the window and reports
	// whether the caller is still under the limit.
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
