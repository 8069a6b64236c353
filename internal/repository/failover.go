package repository

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// FailoverStore routes to the primary store until it fails, then serves
// from the fallback and probes the primary once a minute.
type FailoverStore struct {
	primary   Store
	fallback  Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of last failed probe
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

const recoveryProbeInterval = time.Minute

func (r *FailoverStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary store failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

// shouldProbe reports whether enough time passed to retry the primary.
func (r *FailoverStore) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryProbeInterval
}

func (r *FailoverStore) MarkEventSeen(ctx context.Context, provider, eventID string, ttl time.Duration) (bool, error) {
	if !r.isDown.Load() {
		first, err := r.primary.MarkEventSeen(ctx, provider, eventID, ttl)
		if err == nil {
			return first, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		first, err := r.primary.MarkEventSeen(ctx, provider, eventID, ttl)
		if err == nil {
			r.isDown.Store(false)
			return first, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.MarkEventSeen(ctx, provider, eventID, ttl)
}

// ClearEventSeen clears both stores: during a failover window the mark
// may live in either one.
func (r *FailoverStore) ClearEventSeen(ctx context.Context, provider, eventID string) error {
	var primaryErr error
	if !r.isDown.Load() || r.shouldProbe() {
		primaryErr = r.primary.ClearEventSeen(ctx, provider, eventID)
	}
	if err := r.fallback.ClearEventSeen(ctx, provider, eventID); err != nil {
		return err
	}
	return primaryErr
}

func (r *FailoverStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return allowed, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
