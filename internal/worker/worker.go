// Package worker drains the durable webhook queue. The HTTP handler only
// persists and acknowledges events; this worker owns reconciliation,
// retries with exponential backoff, and terminal failure marking.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"taurean/internal/database"
	"taurean/internal/metrics"
	"taurean/internal/models"
	"taurean/internal/reconciler"
)

// Reconciler applies one gateway event to settlement state.
type Reconciler interface {
	Reconcile(ctx context.Context, event *models.WebhookEvent) (reconciler.Outcome, error)
}

// Worker polls the webhook_events table and feeds events through the
// reconciler. A notify channel lets the HTTP handler wake the worker
// immediately after an enqueue; the database poll remains the source of
// truth, so a missed wakeup only costs one poll interval.
type Worker struct {
	db           *database.DB
	rec          Reconciler
	policy       RetryPolicy
	notify       chan struct{}
	pollInterval time.Duration
	batchSize    int
	log          zerolog.Logger
}

func New(db *database.DB, rec Reconciler, policy RetryPolicy, pollInterval time.Duration, batchSize int, logger *zerolog.Logger) *Worker {
	if policy.MaxRetries == 0 {
		policy.MaxRetries = 5
	}
	if policy.InitialDelay == 0 {
		policy.InitialDelay = 2 * time.Second
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = time.Minute
	}
	if policy.BackoffFactor == 0 {
		policy.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = time.Duration(models.DefaultWebhookPollIntervalSec) * time.Second
	}
	if batchSize <= 0 {
		batchSize = 20
	}

	return &Worker{
		db:           db,
		rec:          rec,
		policy:       policy,
		notify:       make(chan struct{}, 1),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		log:          logger.With().Str("component", "webhook_worker").Logger(),
	}
}

// Notify wakes the worker without blocking the caller.
func (w *Worker) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Start runs the drain loop until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info().Msg("webhook worker started")
	defer w.log.Info().Msg("webhook worker stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error().Err(err).Msg("drain pass failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.notify:
		case <-ticker.C:
		}
	}
}

// RunOnce drains one batch of due events and reports how many were handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	events, err := w.db.GetPendingWebhookEvents(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	metrics.SetWebhookQueueDepth(len(events))

	for i := range events {
		w.process(ctx, &events[i])
	}
	return len(events), nil
}

func (w *Worker) process(ctx context.Context, event *models.WebhookEvent) {
	outcome, err := w.rec.Reconcile(ctx, event)
	if err != nil {
		w.retryOrFail(ctx, event, err)
		return
	}

	status := models.EventCompleted
	if outcome == reconciler.OutcomeDiscarded {
		status = models.EventDiscarded
	}
	if err := w.db.UpdateWebhookEventStatus(ctx, event.ID, status, "", nil); err != nil {
		w.log.Error().Err(err).Int64("event_id", event.ID).Msg("mark event done")
	}
}

func (w *Worker) retryOrFail(ctx context.Context, event *models.WebhookEvent, cause error) {
	attempt := event.RetryCount + 1
	if attempt >= w.policy.MaxRetries {
		w.log.Error().Err(cause).
			Int64("event_id", event.ID).
			Int("attempts", attempt).
			Msg("event failed permanently")
		if err := w.db.UpdateWebhookEventStatus(ctx, event.ID, models.EventFailed, cause.Error(), nil); err != nil {
			w.log.Error().Err(err).Int64("event_id", event.ID).Msg("mark event failed")
		}
		return
	}

	nextTime := time.Now().Add(w.policy.NextDelay(attempt))
	w.log.Warn().Err(cause).
		Int64("event_id", event.ID).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("event scheduled for retry")
	if err := w.db.UpdateWebhookEventStatus(ctx, event.ID, models.EventRetry, cause.Error(), &nextTime); err != nil {
		w.log.Error().Err(err).Int64("event_id", event.ID).Msg("mark event retry")
	}
}
