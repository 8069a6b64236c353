package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"taurean/internal/models"
)

const webhookEventColumns = `id, provider, provider_event_id, provider_ref, provider_status,
    amount_cents, payload, status, retry_count, last_error, next_retry_at, processed_at, created_at`

// EnqueueWebhookEvent durably stores an inbound gateway callback. The
// (provider, provider_event_id) unique index is the at-least-once
// delivery guard: a redelivered event returns ErrDuplicate and the
// transport answers 200 without queueing twice.
func (db *DB) EnqueueWebhookEvent(ctx context.Context, e *models.WebhookEvent) error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO webhook_events (
            provider, provider_event_id, provider_ref, provider_status, amount_cents,
            payload, status, retry_count, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		e.Provider, e.ProviderEventID, e.ProviderRef, e.ProviderStatus, e.AmountCents,
		e.Payload, models.EventPending, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %s/%s: %w", e.Provider, e.ProviderEventID, ErrDuplicate)
		}
		return fmt.Errorf("enqueue webhook event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	e.Status = models.EventPending
	e.CreatedAt = now
	return nil
}

// GetPendingWebhookEvents returns queued events due for processing.
func (db *DB) GetPendingWebhookEvents(ctx context.Context, limit int) ([]models.WebhookEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+webhookEventColumns+` FROM webhook_events
        WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
        ORDER BY created_at ASC LIMIT ?`,
		models.EventPending, models.EventRetry, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending webhook events: %w", err)
	}
	defer rows.Close()

	var out []models.WebhookEvent
	for rows.Next() {
		var e models.WebhookEvent
		var lastError sql.NullString
		var nextRetryAt, processedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.Provider, &e.ProviderEventID, &e.ProviderRef, &e.ProviderStatus,
			&e.AmountCents, &e.Payload, &e.Status, &e.RetryCount, &lastError, &nextRetryAt, &processedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		e.LastError = lastError.String
		if nextRetryAt.Valid {
			t := nextRetryAt.Time
			e.NextRetryAt = &t
		}
		if processedAt.Valid {
			t := processedAt.Time
			e.ProcessedAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpdateWebhookEventStatus records a processing outcome. Retry bumps the
// retry counter and schedules the next attempt; terminal statuses stamp
// processed_at.
func (db *DB) UpdateWebhookEventStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := time.Now()

	switch status {
	case models.EventRetry:
		query = `UPDATE webhook_events SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, errMsg, nextRetryAt, id}
	case models.EventCompleted, models.EventDiscarded, models.EventFailed:
		query = `UPDATE webhook_events SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []any{status, errMsg, now, id}
	default:
		return fmt.Errorf("webhook event status %q: %w", status, ErrInvalidTransition)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update webhook event status: %w", err)
	}
	return nil
}
