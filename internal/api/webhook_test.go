package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taurean/internal/models"
	"taurean/internal/reconciler"
)

func (ts *testStack) signedWebhook(t *testing.T, body []byte, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transactions/webhook", bytes.NewReader(body))
	req.Header.Set(sigHeader, reconciler.Signature([]byte(testSecret), body))
	if eventID != "" {
		req.Header.Set(eventIDHeader, eventID)
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testStack) gatewayTransaction(t *testing.T, providerRef string) (*models.PendingTransaction, int64) {
	t.Helper()
	start, end := testWindow()
	b := ts.createBooking(t, start, end)
	bookingID := int64(b["id"].(float64))
	total := int64(b["total_cents"].(float64))

	w := ts.request(t, http.MethodPost, "/api/v1/pending-transactions", map[string]any{
		"booking_id":   bookingID,
		"user_id":      7,
		"amount_cents": total,
		"method":       models.MethodGateway,
		"timing_plan":  models.PlanFull,
		"provider_ref": providerRef,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var tx models.PendingTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	return &tx, bookingID
}

func TestWebhookBadSignature(t *testing.T) {
	ts := newTestStack(t, true)
	body := []byte(`{"reference":"prov-1","status":"success"}`)

	req := httptest.NewRequest(http.MethodPost, "/transactions/webhook", bytes.NewReader(body))
	req.Header.Set(sigHeader, "deadbeef")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Nothing was queued.
	events, err := ts.db.GetPendingWebhookEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWebhookMissingSignature(t *testing.T) {
	ts := newTestStack(t, true)
	body := []byte(`{"reference":"prov-1","status":"success"}`)

	req := httptest.NewRequest(http.MethodPost, "/transactions/webhook", bytes.NewReader(body))
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookEndToEnd(t *testing.T) {
	ts := newTestStack(t, true)
	ctx := context.Background()

	tx, bookingID := ts.gatewayTransaction(t, "prov-1")

	body := []byte(fmt.Sprintf(`{"reference":"prov-1","status":"success","amount_cents":%d}`, tx.AmountCents))
	w := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	handled, err := ts.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	settled, err := ts.db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxConfirmed, settled.Status)

	booking, err := ts.db.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, booking.PaymentStatus)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	ts := newTestStack(t, true)
	ctx := context.Background()

	tx, _ := ts.gatewayTransaction(t, "prov-1")
	body := []byte(fmt.Sprintf(`{"reference":"prov-1","status":"success","amount_cents":%d}`, tx.AmountCents))

	first := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusOK, first.Code)

	// Network retry: same event id, still 200, queued once.
	second := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	handled, err := ts.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	settled, err := ts.db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxConfirmed, settled.Status)
}

func TestWebhookAmountMismatch(t *testing.T) {
	ts := newTestStack(t, true)
	ctx := context.Background()

	tx, bookingID := ts.gatewayTransaction(t, "prov-1")

	body := []byte(`{"reference":"prov-1","status":"success","amount_cents":1}`)
	w := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusOK, w.Code)

	_, err := ts.worker.RunOnce(ctx)
	require.NoError(t, err)

	settled, err := ts.db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxRejected, settled.Status)
	assert.Equal(t, reconciler.ReasonAmountMismatch, settled.RejectionReason)

	booking, err := ts.db.GetBooking(ctx, bookingID)
	require.NoError(t, err)
	assert.NotEqual(t, models.PaymentCompleted, booking.PaymentStatus)
}

func TestWebhookUnmatchedReferenceDiscarded(t *testing.T) {
	ts := newTestStack(t, true)
	ctx := context.Background()

	body := []byte(`{"reference":"unknown-ref","status":"success"}`)
	w := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusOK, w.Code)

	handled, err := ts.worker.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, handled)

	var status string
	row := ts.db.QueryRowContext(ctx, `SELECT status FROM webhook_events WHERE provider_event_id = ?`, "evt-1")
	require.NoError(t, row.Scan(&status))
	assert.Equal(t, models.EventDiscarded, status)
}

func TestWebhookRetryAfterEnqueueFailure(t *testing.T) {
	ts := newTestStack(t, true)
	ctx := context.Background()

	tx, _ := ts.gatewayTransaction(t, "prov-1")
	body := []byte(fmt.Sprintf(`{"reference":"prov-1","status":"success","amount_cents":%d}`, tx.AmountCents))

	// Take the durable queue away so the enqueue fails transiently.
	_, err := ts.db.ExecContext(ctx, `ALTER TABLE webhook_events RENAME TO webhook_events_down`)
	require.NoError(t, err)

	first := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusInternalServerError, first.Code, first.Body.String())

	_, err = ts.db.ExecContext(ctx, `ALTER TABLE webhook_events_down RENAME TO webhook_events`)
	require.NoError(t, err)

	// The gateway retries the same event id. It must be queued, not
	// answered as a duplicate of the delivery that never landed.
	second := ts.signedWebhook(t, body, "evt-1")
	require.Equal(t, http.StatusOK, second.Code, second.Body.String())
	assert.Contains(t, second.Body.String(), "queued")

	events, err := ts.db.GetPendingWebhookEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWebhookContentBasedEventID(t *testing.T) {
	ts := newTestStack(t, true)

	tx, _ := ts.gatewayTransaction(t, "prov-1")
	body := []byte(fmt.Sprintf(`{"reference":"prov-1","status":"success","amount_cents":%d}`, tx.AmountCents))

	// No event id header or field: identical bodies still deduplicate.
	first := ts.signedWebhook(t, body, "")
	require.Equal(t, http.StatusOK, first.Code)
	second := ts.signedWebhook(t, body, "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "duplicate")

	events, err := ts.db.GetPendingWebhookEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestConcurrentBookingRequests(t *testing.T) {
	ts := newTestStack(t, true)
	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	end := start.Add(24 * time.Hour)

	const n = 8
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		go func(userID int) {
			body, _ := json.Marshal(map[string]any{
				"resource_id": ts.hall.ID,
				"user_id":     userID,
				"start_time":  start.Format(time.RFC3339),
				"end_time":    end.Format(time.RFC3339),
			})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader(body))
			req.Header.Set("x-api-key", testAPIKey)
			w := httptest.NewRecorder()
			ts.srv.Handler().ServeHTTP(w, req)
			codes <- w.Code
		}(i + 1)
	}

	var created, conflict int
	for i := 0; i < n; i++ {
		switch <-codes {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, created, "exactly one request wins the window")
	assert.Equal(t, n-1, conflict)
}
