package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"taurean/internal/database"
	"taurean/internal/models"
	"taurean/internal/reconciler"
)

const maxWebhookBody = 1 << 20

// webhookPayload is the gateway callback body. The provider reference is
// matched against pending transactions; the event id deduplicates
// redeliveries.
type webhookPayload struct {
	Reference   string `json:"reference"`
	Status      string `json:"status"`
	AmountCents *int64 `json:"amount_cents"`
	EventID     string `json:"event_id,omitempty"`
}

// handleWebhook verifies the body signature, durably queues the event
// and acknowledges. A bad signature is a hard 401 with no state change;
// everything durably queued is acknowledged with 200, duplicates
// included, so the gateway stops redelivering.
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	signature := r.Header.Get(s.gateway.SignatureHeader)
	if signature == "" || !reconciler.VerifySignature([]byte(s.gateway.Secret), body, signature) {
		s.log.Warn().
			Str("remote", r.RemoteAddr).
			Msg("webhook signature verification failed")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	eventID := r.Header.Get(s.gateway.EventIDHeader)
	if eventID == "" {
		eventID = payload.EventID
	}
	if eventID == "" {
		// Providers without event ids get content-based dedup.
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}

	// Redis fast path; the unique index below is the authority.
	if s.deps.Store != nil {
		first, err := s.deps.Store.MarkEventSeen(r.Context(), s.gateway.Provider, eventID, time.Duration(models.DedupTTLSeconds)*time.Second)
		if err == nil && !first {
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	event := &models.WebhookEvent{
		Provider:        s.gateway.Provider,
		ProviderEventID: eventID,
		ProviderRef:     payload.Reference,
		ProviderStatus:  payload.Status,
		AmountCents:     payload.AmountCents,
		Payload:         string(body),
	}
	if err := s.deps.DB.EnqueueWebhookEvent(r.Context(), event); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		// The fast-path mark must not outlive a failed enqueue: the
		// provider retries with the same event id and has to get past
		// the dedup check to be durably queued.
		if s.deps.Store != nil {
			if clearErr := s.deps.Store.ClearEventSeen(r.Context(), s.gateway.Provider, eventID); clearErr != nil {
				s.log.Error().Err(clearErr).Str("provider_event_id", eventID).Msg("dedup mark rollback failed")
			}
		}
		s.respondError(w, r, err)
		return
	}

	if s.deps.WakeWorker != nil {
		s.deps.WakeWorker()
	}

	s.log.Info().
		Str("provider_event_id", eventID).
		Str("provider_ref", payload.Reference).
		Msg("webhook event queued")
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}
