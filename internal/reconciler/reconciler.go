// Package reconciler maps asynchronous, possibly duplicated gateway
// callbacks onto settlement state. It is a pure decision function over
// (stored transaction, callback event); the webhook worker owns delivery
// and retries.
package reconciler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"taurean/internal/database"
	"taurean/internal/metrics"
	"taurean/internal/models"
	"taurean/internal/settlement"
)

// Outcome of one reconciliation pass.
type Outcome string

const (
	// OutcomeConfirmed settles the matched transaction as confirmed.
	OutcomeConfirmed Outcome = "confirmed"
	// OutcomeRejected settles the matched transaction as rejected.
	OutcomeRejected Outcome = "rejected"
	// OutcomeDiscarded drops an event that matches nothing actionable.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeNoop leaves already-terminal state untouched. Duplicate
	// deliveries and lost races with staff land here.
	OutcomeNoop Outcome = "noop"
)

// Reason strings recorded on gateway-driven rejections.
const (
	ReasonAmountMismatch = "AmountMismatch"
	ReasonGatewayFailure = "gateway reported failure"
)

// Signature computes the hex HMAC-SHA256 of a webhook body.
func Signature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a provider-supplied signature in constant time.
func VerifySignature(secret, body []byte, provided string) bool {
	return hmac.Equal([]byte(Signature(secret, body)), []byte(provided))
}

// Reconciler drives settlement from gateway events.
type Reconciler struct {
	db          *database.DB
	settlements *settlement.Service
	log         zerolog.Logger
}

func New(db *database.DB, settlements *settlement.Service, logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		db:          db,
		settlements: settlements,
		log:         logger.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile applies one gateway event to the ledger. Idempotent:
// delivering the same event twice produces the same end state, and the
// second delivery emits no notifications. A returned error means the
// event is retryable; discard decisions return a nil error.
func (r *Reconciler) Reconcile(ctx context.Context, event *models.WebhookEvent) (Outcome, error) {
	outcome, err := r.reconcile(ctx, event)
	if err == nil {
		metrics.IncReconciliation(string(outcome))
	}
	return outcome, err
}

func (r *Reconciler) reconcile(ctx context.Context, event *models.WebhookEvent) (Outcome, error) {
	if event.ProviderRef == "" {
		r.log.Warn().Str("provider_event_id", event.ProviderEventID).Msg("event has no provider ref, discarding")
		return OutcomeDiscarded, nil
	}

	tx, err := r.db.GetTransactionByProviderRef(ctx, event.ProviderRef)
	if errors.Is(err, database.ErrTransactionNotFound) {
		// Unmatched references are never trusted as a source of truth.
		r.log.Warn().
			Str("provider_ref", event.ProviderRef).
			Str("provider_event_id", event.ProviderEventID).
			Msg("no transaction matches provider ref, discarding")
		return OutcomeDiscarded, nil
	}
	if err != nil {
		return "", err
	}

	if tx.Terminal() {
		r.log.Debug().
			Int64("transaction_id", tx.ID).
			Str("status", tx.Status).
			Msg("transaction already terminal, duplicate delivery ignored")
		return OutcomeNoop, nil
	}

	decision, reason, outcome := r.decide(tx, event)
	if outcome == OutcomeDiscarded {
		return OutcomeDiscarded, nil
	}

	_, err = r.settlements.Process(ctx, tx.ID, decision, models.GatewayActor, reason)
	if errors.Is(err, database.ErrAlreadyProcessed) {
		// A staff decision or a concurrent delivery won the race.
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("settle transaction %d: %w", tx.ID, err)
	}

	r.log.Info().
		Int64("transaction_id", tx.ID).
		Str("outcome", string(outcome)).
		Str("provider_event_id", event.ProviderEventID).
		Msg("gateway event reconciled")

	return outcome, nil
}

// decide maps the event onto a settlement decision. An amount mismatch
// on a success callback rejects rather than confirms: the gateway moved
// a different amount than the obligation records. Only an absent amount
// field is trusted; a reported zero on a nonzero obligation is a mismatch.
func (r *Reconciler) decide(tx *models.PendingTransaction, event *models.WebhookEvent) (decision, reason string, outcome Outcome) {
	switch event.ProviderStatus {
	case models.ProviderSuccess:
		if event.AmountCents != nil && *event.AmountCents != tx.AmountCents {
			r.log.Warn().
				Int64("transaction_id", tx.ID).
				Int64("expected_cents", tx.AmountCents).
				Int64("reported_cents", *event.AmountCents).
				Msg("gateway amount mismatch")
			return settlement.DecisionReject, ReasonAmountMismatch, OutcomeRejected
		}
		return settlement.DecisionConfirm, "", OutcomeConfirmed
	case models.ProviderFailure:
		return settlement.DecisionReject, ReasonGatewayFailure, OutcomeRejected
	default:
		r.log.Warn().
			Str("provider_status", event.ProviderStatus).
			Str("provider_event_id", event.ProviderEventID).
			Msg("unknown provider status, discarding")
		return "", "", OutcomeDiscarded
	}
}
