// Package settlement is the ledger of payment obligations. A pending
// transaction records an intent to pay before any money moves; staff
// decisions and gateway callbacks both settle through the same
// conditional update, so only the first authoritative writer wins.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taurean/internal/database"
	"taurean/internal/events"
	"taurean/internal/models"
)

// ErrValidation marks a request the caller can fix: bad amount, unknown
// method, or a missing rejection reason.
var ErrValidation = errors.New("validation failed")

// Process decisions.
const (
	DecisionConfirm = "confirm"
	DecisionReject  = "reject"
)

// Service owns the pending transaction lifecycle and drives the booking
// payment axis from confirmed sums.
type Service struct {
	db            *database.DB
	publisher     events.Publisher
	log           zerolog.Logger
	currency      string
	minAdvanceBps int64
}

// NewService builds a settlement service. minAdvanceBps is the first
// installment floor used for companies without their own; values <= 0
// fall back to models.DefaultMinAdvanceBps.
func NewService(db *database.DB, publisher events.Publisher, logger *zerolog.Logger, currency string, minAdvanceBps int64) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if minAdvanceBps <= 0 {
		minAdvanceBps = models.DefaultMinAdvanceBps
	}
	return &Service{
		db:            db,
		publisher:     publisher,
		log:           logger.With().Str("component", "settlement").Logger(),
		currency:      currency,
		minAdvanceBps: minAdvanceBps,
	}
}

// CreateInput describes a new settlement obligation.
type CreateInput struct {
	BookingID   int64
	UserID      int64
	AmountCents int64
	Method      string
	TimingPlan  string
	ProviderRef string
	Notes       string
}

// Create records a pending transaction against a booking. The amount of
// an advance or split transaction covers only the current installment;
// the first installment must meet the company minimum.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.PendingTransaction, error) {
	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount %d must be positive", ErrValidation, in.AmountCents)
	}
	switch in.Method {
	case models.MethodGateway, models.MethodCash, models.MethodCheque:
	default:
		return nil, fmt.Errorf("%w: unknown method %q", ErrValidation, in.Method)
	}
	switch in.TimingPlan {
	case models.PlanFull, models.PlanAdvance, models.PlanSplit:
	default:
		return nil, fmt.Errorf("%w: unknown timing plan %q", ErrValidation, in.TimingPlan)
	}

	booking, err := s.db.GetBooking(ctx, in.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.DeletedAt != nil {
		return nil, fmt.Errorf("booking %d: %w", in.BookingID, database.ErrBookingNotFound)
	}

	if err := s.validatePlanAmount(ctx, booking, in); err != nil {
		return nil, err
	}

	tx := &models.PendingTransaction{
		Reference:   uuid.NewString(),
		UserID:      in.UserID,
		CompanyID:   booking.CompanyID,
		BookingID:   booking.ID,
		Type:        "booking",
		AmountCents: in.AmountCents,
		Currency:    s.currency,
		Method:      in.Method,
		TimingPlan:  in.TimingPlan,
		ProviderRef: in.ProviderRef,
		Notes:       in.Notes,
	}
	if err := s.db.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("transaction_id", tx.ID).
		Int64("booking_id", booking.ID).
		Int64("amount_cents", tx.AmountCents).
		Str("method", tx.Method).
		Str("timing_plan", tx.TimingPlan).
		Msg("pending transaction created")

	return tx, nil
}

// validatePlanAmount enforces installment rules. A full-plan amount must
// equal the booking total. The first advance/split installment must be at
// least the company's minimum share of the total, or the service-level
// floor when the company has none; later installments only need to stay
// positive.
func (s *Service) validatePlanAmount(ctx context.Context, booking *models.Booking, in CreateInput) error {
	if in.TimingPlan == models.PlanFull {
		if in.AmountCents != booking.TotalCents {
			return fmt.Errorf("%w: full payment of %d does not match booking total %d",
				ErrValidation, in.AmountCents, booking.TotalCents)
		}
		return nil
	}

	prior, err := s.db.ListTransactionsForBooking(ctx, booking.ID)
	if err != nil {
		return err
	}
	for _, t := range prior {
		if t.Status != models.TxRejected && t.Status != models.TxCancelled {
			// Not the first installment.
			return nil
		}
	}

	minBps := s.minAdvanceBps
	company, err := s.db.GetCompany(ctx, booking.CompanyID)
	if err == nil && company.MinAdvanceBps > 0 {
		minBps = company.MinAdvanceBps
	}
	minAmount := (booking.TotalCents*minBps + 5000) / 10000
	if in.AmountCents < minAmount {
		return fmt.Errorf("%w: first installment %d is below the minimum %d (%d bps of %d)",
			ErrValidation, in.AmountCents, minAmount, minBps, booking.TotalCents)
	}
	return nil
}

// Process settles a pending transaction. Confirm and reject are both
// terminal; reject requires a reason. Re-processing a settled transaction
// returns ErrAlreadyProcessed and changes nothing.
func (s *Service) Process(ctx context.Context, id int64, decision string, actor models.Actor, reason string) (*models.PendingTransaction, error) {
	var to string
	switch decision {
	case DecisionConfirm:
		to = models.TxConfirmed
	case DecisionReject:
		if reason == "" {
			return nil, fmt.Errorf("%w: rejection requires a reason", ErrValidation)
		}
		to = models.TxRejected
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	tx, err := s.db.SettleTransaction(ctx, id, to, actor, reason)
	if err != nil {
		return tx, err
	}

	eventType := events.EventTransactionConfirmed
	if to == models.TxRejected {
		eventType = events.EventTransactionRejected
	}
	s.publish(eventType, tx)

	if to == models.TxConfirmed {
		if err := s.RecomputePaymentStatus(ctx, tx.BookingID, actor); err != nil {
			s.log.Error().Err(err).Int64("booking_id", tx.BookingID).Msg("payment status recompute failed")
		}
	} else {
		s.markFailedIfUnpaid(ctx, tx, actor)
	}

	s.log.Info().
		Int64("transaction_id", tx.ID).
		Str("status", tx.Status).
		Str("actor", actor.String()).
		Msg("transaction settled")

	return tx, nil
}

// Cancel voids a pending transaction. Terminal like the other outcomes;
// a settled transaction cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id int64, actor models.Actor) (*models.PendingTransaction, error) {
	tx, err := s.db.SettleTransaction(ctx, id, models.TxCancelled, actor, "")
	if err != nil {
		return tx, err
	}

	s.log.Info().
		Int64("transaction_id", tx.ID).
		Str("actor", actor.String()).
		Msg("transaction cancelled")

	return tx, nil
}

// RecomputePaymentStatus moves the booking payment axis to completed once
// the confirmed sum covers the booking total. An advance or split booking
// stays pending until every installment is confirmed.
func (s *Service) RecomputePaymentStatus(ctx context.Context, bookingID int64, actor models.Actor) error {
	booking, err := s.db.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.PaymentStatus != models.PaymentPending && booking.PaymentStatus != models.PaymentFailed {
		return nil
	}

	sum, err := s.db.SumConfirmedForBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if sum < booking.TotalCents {
		return nil
	}

	if err := s.db.UpdateBookingPaymentStatus(ctx, bookingID, booking.PaymentStatus, models.PaymentCompleted, actor); err != nil {
		if errors.Is(err, database.ErrInvalidTransition) {
			// Lost a race with another settling writer; the axis already moved.
			return nil
		}
		return err
	}

	s.publishPayment(booking, models.PaymentCompleted, actor)
	return nil
}

// markFailedIfUnpaid flags a booking whose only settlement attempt was
// rejected. A later confirmed transaction moves the axis forward again.
func (s *Service) markFailedIfUnpaid(ctx context.Context, tx *models.PendingTransaction, actor models.Actor) {
	booking, err := s.db.GetBooking(ctx, tx.BookingID)
	if err != nil || booking.PaymentStatus != models.PaymentPending {
		return
	}
	sum, err := s.db.SumConfirmedForBooking(ctx, tx.BookingID)
	if err != nil || sum > 0 {
		return
	}
	if err := s.db.UpdateBookingPaymentStatus(ctx, tx.BookingID, models.PaymentPending, models.PaymentFailed, actor); err != nil {
		if !errors.Is(err, database.ErrInvalidTransition) {
			s.log.Error().Err(err).Int64("booking_id", tx.BookingID).Msg("mark payment failed")
		}
		return
	}
	s.publishPayment(booking, models.PaymentFailed, actor)
}

// MarkRefunded records a refund decision on a fully paid booking.
func (s *Service) MarkRefunded(ctx context.Context, bookingID int64, partial bool, actor models.Actor) error {
	to := models.PaymentRefunded
	if partial {
		to = models.PaymentPartialRefund
	}
	booking, err := s.db.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if err := s.db.UpdateBookingPaymentStatus(ctx, bookingID, models.PaymentCompleted, to, actor); err != nil {
		return err
	}
	s.publishPayment(booking, to, actor)
	return nil
}

// Get returns a transaction by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.PendingTransaction, error) {
	return s.db.GetTransaction(ctx, id)
}

// ListForBooking returns all settlement obligations of a booking.
func (s *Service) ListForBooking(ctx context.Context, bookingID int64) ([]models.PendingTransaction, error) {
	return s.db.ListTransactionsForBooking(ctx, bookingID)
}

func (s *Service) publish(eventType string, tx *models.PendingTransaction) {
	err := s.publisher.PublishJSON(eventType, events.TransactionEventPayload{
		TransactionID:   tx.ID,
		Reference:       tx.Reference,
		BookingID:       tx.BookingID,
		AmountCents:     tx.AmountCents,
		Currency:        tx.Currency,
		Method:          tx.Method,
		TimingPlan:      tx.TimingPlan,
		Status:          tx.Status,
		ProcessedBy:     tx.ProcessedBy,
		RejectionReason: tx.RejectionReason,
	})
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func (s *Service) publishPayment(booking *models.Booking, to string, actor models.Actor) {
	err := s.publisher.PublishJSON(events.EventPaymentStatusChanged, events.BookingEventPayload{
		BookingID:     booking.ID,
		Reference:     booking.Reference,
		ResourceID:    booking.ResourceID,
		ResourceName:  booking.ResourceName,
		UserID:        booking.UserID,
		Status:        booking.Status,
		PaymentStatus: to,
		TotalCents:    booking.TotalCents,
		Actor:         actor.String(),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("event publish failed")
	}
}
