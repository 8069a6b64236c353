// Package booking implements the reservation lifecycle: quoting,
// claiming a hold against the availability ledger, and validated status
// transitions. The payment axis is never moved here; that belongs to the
// settlement ledger.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"taurean/internal/database"
	"taurean/internal/events"
	"taurean/internal/metrics"
	"taurean/internal/models"
	"taurean/internal/pricing"
)

// ErrValidation marks a malformed booking request.
var ErrValidation = errors.New("validation failed")

// transitions is the allowed lifecycle edge table. Anything not listed
// is rejected before touching the database.
var transitions = map[string][]string{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCompleted, models.StatusCancelled, models.StatusNoShow},
}

func transitionAllowed(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Service owns reservations.
type Service struct {
	db        *database.DB
	publisher events.Publisher
	log       zerolog.Logger
	currency  string
}

func NewService(db *database.DB, publisher events.Publisher, logger *zerolog.Logger, currency string) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:        db,
		publisher: publisher,
		log:       logger.With().Str("component", "booking").Logger(),
		currency:  currency,
	}
}

// CreateInput describes a reservation request. For facilities the window
// is required and quantity defaults to 1; for inventory items quantity is
// required and the window is ignored.
type CreateInput struct {
	ResourceID    int64
	UserID        int64
	StartTime     time.Time
	EndTime       time.Time
	Quantity      int64
	DurationUnits int64
	Notes         string
}

// Quote prices a request without claiming anything. Deterministic: the
// same input against the same configuration yields the same quote.
func (s *Service) Quote(ctx context.Context, in CreateInput) (pricing.Quote, error) {
	resource, company, taxes, err := s.loadPolicy(ctx, in.ResourceID)
	if err != nil {
		return pricing.Quote{}, err
	}
	_, quote, err := s.price(resource, company, taxes, in)
	return quote, err
}

// Create quotes the request, claims the hold and records the booking in
// one atomic check-and-claim. Exactly one of two identical concurrent
// requests wins; the loser gets ErrNotAvailable.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Booking, error) {
	resource, company, taxes, err := s.loadPolicy(ctx, in.ResourceID)
	if err != nil {
		return nil, err
	}

	normalized, quote, err := s.price(resource, company, taxes, in)
	if err != nil {
		return nil, err
	}

	b := &models.Booking{
		Reference:     uuid.NewString(),
		ResourceID:    resource.ID,
		ResourceName:  resource.Name,
		UserID:        in.UserID,
		CompanyID:     resource.CompanyID,
		StartTime:     normalized.StartTime,
		EndTime:       normalized.EndTime,
		Quantity:      normalized.Quantity,
		DurationUnits: normalized.DurationUnits,
		TotalCents:    quote.TotalCents,
		Currency:      s.currency,
		Notes:         in.Notes,
	}

	if err := s.db.ClaimBooking(ctx, b); err != nil {
		if errors.Is(err, database.ErrNotAvailable) {
			metrics.IncBookingClaim("unavailable")
		} else {
			metrics.IncBookingClaim("error")
		}
		return nil, err
	}
	metrics.IncBookingClaim("claimed")

	s.publishBooking(events.EventBookingCreated, b, models.Actor{Kind: models.ActorUser, ID: fmt.Sprint(in.UserID)})

	s.log.Info().
		Int64("booking_id", b.ID).
		Str("reference", b.Reference).
		Int64("resource_id", b.ResourceID).
		Int64("total_cents", b.TotalCents).
		Msg("booking claimed")

	return b, nil
}

// Transition moves the lifecycle axis along an allowed edge. The
// underlying update is a compare-and-swap, so two racing writers cannot
// both succeed.
func (s *Service) Transition(ctx context.Context, id int64, to string, actor models.Actor) (*models.Booking, error) {
	b, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.DeletedAt != nil {
		return nil, fmt.Errorf("booking %d: %w", id, database.ErrBookingNotFound)
	}
	if !transitionAllowed(b.Status, to) {
		return nil, fmt.Errorf("booking %d status %s -> %s: %w", id, b.Status, to, database.ErrInvalidTransition)
	}

	if err := s.db.UpdateBookingStatus(ctx, id, b.Status, to, actor); err != nil {
		return nil, err
	}

	updated, err := s.db.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publishBooking(events.EventBookingStatusChanged, updated, actor)

	s.log.Info().
		Int64("booking_id", id).
		Str("from", b.Status).
		Str("to", to).
		Str("actor", actor.String()).
		Msg("booking status changed")

	return updated, nil
}

// SoftDelete releases the hold and hides the booking from availability
// queries. The row survives for audit.
func (s *Service) SoftDelete(ctx context.Context, id int64, actor models.Actor) error {
	if err := s.db.SoftDeleteBooking(ctx, id, actor); err != nil {
		return err
	}
	s.log.Info().Int64("booking_id", id).Str("actor", actor.String()).Msg("booking deleted")
	return nil
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.Booking, error) {
	return s.db.GetBooking(ctx, id)
}

// GetByReference returns a booking by its public reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return s.db.GetBookingByReference(ctx, reference)
}

// Calendar returns the public windows of a facility: start, end and
// status of committed bookings, nothing else.
func (s *Service) Calendar(ctx context.Context, resourceID int64, from, to time.Time) ([]models.CalendarWindow, error) {
	resource, err := s.db.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.Kind != models.KindFacility {
		return nil, fmt.Errorf("%w: resource %d is not a facility", ErrValidation, resourceID)
	}
	return s.db.CalendarWindows(ctx, resourceID, from, to)
}

// Availability reports the free quantity of an inventory resource.
func (s *Service) Availability(ctx context.Context, resourceID int64) (*models.Availability, error) {
	resource, err := s.db.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.Kind != models.KindInventory {
		return nil, fmt.Errorf("%w: resource %d is not an inventory item", ErrValidation, resourceID)
	}
	committed, err := s.db.CommittedQuantity(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	return &models.Availability{
		Date:       time.Now().Truncate(24 * time.Hour),
		ResourceID: resourceID,
		Booked:     committed,
		Available:  resource.TotalQuantity - committed,
	}, nil
}

// History returns the audit trail of a booking.
func (s *Service) History(ctx context.Context, id int64) ([]models.StatusEvent, error) {
	if _, err := s.db.GetBooking(ctx, id); err != nil {
		return nil, err
	}
	return s.db.ListStatusEvents(ctx, id)
}

func (s *Service) loadPolicy(ctx context.Context, resourceID int64) (*models.Resource, *models.Company, []models.Tax, error) {
	resource, err := s.db.GetResource(ctx, resourceID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !resource.IsActive {
		return nil, nil, nil, fmt.Errorf("resource %d: %w", resourceID, database.ErrResourceNotFound)
	}
	company, err := s.db.GetCompany(ctx, resource.CompanyID)
	if err != nil {
		return nil, nil, nil, err
	}
	taxes, err := s.db.ListActiveTaxes(ctx, resource.CompanyID)
	if err != nil {
		return nil, nil, nil, err
	}
	return resource, company, taxes, nil
}

// price validates and normalizes the request, then computes the quote.
// The quote snapshots the tax set it was given; later tax changes never
// reprice an existing booking.
func (s *Service) price(resource *models.Resource, company *models.Company, taxes []models.Tax, in CreateInput) (CreateInput, pricing.Quote, error) {
	rule := resource.DefaultRule()
	if rule == nil {
		return in, pricing.Quote{}, fmt.Errorf("resource %d has no pricing rule", resource.ID)
	}

	switch resource.Kind {
	case models.KindFacility:
		if in.StartTime.IsZero() || in.EndTime.IsZero() {
			return in, pricing.Quote{}, fmt.Errorf("%w: facility booking requires a time window", ErrValidation)
		}
		if !in.StartTime.Before(in.EndTime) {
			return in, pricing.Quote{}, fmt.Errorf("%w: start %s is not before end %s", ErrValidation, in.StartTime, in.EndTime)
		}
		if in.Quantity < 1 {
			in.Quantity = 1
		}
		if in.DurationUnits < 1 {
			in.DurationUnits = windowUnits(in.StartTime, in.EndTime, rule.Unit)
		}
	case models.KindInventory:
		if in.Quantity < 1 {
			return in, pricing.Quote{}, fmt.Errorf("%w: inventory booking requires quantity >= 1", ErrValidation)
		}
		if in.DurationUnits < 1 {
			in.DurationUnits = 1
		}
	default:
		return in, pricing.Quote{}, fmt.Errorf("resource %d has unknown kind %q", resource.ID, resource.Kind)
	}

	quote, err := pricing.Compute(pricing.QuoteInput{
		BasePriceCents: rule.AmountCents,
		Quantity:       in.Quantity,
		DurationUnits:  in.DurationUnits,
		ResourceKind:   resource.Kind,
		Taxable:        resource.Taxable,
		FeeRateBps:     company.FeeRateBps,
		Taxes:          taxes,
	})
	if err != nil {
		return in, pricing.Quote{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return in, quote, nil
}

// windowUnits converts a time window to billable units, rounding up so a
// partial unit bills as a whole one.
func windowUnits(start, end time.Time, unit string) int64 {
	d := end.Sub(start)
	var per time.Duration
	switch unit {
	case models.UnitDay:
		per = 24 * time.Hour
	default:
		per = time.Hour
	}
	units := int64((d + per - 1) / per)
	if units < 1 {
		units = 1
	}
	return units
}

func (s *Service) publishBooking(eventType string, b *models.Booking, actor models.Actor) {
	err := s.publisher.PublishJSON(eventType, events.BookingEventPayload{
		BookingID:     b.ID,
		Reference:     b.Reference,
		ResourceID:    b.ResourceID,
		ResourceName:  b.ResourceName,
		UserID:        b.UserID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		StartTime:     b.StartTime,
		EndTime:       b.EndTime,
		TotalCents:    b.TotalCents,
		Actor:         actor.String(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}
