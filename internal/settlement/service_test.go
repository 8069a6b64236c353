package settlement

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taurean/internal/database"
	"taurean/internal/events"
	"taurean/internal/models"
)

func setupService(t *testing.T, bus events.Publisher) (*Service, *database.DB, *models.Booking) {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()

	company := &models.Company{Name: "Test Hall Co", FeeRateBps: 200, MinAdvanceBps: 3000}
	require.NoError(t, db.CreateCompany(ctx, company))

	resource := &models.Resource{
		CompanyID: company.ID,
		Name:      "Main Hall",
		Kind:      models.KindFacility,
		Taxable:   true,
		IsActive:  true,
		PricingRules: []models.PricingRule{
			{AmountCents: 10000, Unit: models.UnitDay, IsDefault: true},
		},
	}
	require.NoError(t, db.CreateResource(ctx, resource))

	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	booking := &models.Booking{
		Reference:     uuid.NewString(),
		ResourceID:    resource.ID,
		ResourceName:  resource.Name,
		UserID:        7,
		CompanyID:     company.ID,
		StartTime:     start,
		EndTime:       start.Add(72 * time.Hour),
		DurationUnits: 3,
		TotalCents:    64200,
		Currency:      "USD",
	}
	require.NoError(t, db.ClaimBooking(ctx, booking))

	return NewService(db, bus, &logger, "USD", 0), db, booking
}

func TestCreateValidation(t *testing.T) {
	svc, _, booking := setupService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"zero amount", CreateInput{BookingID: booking.ID, AmountCents: 0, Method: models.MethodCash, TimingPlan: models.PlanFull}},
		{"negative amount", CreateInput{BookingID: booking.ID, AmountCents: -100, Method: models.MethodCash, TimingPlan: models.PlanFull}},
		{"unknown method", CreateInput{BookingID: booking.ID, AmountCents: 64200, Method: "crypto", TimingPlan: models.PlanFull}},
		{"unknown plan", CreateInput{BookingID: booking.ID, AmountCents: 64200, Method: models.MethodCash, TimingPlan: "weekly"}},
		{"full amount below total", CreateInput{BookingID: booking.ID, AmountCents: 60000, Method: models.MethodCash, TimingPlan: models.PlanFull}},
		{"first installment below minimum", CreateInput{BookingID: booking.ID, AmountCents: 10000, Method: models.MethodCash, TimingPlan: models.PlanAdvance}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateUnknownBooking(t *testing.T) {
	svc, _, _ := setupService(t, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		BookingID: 9999, AmountCents: 100, Method: models.MethodCash, TimingPlan: models.PlanFull,
	})
	assert.ErrorIs(t, err, database.ErrBookingNotFound)
}

func TestGatewayConfirmCompletesPayment(t *testing.T) {
	bus := events.NewBus()
	var confirmed, paymentChanged atomic.Int64
	bus.Subscribe(events.EventTransactionConfirmed, func(*events.Event) error {
		confirmed.Add(1)
		return nil
	})
	bus.Subscribe(events.EventPaymentStatusChanged, func(*events.Event) error {
		paymentChanged.Add(1)
		return nil
	})

	svc, db, booking := setupService(t, bus)
	ctx := context.Background()

	tx, err := svc.Create(ctx, CreateInput{
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		AmountCents: 64200,
		Method:      models.MethodGateway,
		TimingPlan:  models.PlanFull,
		ProviderRef: "prov-ref-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxPending, tx.Status)
	assert.NotEmpty(t, tx.Reference)

	settled, err := svc.Process(ctx, tx.ID, DecisionConfirm, models.GatewayActor, "")
	require.NoError(t, err)
	assert.Equal(t, models.TxConfirmed, settled.Status)
	assert.Equal(t, models.GatewayActor.String(), settled.ProcessedBy)

	reloaded, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, reloaded.PaymentStatus)

	assert.Equal(t, int64(1), confirmed.Load())
	assert.Equal(t, int64(1), paymentChanged.Load())
}

func TestProcessTerminality(t *testing.T) {
	svc, _, booking := setupService(t, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodCash, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)

	_, err = svc.Process(ctx, tx.ID, DecisionConfirm, models.Actor{Kind: models.ActorStaff, ID: "1"}, "")
	require.NoError(t, err)

	again, err := svc.Process(ctx, tx.ID, DecisionReject, models.Actor{Kind: models.ActorStaff, ID: "2"}, "changed my mind")
	assert.ErrorIs(t, err, database.ErrAlreadyProcessed)
	require.NotNil(t, again)
	assert.Equal(t, models.TxConfirmed, again.Status)
}

func TestAdvanceStaysPendingUntilRemainderConfirmed(t *testing.T) {
	svc, db, booking := setupService(t, nil)
	ctx := context.Background()
	staff := models.Actor{Kind: models.ActorStaff, ID: "1"}

	advance, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 20000, Method: models.MethodGateway, TimingPlan: models.PlanAdvance,
	})
	require.NoError(t, err)

	_, err = svc.Process(ctx, advance.ID, DecisionConfirm, staff, "")
	require.NoError(t, err)

	reloaded, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, reloaded.PaymentStatus, "partial payment must not complete the booking")

	remainder, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 44200, Method: models.MethodGateway, TimingPlan: models.PlanSplit,
	})
	require.NoError(t, err)

	_, err = svc.Process(ctx, remainder.ID, DecisionConfirm, staff, "")
	require.NoError(t, err)

	reloaded, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, reloaded.PaymentStatus)
}

func TestRejectRequiresReason(t *testing.T) {
	svc, db, booking := setupService(t, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodCash, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)

	_, err = svc.Process(ctx, tx.ID, DecisionReject, models.Actor{Kind: models.ActorStaff, ID: "1"}, "")
	assert.ErrorIs(t, err, ErrValidation)

	reloaded, err := db.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxPending, reloaded.Status)
}

func TestRejectMarksPaymentFailed(t *testing.T) {
	svc, db, booking := setupService(t, nil)
	ctx := context.Background()

	tx, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodGateway, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)

	settled, err := svc.Process(ctx, tx.ID, DecisionReject, models.GatewayActor, "card declined")
	require.NoError(t, err)
	assert.Equal(t, models.TxRejected, settled.Status)
	assert.Equal(t, "card declined", settled.RejectionReason)

	reloaded, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, reloaded.PaymentStatus)
}

func TestConfiguredMinimumAppliesWithoutCompanyOverride(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()

	// No per-company floor, so the service-level one decides.
	company := &models.Company{Name: "Floorless Co", FeeRateBps: 200}
	require.NoError(t, db.CreateCompany(ctx, company))

	resource := &models.Resource{
		CompanyID: company.ID,
		Name:      "Annex",
		Kind:      models.KindFacility,
		IsActive:  true,
		PricingRules: []models.PricingRule{
			{AmountCents: 10000, Unit: models.UnitDay, IsDefault: true},
		},
	}
	require.NoError(t, db.CreateResource(ctx, resource))

	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	booking := &models.Booking{
		Reference:     uuid.NewString(),
		ResourceID:    resource.ID,
		ResourceName:  resource.Name,
		UserID:        7,
		CompanyID:     company.ID,
		StartTime:     start,
		EndTime:       start.Add(24 * time.Hour),
		DurationUnits: 1,
		TotalCents:    10000,
		Currency:      "USD",
	}
	require.NoError(t, db.ClaimBooking(ctx, booking))

	svc := NewService(db, nil, &logger, "USD", 5000)

	_, err = svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 4000, Method: models.MethodCash, TimingPlan: models.PlanAdvance,
	})
	assert.ErrorIs(t, err, ErrValidation, "first installment below the configured 50%% floor")

	_, err = svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 5000, Method: models.MethodCash, TimingPlan: models.PlanAdvance,
	})
	assert.NoError(t, err)
}

func TestFailedPaymentRecoversOnConfirmedTotal(t *testing.T) {
	svc, db, booking := setupService(t, nil)
	ctx := context.Background()
	staff := models.Actor{Kind: models.ActorStaff, ID: "1"}

	declined, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodGateway, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)
	_, err = svc.Process(ctx, declined.ID, DecisionReject, models.GatewayActor, "card declined")
	require.NoError(t, err)

	reloaded, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentFailed, reloaded.PaymentStatus)

	// A fresh attempt that covers the total moves the booking out of
	// failed once it confirms.
	retry, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodCash, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)
	_, err = svc.Process(ctx, retry.ID, DecisionConfirm, staff, "")
	require.NoError(t, err)

	reloaded, err = db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, reloaded.PaymentStatus)
}

func TestCancelPendingTransaction(t *testing.T) {
	svc, _, booking := setupService(t, nil)
	ctx := context.Background()
	staff := models.Actor{Kind: models.ActorStaff, ID: "1"}

	tx, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodCheque, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, tx.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, models.TxCancelled, cancelled.Status)

	_, err = svc.Process(ctx, tx.ID, DecisionConfirm, staff, "")
	assert.ErrorIs(t, err, database.ErrAlreadyProcessed)
}

func TestMarkRefunded(t *testing.T) {
	svc, db, booking := setupService(t, nil)
	ctx := context.Background()
	staff := models.Actor{Kind: models.ActorStaff, ID: "1"}

	tx, err := svc.Create(ctx, CreateInput{
		BookingID: booking.ID, AmountCents: 64200, Method: models.MethodGateway, TimingPlan: models.PlanFull,
	})
	require.NoError(t, err)
	_, err = svc.Process(ctx, tx.ID, DecisionConfirm, staff, "")
	require.NoError(t, err)

	require.NoError(t, svc.MarkRefunded(ctx, booking.ID, false, staff))

	reloaded, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, reloaded.PaymentStatus)

	// A second refund has no pending->completed edge left to move.
	err = svc.MarkRefunded(ctx, booking.ID, true, staff)
	assert.ErrorIs(t, err, database.ErrInvalidTransition)
}
