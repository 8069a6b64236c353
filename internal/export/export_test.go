package export

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"taurean/internal/database"
	"taurean/internal/models"
)

func TestBookingsReport(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()

	company := &models.Company{Name: "Test Hall Co"}
	require.NoError(t, db.CreateCompany(ctx, company))

	resource := &models.Resource{
		CompanyID: company.ID,
		Name:      "Main Hall",
		Kind:      models.KindFacility,
		IsActive:  true,
		PricingRules: []models.PricingRule{
			{AmountCents: 10000, Unit: models.UnitDay, IsDefault: true},
		},
	}
	require.NoError(t, db.CreateResource(ctx, resource))

	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	booking := &models.Booking{
		Reference:    uuid.NewString(),
		ResourceID:   resource.ID,
		ResourceName: resource.Name,
		UserID:       7,
		CompanyID:    company.ID,
		StartTime:    start,
		EndTime:      start.Add(24 * time.Hour),
		TotalCents:   64200,
		Currency:     "USD",
	}
	require.NoError(t, db.ClaimBooking(ctx, booking))

	tx := &models.PendingTransaction{
		Reference:   uuid.NewString(),
		UserID:      7,
		CompanyID:   company.ID,
		BookingID:   booking.ID,
		Type:        "booking",
		AmountCents: 64200,
		Currency:    "USD",
		Method:      models.MethodGateway,
		TimingPlan:  models.PlanFull,
	}
	require.NoError(t, db.CreateTransaction(ctx, tx))

	svc := NewService(db, t.TempDir(), &logger)
	path, err := svc.BookingsReport(ctx, time.Now().Add(-time.Hour), start.Add(48*time.Hour))
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	ref, err := f.GetCellValue(sheetBookings, "B2")
	require.NoError(t, err)
	assert.Equal(t, booking.Reference, ref)

	status, err := f.GetCellValue(sheetBookings, "H2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status)

	amount, err := f.GetCellValue(sheetSettlements, "D2")
	require.NoError(t, err)
	assert.Equal(t, "642.00 USD", amount)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "642.00 USD", formatMoney(64200, "USD"))
	assert.Equal(t, "0.05 USD", formatMoney(5, "USD"))
	assert.Equal(t, "12.30 GHS", formatMoney(1230, "GHS"))
}
