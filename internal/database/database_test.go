package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taurean/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupFileDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedCompany(t *testing.T, db *DB) *models.Company {
	t.Helper()
	company := &models.Company{Name: "Test Hall Co", FeeRateBps: 200, MinAdvanceBps: 3000}
	require.NoError(t, db.CreateCompany(context.Background(), company))
	return company
}

func seedFacility(t *testing.T, db *DB, companyID int64) *models.Resource {
	t.Helper()
	r := &models.Resource{
		CompanyID: companyID,
		Name:      "Main Hall",
		Kind:      models.KindFacility,
		Taxable:   true,
		IsActive:  true,
		PricingRules: []models.PricingRule{
			{AmountCents: 10000, Unit: models.UnitDay, IsDefault: true},
		},
	}
	require.NoError(t, db.CreateResource(context.Background(), r))
	return r
}

func seedInventory(t *testing.T, db *DB, companyID, quantity int64) *models.Resource {
	t.Helper()
	r := &models.Resource{
		CompanyID:     companyID,
		Name:          "Projector",
		Kind:          models.KindInventory,
		TotalQuantity: quantity,
		IsActive:      true,
		PricingRules: []models.PricingRule{
			{AmountCents: 2500, Unit: models.UnitItem, IsDefault: true},
		},
	}
	require.NoError(t, db.CreateResource(context.Background(), r))
	return r
}

func facilityBooking(resourceID, companyID int64, start, end time.Time) *models.Booking {
	return &models.Booking{
		Reference:    uuid.NewString(),
		ResourceID:   resourceID,
		ResourceName: "Main Hall",
		UserID:       7,
		CompanyID:    companyID,
		StartTime:    start,
		EndTime:      end,
		TotalCents:   64200,
		Currency:     "USD",
	}
}

func TestNewDBCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	for _, table := range []string{
		"companies", "resources", "pricing_rules", "taxes",
		"bookings", "booking_status_events", "pending_transactions", "webhook_events",
	} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s must exist", table)
	}
}

func TestResourceRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, db)
	facility := seedFacility(t, db, company.ID)

	loaded, err := db.GetResource(ctx, facility.ID)
	require.NoError(t, err)
	assert.Equal(t, facility.Name, loaded.Name)
	assert.Equal(t, models.KindFacility, loaded.Kind)
	require.Len(t, loaded.PricingRules, 1)
	assert.Equal(t, int64(10000), loaded.PricingRules[0].AmountCents)
	assert.True(t, loaded.PricingRules[0].IsDefault)

	_, err = db.GetResource(ctx, 999)
	assert.ErrorIs(t, err, ErrResourceNotFound)

	active, err := db.ListActiveResources(ctx, company.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, db.DeactivateResource(ctx, facility.ID))
	active, err = db.ListActiveResources(ctx, company.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTaxUniquePerCompany(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, db)

	tax := &models.Tax{CompanyID: company.ID, Name: "VAT", RateBps: 500, AppliesTo: models.TaxAppliesBoth, IsActive: true}
	require.NoError(t, db.CreateTax(ctx, tax))

	dup := &models.Tax{CompanyID: company.ID, Name: "VAT", RateBps: 700, AppliesTo: models.TaxAppliesBoth, IsActive: true}
	assert.ErrorIs(t, db.CreateTax(ctx, dup), ErrDuplicate)

	taxes, err := db.ListActiveTaxes(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, taxes, 1)
	assert.Equal(t, int64(500), taxes[0].RateBps)

	require.NoError(t, db.DeactivateTax(ctx, tax.ID))
	taxes, err = db.ListActiveTaxes(ctx, company.ID)
	require.NoError(t, err)
	assert.Empty(t, taxes)
}
