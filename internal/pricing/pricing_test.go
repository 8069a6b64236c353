package pricing

import (
	"testing"

	"taurean/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeItemizedQuote(t *testing.T) {
	// base 100.00, quantity 2, 3 days, 5% tax, 2% company fee
	in := QuoteInput{
		BasePriceCents: 10000,
		Quantity:       2,
		DurationUnits:  3,
		ResourceKind:   models.KindFacility,
		Taxable:        true,
		FeeRateBps:     200,
		Taxes: []models.Tax{
			{ID: 1, Name: "VAT", RateBps: 500, AppliesTo: models.TaxAppliesBoth, IsActive: true},
		},
	}

	q, err := Compute(in)
	require.NoError(t, err)

	assert.Equal(t, int64(60000), q.SubtotalCents)
	assert.Equal(t, int64(1200), q.ServiceFeeCents)
	require.Len(t, q.TaxLines, 1)
	assert.Equal(t, int64(3000), q.TaxLines[0].AmountCents)
	assert.Equal(t, int64(3000), q.TaxTotalCents)
	assert.Equal(t, int64(64200), q.TotalCents)
}

func TestComputeDeterministic(t *testing.T) {
	in := QuoteInput{
		BasePriceCents: 12345,
		Quantity:       3,
		DurationUnits:  7,
		ResourceKind:   models.KindInventory,
		Taxable:        true,
		FeeRateBps:     150,
		Taxes: []models.Tax{
			{ID: 1, Name: "VAT", RateBps: 750, AppliesTo: models.TaxAppliesBoth, IsActive: true},
			{ID: 2, Name: "Levy", RateBps: 250, AppliesTo: models.TaxAppliesInventory, IsActive: true},
		},
	}

	first, err := Compute(in)
	require.NoError(t, err)
	second, err := Compute(in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeTaxFiltering(t *testing.T) {
	in := QuoteInput{
		BasePriceCents: 10000,
		Quantity:       1,
		DurationUnits:  1,
		ResourceKind:   models.KindFacility,
		Taxable:        true,
		Taxes: []models.Tax{
			{ID: 1, Name: "VAT", RateBps: 500, AppliesTo: models.TaxAppliesBoth, IsActive: true},
			{ID: 2, Name: "Inventory levy", RateBps: 300, AppliesTo: models.TaxAppliesInventory, IsActive: true},
			{ID: 3, Name: "Inactive", RateBps: 900, AppliesTo: models.TaxAppliesBoth, IsActive: false},
		},
	}

	q, err := Compute(in)
	require.NoError(t, err)
	require.Len(t, q.TaxLines, 1)
	assert.Equal(t, "VAT", q.TaxLines[0].Name)
	assert.Equal(t, int64(10500), q.TotalCents)
}

func TestComputeNotTaxable(t *testing.T) {
	in := QuoteInput{
		BasePriceCents: 10000,
		Quantity:       1,
		DurationUnits:  2,
		ResourceKind:   models.KindFacility,
		Taxable:        false,
		FeeRateBps:     200,
		Taxes: []models.Tax{
			{ID: 1, Name: "VAT", RateBps: 500, AppliesTo: models.TaxAppliesBoth, IsActive: true},
		},
	}

	q, err := Compute(in)
	require.NoError(t, err)
	assert.Empty(t, q.TaxLines)
	assert.Equal(t, int64(20400), q.TotalCents)
}

func TestComputeInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		in   QuoteInput
	}{
		{"negative base price", QuoteInput{BasePriceCents: -1, Quantity: 1, DurationUnits: 1}},
		{"zero quantity", QuoteInput{BasePriceCents: 100, Quantity: 0, DurationUnits: 1}},
		{"zero duration", QuoteInput{BasePriceCents: 100, Quantity: 1, DurationUnits: 0}},
		{"negative fee", QuoteInput{BasePriceCents: 100, Quantity: 1, DurationUnits: 1, FeeRateBps: -5}},
		{"negative tax rate", QuoteInput{
			BasePriceCents: 100, Quantity: 1, DurationUnits: 1, Taxable: true,
			Taxes: []models.Tax{{Name: "Bad", RateBps: -100, AppliesTo: models.TaxAppliesBoth, IsActive: true}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compute(tc.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestComputeRounding(t *testing.T) {
	// 33.33 * 1 * 1 with 3.33% tax: 3333 * 333 / 10000 = 111.0889 -> rounds to 111
	in := QuoteInput{
		BasePriceCents: 3333,
		Quantity:       1,
		DurationUnits:  1,
		ResourceKind:   models.KindFacility,
		Taxable:        true,
		Taxes: []models.Tax{
			{ID: 1, Name: "VAT", RateBps: 333, AppliesTo: models.TaxAppliesBoth, IsActive: true},
		},
	}

	q, err := Compute(in)
	require.NoError(t, err)
	assert.Equal(t, int64(111), q.TaxLines[0].AmountCents)
}
