// Package pricing computes itemized quotes for a reservation. All
// arithmetic is done in integer minor units (cents); rates are basis
// points. The package is pure: no I/O, no state, same inputs always
// produce the same quote.
package pricing

import (
	"errors"
	"fmt"

	"taurean/internal/models"
)

var ErrInvalidInput = errors.New("invalid pricing input")

// QuoteInput are the inputs snapshot for one quote.
type QuoteInput struct {
	BasePriceCents int64
	Quantity       int64
	DurationUnits  int64
	ResourceKind   string // facility, inventory
	Taxable        bool
	FeeRateBps     int64
	Taxes          []models.Tax
}

// TaxLine is one tax applied to the subtotal.
type TaxLine struct {
	TaxID       int64  `json:"tax_id"`
	Name        string `json:"name"`
	RateBps     int64  `json:"rate_bps"`
	AmountCents int64  `json:"amount_cents"`
}

// Quote is the itemized result.
type Quote struct {
	SubtotalCents   int64     `json:"subtotal_cents"`
	ServiceFeeCents int64     `json:"service_fee_cents"`
	TaxLines        []TaxLine `json:"tax_lines"`
	TaxTotalCents   int64     `json:"tax_total_cents"`
	TotalCents      int64     `json:"total_cents"`
}

// Compute builds a quote. Taxes apply independently to the same base,
// no compounding. Returns ErrInvalidInput for a negative base price,
// quantity below 1, duration below 1 or a negative tax rate.
func Compute(in QuoteInput) (Quote, error) {
	if in.BasePriceCents < 0 {
		return Quote{}, fmt.Errorf("%w: base price %d is negative", ErrInvalidInput, in.BasePriceCents)
	}
	if in.Quantity < 1 {
		return Quote{}, fmt.Errorf("%w: quantity %d is below 1", ErrInvalidInput, in.Quantity)
	}
	if in.DurationUnits < 1 {
		return Quote{}, fmt.Errorf("%w: duration %d is below 1", ErrInvalidInput, in.DurationUnits)
	}
	if in.FeeRateBps < 0 {
		return Quote{}, fmt.Errorf("%w: fee rate %d is negative", ErrInvalidInput, in.FeeRateBps)
	}

	q := Quote{
		SubtotalCents: in.BasePriceCents * in.Quantity * in.DurationUnits,
	}
	q.ServiceFeeCents = applyBps(q.SubtotalCents, in.FeeRateBps)

	if in.Taxable {
		for _, tax := range in.Taxes {
			if tax.RateBps < 0 {
				return Quote{}, fmt.Errorf("%w: tax %q rate %d is negative", ErrInvalidInput, tax.Name, tax.RateBps)
			}
			if !tax.IsActive || !tax.Applies(in.ResourceKind) {
				continue
			}
			line := TaxLine{
				TaxID:       tax.ID,
				Name:        tax.Name,
				RateBps:     tax.RateBps,
				AmountCents: applyBps(q.SubtotalCents, tax.RateBps),
			}
			q.TaxLines = append(q.TaxLines, line)
			q.TaxTotalCents += line.AmountCents
		}
	}

	q.TotalCents = q.SubtotalCents + q.ServiceFeeCents + q.TaxTotalCents
	return q, nil
}

// applyBps multiplies amount by a basis-point rate, rounding half up.
func applyBps(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
