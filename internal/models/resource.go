package models

import "time"

// PricingRule describes how a resource is priced per unit.
type PricingRule struct {
	ID          int64  `yaml:"id" json:"id"`
	ResourceID  int64  `yaml:"resource_id" json:"resource_id"`
	AmountCents int64  `yaml:"amount_cents" json:"amount_cents"`
	Unit        string `yaml:"unit" json:"unit"` // hour, day, item
	IsDefault   bool   `yaml:"is_default" json:"is_default"`
}

// Resource is a rentable facility (time-boxed) or inventory item (countable).
type Resource struct {
	ID            int64         `yaml:"id" json:"id"`
	CompanyID     int64         `yaml:"company_id" json:"company_id"`
	Name          string        `yaml:"name" json:"name"`
	Description   string        `yaml:"description" json:"description"`
	Kind          string        `yaml:"kind" json:"kind"` // facility, inventory
	Taxable       bool          `yaml:"taxable" json:"taxable"`
	TotalQuantity int64         `yaml:"total_quantity" json:"total_quantity"` // inventory only
	PricingRules  []PricingRule `yaml:"pricing_rules" json:"pricing_rules"`
	IsActive      bool          `yaml:"is_active" json:"is_active"`
	CreatedAt     time.Time     `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `yaml:"updated_at" json:"updated_at"`
}

// DefaultRule returns the default pricing rule, or the first one when
// no rule is flagged as default.
func (r *Resource) DefaultRule() *PricingRule {
	for i := range r.PricingRules {
		if r.PricingRules[i].IsDefault {
			return &r.PricingRules[i]
		}
	}
	if len(r.PricingRules) > 0 {
		return &r.PricingRules[0]
	}
	return nil
}

// Company owns resources and carries fee/tax policy.
type Company struct {
	ID            int64     `yaml:"id" json:"id"`
	Name          string    `yaml:"name" json:"name"`
	FeeRateBps    int64     `yaml:"fee_rate_bps" json:"fee_rate_bps"`
	MinAdvanceBps int64     `yaml:"min_advance_bps" json:"min_advance_bps"`
	CreatedAt     time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time `yaml:"updated_at" json:"updated_at"`
}

// Tax is a percentage applied to the taxable subtotal. Rate is stored in
// basis points (500 = 5%).
type Tax struct {
	ID        int64     `yaml:"id" json:"id"`
	CompanyID int64     `yaml:"company_id" json:"company_id"`
	Name      string    `yaml:"name" json:"name"`
	RateBps   int64     `yaml:"rate_bps" json:"rate_bps"`
	AppliesTo string    `yaml:"applies_to" json:"applies_to"` // facility, inventory, both
	IsActive  bool      `yaml:"is_active" json:"is_active"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

// Applies reports whether the tax covers the given resource kind.
func (t Tax) Applies(kind string) bool {
	return t.AppliesTo == TaxAppliesBoth || t.AppliesTo == kind
}
