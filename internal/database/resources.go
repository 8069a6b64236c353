package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taurean/internal/models"
)

// CreateCompany inserts a company.
func (db *DB) CreateCompany(ctx context.Context, c *models.Company) error {
	if c == nil {
		return fmt.Errorf("company is nil")
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO companies (name, fee_rate_bps, min_advance_bps, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)`, c.Name, c.FeeRateBps, c.MinAdvanceBps, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("company %q: %w", c.Name, ErrDuplicate)
		}
		return fmt.Errorf("create company: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetCompany fetches a company by id.
func (db *DB) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	var c models.Company
	err := db.QueryRowContext(ctx, `SELECT id, name, fee_rate_bps, min_advance_bps, created_at, updated_at
        FROM companies WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.FeeRateBps, &c.MinAdvanceBps, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %d: %w", id, ErrResourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

// CreateResource inserts a resource with its pricing rules.
func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	if r == nil {
		return fmt.Errorf("resource is nil")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO resources (company_id, name, description, kind, taxable, total_quantity, is_active, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CompanyID, r.Name, r.Description, r.Kind, r.Taxable, r.TotalQuantity, r.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for i := range r.PricingRules {
		rule := &r.PricingRules[i]
		ruleRes, err := tx.ExecContext(ctx, `INSERT INTO pricing_rules (resource_id, amount_cents, unit, is_default)
            VALUES (?, ?, ?, ?)`, id, rule.AmountCents, rule.Unit, rule.IsDefault)
		if err != nil {
			return fmt.Errorf("create pricing rule: %w", err)
		}
		ruleID, err := ruleRes.LastInsertId()
		if err != nil {
			return err
		}
		rule.ID = ruleID
		rule.ResourceID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resource: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetResource fetches a resource with its pricing rules.
func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	var r models.Resource
	err := db.QueryRowContext(ctx, `SELECT id, company_id, name, description, kind, taxable, total_quantity, is_active, created_at, updated_at
        FROM resources WHERE id = ?`, id).
		Scan(&r.ID, &r.CompanyID, &r.Name, &r.Description, &r.Kind, &r.Taxable, &r.TotalQuantity, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %d: %w", id, ErrResourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}

	rules, err := db.listPricingRules(ctx, id)
	if err != nil {
		return nil, err
	}
	r.PricingRules = rules
	return &r, nil
}

// ListActiveResources returns active resources for a company, or all
// companies when companyID is 0.
func (db *DB) ListActiveResources(ctx context.Context, companyID int64) ([]models.Resource, error) {
	query := `SELECT id, company_id, name, description, kind, taxable, total_quantity, is_active, created_at, updated_at
        FROM resources WHERE is_active = 1`
	args := []any{}
	if companyID != 0 {
		query += ` AND company_id = ?`
		args = append(args, companyID)
	}
	query += ` ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Description, &r.Kind, &r.Taxable, &r.TotalQuantity, &r.IsActive, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		rules, err := db.listPricingRules(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].PricingRules = rules
	}
	return out, nil
}

// DeactivateResource marks a resource inactive. Existing bookings keep
// their holds.
func (db *DB) DeactivateResource(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE resources SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("deactivate resource: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("resource %d: %w", id, ErrResourceNotFound)
	}
	return nil
}

func (db *DB) listPricingRules(ctx context.Context, resourceID int64) ([]models.PricingRule, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, resource_id, amount_cents, unit, is_default
        FROM pricing_rules WHERE resource_id = ? ORDER BY id ASC`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	defer rows.Close()

	var out []models.PricingRule
	for rows.Next() {
		var r models.PricingRule
		if err := rows.Scan(&r.ID, &r.ResourceID, &r.AmountCents, &r.Unit, &r.IsDefault); err != nil {
			return nil, fmt.Errorf("scan pricing rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// isUniqueViolation detects sqlite unique constraint errors without
// depending on driver error codes.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
