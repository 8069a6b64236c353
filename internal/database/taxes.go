package database

import (
	"context"
	"fmt"
	"time"

	"taurean/internal/models"
)

// CreateTax inserts a tax. A duplicate (company, name) pair is a conflict.
func (db *DB) CreateTax(ctx context.Context, t *models.Tax) error {
	if t == nil {
		return fmt.Errorf("tax is nil")
	}
	if t.AppliesTo == "" {
		t.AppliesTo = models.TaxAppliesBoth
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO taxes (company_id, name, rate_bps, applies_to, is_active, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.CompanyID, t.Name, t.RateBps, t.AppliesTo, t.IsActive, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tax %q: %w", t.Name, ErrDuplicate)
		}
		return fmt.Errorf("create tax: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// ListActiveTaxes returns the active taxes of a company. A quote snapshots
// this set once; taxes never change mid-calculation.
func (db *DB) ListActiveTaxes(ctx context.Context, companyID int64) ([]models.Tax, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, company_id, name, rate_bps, applies_to, is_active, created_at, updated_at
        FROM taxes WHERE company_id = ? AND is_active = 1 ORDER BY id ASC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list taxes: %w", err)
	}
	defer rows.Close()

	var out []models.Tax
	for rows.Next() {
		var t models.Tax
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Name, &t.RateBps, &t.AppliesTo, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tax: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeactivateTax marks a tax inactive; it stops applying to new quotes only.
func (db *DB) DeactivateTax(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `UPDATE taxes SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("deactivate tax: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("tax %d: %w", id, ErrResourceNotFound)
	}
	return nil
}
