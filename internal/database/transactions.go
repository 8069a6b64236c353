package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taurean/internal/models"
)

const transactionColumns = `id, reference, user_id, company_id, booking_id, type,
    amount_cents, currency, method, timing_plan, status, provider_ref,
    processed_by, rejection_reason, notes, created_at, updated_at, version`

// CreateTransaction inserts a pending transaction (status=pending).
func (db *DB) CreateTransaction(ctx context.Context, t *models.PendingTransaction) error {
	if t == nil {
		return fmt.Errorf("transaction is nil")
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO pending_transactions (
            reference, user_id, company_id, booking_id, type, amount_cents, currency,
            method, timing_plan, status, provider_ref, notes, created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Reference, t.UserID, t.CompanyID, t.BookingID, t.Type, t.AmountCents, t.Currency,
		t.Method, t.TimingPlan, models.TxPending, t.ProviderRef, t.Notes, now, now, 1)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transaction %s: %w", t.Reference, ErrDuplicate)
		}
		return fmt.Errorf("create transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	t.Status = models.TxPending
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1
	return nil
}

// GetTransaction returns a transaction by id.
func (db *DB) GetTransaction(ctx context.Context, id int64) (*models.PendingTransaction, error) {
	row := db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM pending_transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %d: %w", id, ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// GetTransactionByProviderRef looks up the transaction a gateway callback
// refers to. Returns ErrTransactionNotFound for unmatched references; the
// reconciler discards those.
func (db *DB) GetTransactionByProviderRef(ctx context.Context, providerRef string) (*models.PendingTransaction, error) {
	row := db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM pending_transactions WHERE provider_ref = ?`, providerRef)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider ref %s: %w", providerRef, ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by provider ref: %w", err)
	}
	return t, nil
}

// SettleTransaction moves a pending transaction to a terminal status with
// a conditional update keyed on status='pending'. The first writer wins;
// any later writer gets ErrAlreadyProcessed. This is the serialization
// point for staff decisions racing gateway callbacks.
func (db *DB) SettleTransaction(ctx context.Context, id int64, to string, actor models.Actor, rejectionReason string) (*models.PendingTransaction, error) {
	switch to {
	case models.TxConfirmed, models.TxRejected, models.TxCancelled:
	default:
		return nil, fmt.Errorf("settle to %q: %w", to, ErrInvalidTransition)
	}

	res, err := db.ExecContext(ctx, `UPDATE pending_transactions
        SET status = ?, processed_by = ?, rejection_reason = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND status = ?`,
		to, actor.String(), rejectionReason, time.Now(), id, models.TxPending)
	if err != nil {
		return nil, fmt.Errorf("settle transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		t, getErr := db.GetTransaction(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return t, fmt.Errorf("transaction %d is %s: %w", id, t.Status, ErrAlreadyProcessed)
	}

	return db.GetTransaction(ctx, id)
}

// SumConfirmedForBooking returns the total of confirmed transactions
// attributed to a booking. Drives the payment completeness invariant.
func (db *DB) SumConfirmedForBooking(ctx context.Context, bookingID int64) (int64, error) {
	var sum int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM pending_transactions
        WHERE booking_id = ? AND status = ?`, bookingID, models.TxConfirmed).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum confirmed: %w", err)
	}
	return sum, nil
}

// ListTransactionsForBooking returns all settlement obligations of a booking.
func (db *DB) ListTransactionsForBooking(ctx context.Context, bookingID int64) ([]models.PendingTransaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM pending_transactions
        WHERE booking_id = ? ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.PendingTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ListTransactionsByDateRange returns transactions created in the period,
// for staff views and exports.
func (db *DB) ListTransactionsByDateRange(ctx context.Context, from, to time.Time) ([]models.PendingTransaction, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM pending_transactions
        WHERE created_at >= ? AND created_at < ? ORDER BY created_at ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list transactions by range: %w", err)
	}
	defer rows.Close()

	var out []models.PendingTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransaction(row rowScanner) (*models.PendingTransaction, error) {
	var t models.PendingTransaction
	var providerRef, processedBy, rejectionReason, notes sql.NullString
	err := row.Scan(
		&t.ID, &t.Reference, &t.UserID, &t.CompanyID, &t.BookingID, &t.Type,
		&t.AmountCents, &t.Currency, &t.Method, &t.TimingPlan, &t.Status, &providerRef,
		&processedBy, &rejectionReason, &notes, &t.CreatedAt, &t.UpdatedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.ProviderRef = providerRef.String
	t.ProcessedBy = processedBy.String
	t.RejectionReason = rejectionReason.String
	t.Notes = notes.String
	return &t, nil
}
