package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"taurean/internal/models"
)

const bookingColumns = `id, reference, resource_id, resource_name, user_id, company_id,
    start_time, end_time, quantity, duration_units, status, payment_status,
    total_cents, currency, notes, deleted_at, created_at, updated_at, version`

// ClaimBooking atomically checks availability and inserts the booking.
// Check-and-claim is serialized per resource: concurrent claims on the
// same resource see each other, claims on different resources do not
// contend. Returns ErrNotAvailable when the window overlaps a committed
// booking or the requested quantity exceeds the remaining pool.
func (db *DB) ClaimBooking(ctx context.Context, b *models.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}

	mu := db.lockResource(b.ResourceID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var kind string
	var totalQuantity int64
	err = tx.QueryRowContext(ctx, `SELECT kind, total_quantity FROM resources WHERE id = ? AND is_active = 1`, b.ResourceID).
		Scan(&kind, &totalQuantity)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("resource %d: %w", b.ResourceID, ErrResourceNotFound)
	}
	if err != nil {
		return fmt.Errorf("load resource in tx: %w", err)
	}

	switch kind {
	case models.KindFacility:
		// Half-open intervals: touching endpoints do not conflict.
		var overlapping int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings
            WHERE resource_id = ? AND deleted_at IS NULL
              AND status IN (?, ?)
              AND start_time < ? AND ? < end_time`,
			b.ResourceID, models.StatusPending, models.StatusConfirmed,
			b.EndTime, b.StartTime).Scan(&overlapping)
		if err != nil {
			return fmt.Errorf("check window overlap in tx: %w", err)
		}
		if overlapping > 0 {
			return ErrNotAvailable
		}
	case models.KindInventory:
		var committed int64
		err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM bookings
            WHERE resource_id = ? AND deleted_at IS NULL AND status IN (?, ?)`,
			b.ResourceID, models.StatusPending, models.StatusConfirmed).Scan(&committed)
		if err != nil {
			return fmt.Errorf("check committed quantity in tx: %w", err)
		}
		if b.Quantity < 1 || b.Quantity > totalQuantity-committed {
			return ErrNotAvailable
		}
	default:
		return fmt.Errorf("resource %d has unknown kind %q", b.ResourceID, kind)
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `INSERT INTO bookings (
            reference, resource_id, resource_name, user_id, company_id,
            start_time, end_time, quantity, duration_units, status, payment_status,
            total_cents, currency, notes, created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Reference, b.ResourceID, b.ResourceName, b.UserID, b.CompanyID,
		b.StartTime, b.EndTime, b.Quantity, b.DurationUnits, models.StatusPending, models.PaymentPending,
		b.TotalCents, b.Currency, b.Notes, now, now, 1)
	if err != nil {
		return fmt.Errorf("insert booking in tx: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO booking_status_events (booking_id, axis, from_value, to_value, actor, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		id, models.AxisStatus, "", models.StatusPending, models.SystemActor.String(), now); err != nil {
		return fmt.Errorf("record claim event in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}

	b.ID = id
	b.Status = models.StatusPending
	b.PaymentStatus = models.PaymentPending
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

// GetBooking returns a booking by id, soft-deleted ones included so staff
// can still inspect them.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrBookingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// GetBookingByReference returns a booking by its public reference.
func (db *DB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference = ?`, reference)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", reference, ErrBookingNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking by reference: %w", err)
	}
	return b, nil
}

// UpdateBookingStatus moves the lifecycle axis with a compare-and-swap on
// the expected current status. The audit row and the update commit
// together. Returns ErrInvalidTransition when another writer got there
// first.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, from, to string, actor models.Actor) error {
	return db.updateBookingAxis(ctx, id, models.AxisStatus, from, to, actor)
}

// UpdateBookingPaymentStatus moves the payment axis the same way.
func (db *DB) UpdateBookingPaymentStatus(ctx context.Context, id int64, from, to string, actor models.Actor) error {
	return db.updateBookingAxis(ctx, id, models.AxisPaymentStatus, from, to, actor)
}

func (db *DB) updateBookingAxis(ctx context.Context, id int64, axis, from, to string, actor models.Actor) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	column := "status"
	if axis == models.AxisPaymentStatus {
		column = "payment_status"
	}

	now := time.Now()
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET `+column+` = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND `+column+` = ? AND deleted_at IS NULL`, to, now, id, from)
	if err != nil {
		return fmt.Errorf("update booking %s: %w", axis, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE id = ? AND deleted_at IS NULL`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check booking exists: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("booking %d: %w", id, ErrBookingNotFound)
		}
		return fmt.Errorf("booking %d %s %s -> %s: %w", id, axis, from, to, ErrInvalidTransition)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO booking_status_events (booking_id, axis, from_value, to_value, actor, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`, id, axis, from, to, actor.String(), now); err != nil {
		return fmt.Errorf("record status event: %w", err)
	}

	return tx.Commit()
}

// SoftDeleteBooking marks the booking deleted. The hold is released
// immediately because availability queries skip deleted rows.
func (db *DB) SoftDeleteBooking(ctx context.Context, id int64, actor models.Actor) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	res, err := tx.ExecContext(ctx, `UPDATE bookings SET deleted_at = ?, updated_at = ?, version = version + 1
        WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return fmt.Errorf("soft delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("booking %d: %w", id, ErrBookingNotFound)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO booking_status_events (booking_id, axis, from_value, to_value, actor, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`, id, models.AxisStatus, "", "deleted", actor.String(), now); err != nil {
		return fmt.Errorf("record delete event: %w", err)
	}

	return tx.Commit()
}

// CalendarWindows returns committed windows of a facility for public
// display. Only times and status leave this query.
func (db *DB) CalendarWindows(ctx context.Context, resourceID int64, from, to time.Time) ([]models.CalendarWindow, error) {
	rows, err := db.QueryContext(ctx, `SELECT start_time, end_time, status FROM bookings
        WHERE resource_id = ? AND deleted_at IS NULL
          AND status IN (?, ?)
          AND start_time < ? AND ? < end_time
        ORDER BY start_time ASC`,
		resourceID, models.StatusPending, models.StatusConfirmed, to, from)
	if err != nil {
		return nil, fmt.Errorf("calendar windows: %w", err)
	}
	defer rows.Close()

	var out []models.CalendarWindow
	for rows.Next() {
		var w models.CalendarWindow
		if err := rows.Scan(&w.StartTime, &w.EndTime, &w.Status); err != nil {
			return nil, fmt.Errorf("scan calendar window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CommittedQuantity returns the quantity currently held by pending and
// confirmed bookings of an inventory resource.
func (db *DB) CommittedQuantity(ctx context.Context, resourceID int64) (int64, error) {
	var committed int64
	err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM bookings
        WHERE resource_id = ? AND deleted_at IS NULL AND status IN (?, ?)`,
		resourceID, models.StatusPending, models.StatusConfirmed).Scan(&committed)
	if err != nil {
		return 0, fmt.Errorf("committed quantity: %w", err)
	}
	return committed, nil
}

// ListBookingsByDateRange returns bookings whose window intersects the
// period, newest first. Used by staff views and exports.
func (db *DB) ListBookingsByDateRange(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
        WHERE deleted_at IS NULL AND start_time < ? AND ? < end_time
        ORDER BY start_time ASC, created_at ASC`, to, from)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ListStatusEvents returns the audit trail of a booking.
func (db *DB) ListStatusEvents(ctx context.Context, bookingID int64) ([]models.StatusEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, axis, from_value, to_value, actor, created_at
        FROM booking_status_events WHERE booking_id = ? ORDER BY id ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("list status events: %w", err)
	}
	defer rows.Close()

	var out []models.StatusEvent
	for rows.Next() {
		var e models.StatusEvent
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Axis, &e.FromValue, &e.ToValue, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var startTime, endTime, deletedAt sql.NullTime
	var notes sql.NullString
	err := row.Scan(
		&b.ID, &b.Reference, &b.ResourceID, &b.ResourceName, &b.UserID, &b.CompanyID,
		&startTime, &endTime, &b.Quantity, &b.DurationUnits, &b.Status, &b.PaymentStatus,
		&b.TotalCents, &b.Currency, &notes, &deletedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if startTime.Valid {
		b.StartTime = startTime.Time
	}
	if endTime.Valid {
		b.EndTime = endTime.Time
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		b.DeletedAt = &t
	}
	b.Notes = notes.String
	return &b, nil
}
