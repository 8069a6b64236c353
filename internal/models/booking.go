package models

import "time"

// Booking is a claim on a resource: a time window for facilities, a
// quantity for inventory items. Status and PaymentStatus are independent
// axes; PaymentStatus is moved only by the settlement ledger.
type Booking struct {
	ID            int64      `json:"id"`
	Reference     string     `json:"reference"`
	ResourceID    int64      `json:"resource_id"`
	ResourceName  string     `json:"resource_name"`
	UserID        int64      `json:"user_id"`
	CompanyID     int64      `json:"company_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Quantity      int64      `json:"quantity"`
	DurationUnits int64      `json:"duration_units"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	TotalCents    int64      `json:"total_cents"`
	Currency      string     `json:"currency"`
	Notes         string     `json:"notes"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int64      `json:"version"`
}

// Holds reports whether the booking currently occupies its window or
// quantity in the availability ledger.
func (b *Booking) Holds() bool {
	if b.DeletedAt != nil {
		return false
	}
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// CalendarWindow is the public projection of a committed booking window.
// No requester fields are leaked.
type CalendarWindow struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

// StatusEvent is one audit row: who moved which axis of a booking, and when.
type StatusEvent struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Axis      string    `json:"axis"` // status, payment_status
	FromValue string    `json:"from"`
	ToValue   string    `json:"to"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AxisStatus        = "status"
	AxisPaymentStatus = "payment_status"
)

// Availability описывает занятость ресурса на дату (для инвентаря).
type Availability struct {
	Date       time.Time `json:"date"`
	ResourceID int64     `json:"resource_id"`
	Booked     int64     `json:"booked"`
	Available  int64     `json:"available"`
}
