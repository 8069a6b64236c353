package models

import "time"

// PendingTransaction is a settlement obligation: a recorded intent to pay,
// created before any money moves. Once confirmed, rejected or cancelled it
// is immutable.
type PendingTransaction struct {
	ID              int64     `json:"id"`
	Reference       string    `json:"reference"`
	UserID          int64     `json:"user_id"`
	CompanyID       int64     `json:"company_id"`
	BookingID       int64     `json:"booking_id"`
	Type            string    `json:"type"` // booking, rental, subscription
	AmountCents     int64     `json:"amount_cents"`
	Currency        string    `json:"currency"`
	Method          string    `json:"method"`      // gateway, cash, cheque
	TimingPlan      string    `json:"timing_plan"` // full, advance, split
	Status          string    `json:"status"`
	ProviderRef     string    `json:"provider_ref,omitempty"`
	ProcessedBy     string    `json:"processed_by,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// Terminal reports whether the transaction reached a final status.
func (t *PendingTransaction) Terminal() bool {
	switch t.Status {
	case TxConfirmed, TxRejected, TxCancelled:
		return true
	}
	return false
}

// WebhookEvent is one durably queued gateway callback. Events are matched
// to pending transactions by ProviderRef and deduplicated by
// (provider, provider_event_id).
type WebhookEvent struct {
	ID              int64      `json:"id"`
	Provider        string     `json:"provider"`
	ProviderEventID string     `json:"provider_event_id"`
	ProviderRef     string     `json:"provider_ref"`
	ProviderStatus  string     `json:"provider_status"` // success, failure
	AmountCents     *int64     `json:"amount_cents,omitempty"` // nil when the provider omitted it
	Payload         string     `json:"payload"`
	Status          string     `json:"status"`
	RetryCount      int        `json:"retry_count"`
	LastError       string     `json:"last_error,omitempty"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Gateway callback statuses as delivered by the provider.
const (
	ProviderSuccess = "success"
	ProviderFailure = "failure"
)
