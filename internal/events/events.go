// Package events carries domain events out of the core: booking lifecycle
// and settlement outcomes are published for the external notification
// collaborator. Publish failures are logged by callers and never fail the
// originating request.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingCreated       = "booking_created"
	EventBookingStatusChanged = "booking_status_changed"
	EventPaymentStatusChanged = "payment_status_changed"
	EventTransactionConfirmed = "transaction_confirmed"
	EventTransactionRejected  = "transaction_rejected"
)

// BookingEventPayload is the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     int64     `json:"booking_id"`
	Reference     string    `json:"reference"`
	ResourceID    int64     `json:"resource_id"`
	ResourceName  string    `json:"resource_name"`
	UserID        int64     `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	StartTime     time.Time `json:"start_time,omitempty"`
	EndTime       time.Time `json:"end_time,omitempty"`
	TotalCents    int64     `json:"total_cents"`
	Actor         string    `json:"actor,omitempty"`
}

// TransactionEventPayload is the settlement snapshot for event consumers.
type TransactionEventPayload struct {
	TransactionID   int64  `json:"transaction_id"`
	Reference       string `json:"reference"`
	BookingID       int64  `json:"booking_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Method          string `json:"method"`
	TimingPlan      string `json:"timing_plan"`
	Status          string `json:"status"`
	ProcessedBy     string `json:"processed_by,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// Publisher is implemented by the in-process bus and the AMQP publisher.
type Publisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub. Handlers run synchronously; the
// caller decides the concurrency model.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// Nop discards all events. Default for tests and when AMQP is disabled.
type Nop struct{}

func (Nop) PublishJSON(string, interface{}) error { return nil }
