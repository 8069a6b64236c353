package models

// Booking lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

// Booking payment statuses. Driven only by the settlement ledger,
// never by booking status changes.
const (
	PaymentPending       = "pending"
	PaymentCompleted     = "completed"
	PaymentFailed        = "failed"
	PaymentRefunded      = "refunded"
	PaymentPartialRefund = "partial_refund"
)

// Pending transaction statuses. confirmed, rejected and cancelled are terminal.
const (
	TxPending   = "pending"
	TxConfirmed = "confirmed"
	TxRejected  = "rejected"
	TxCancelled = "cancelled"
)

// Payment methods.
const (
	MethodGateway = "gateway"
	MethodCash    = "cash"
	MethodCheque  = "cheque"
)

// Timing plans. For advance and split the transaction amount covers only
// the current installment.
const (
	PlanFull    = "full"
	PlanAdvance = "advance"
	PlanSplit   = "split"
)

// Resource kinds.
const (
	KindFacility  = "facility"
	KindInventory = "inventory"
)

// Pricing units.
const (
	UnitHour = "hour"
	UnitDay  = "day"
	UnitItem = "item"
)

// Tax applicability.
const (
	TaxAppliesFacility  = "facility"
	TaxAppliesInventory = "inventory"
	TaxAppliesBoth      = "both"
)

// Webhook event queue statuses.
const (
	EventPending   = "pending"
	EventRetry     = "retry"
	EventCompleted = "completed"
	EventDiscarded = "discarded"
	EventFailed    = "failed"
)

const (
	// DefaultMinAdvanceBps минимальная доля первого взноса (30%),
	// если у компании не задана своя.
	DefaultMinAdvanceBps = 3000

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// DefaultWebhookPollInterval интервал опроса очереди вебхуков
	DefaultWebhookPollIntervalSec = 2

	// DedupTTL время жизни записи дедупликации события в Redis
	DedupTTLSeconds = 24 * 60 * 60
)
