package log

// Common field names for structured logging. Shared so every component
// logs the same concept under the same key.
const (
	FieldComponent      = "component"
	FieldError          = "error"
	FieldSubscription   = "subscription"
	FieldSubscriptionID = "subscription_id"
	FieldAccountID      = "account_id"
	FieldTransactionID  = "transaction_id"
	FieldAmount         = "amount"
	FieldBalance        = "balance"
	FieldNextPayment    = "next_payment"
	FieldReason         = "reason"
	FieldSchedule       = "schedule"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentWorker    = "worker"
	ComponentAnalytics = "analytics"
)
