package billing

import "time"

// WebhookEvent describes a webhook event that has been fully applied.
// It is passed to the WebhookCallback after the ledger and profile cache
// have been updated.
type WebhookEvent struct {
	// UserID is the internal user identifier.
	UserID string

	// Provider is the billing provider name ("stripe").
	Provider string

	// EventID is the provider's event identifier, also used as the
	// idempotency key.
	EventID string

	// EventType is the provider-specific event type
	// (e.g., "invoice.payment_succeeded").
	EventType string

	// BillingReason classifies why the invoice was generated
	// ("subscription_create", "subscription_cycle", "subscription_update",
	// "manual"). Empty for non-invoice events.
	BillingReason string

	// CreditsGranted is the credit quantity computed from the subscription's
	// price metadata. Zero for lifecycle-only events.
	CreditsGranted int64

	// PlanName is the resolved plan name, if known.
	PlanName string

	// EventTimestamp is when the event occurred (from the provider).
	EventTimestamp time.Time
}
