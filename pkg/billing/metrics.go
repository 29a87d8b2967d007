package billing

import "time"

// Metrics defines the interface for tracking billing provider operations.
// All methods are optional - providers handle nil metrics gracefully.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the provider.
	// status: "success", "error", or "duplicate"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long webhook processing took.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: e.g. "auth_failed", "invalid_payload", "missing_identity"
	RecordWebhookError(provider, errorType string)

	// RecordUserSync records a profile reconciliation operation.
	// status: "success" or "error"
	RecordUserSync(provider, status string)

	// RecordUserSyncDuration records how long a reconciliation took.
	RecordUserSyncDuration(provider string, duration time.Duration)

	// RecordPlanChange records when a user's cached plan name changes.
	RecordPlanChange(provider, fromPlan, toPlan string)

	// RecordCreditsGranted records credits applied to a ledger, labeled by
	// the billing reason that produced them.
	RecordCreditsGranted(provider, billingReason string, credits int64)

	// RecordAPICall records an outbound API call to the billing provider.
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an outbound API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordUserSync(_, _ string)                                   {}
func (n *NoopMetrics) RecordUserSyncDuration(_ string, _ time.Duration)             {}
func (n *NoopMetrics) RecordPlanChange(_, _, _ string)                              {}
func (n *NoopMetrics) RecordCreditsGranted(_, _ string, _ int64)                    {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
