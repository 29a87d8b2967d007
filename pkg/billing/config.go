package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// Config defines the standard configuration all providers accept.
type Config struct {
	// Ledger is the creditsync Ledger that receives balance mutations and
	// profile updates (required).
	Ledger *creditsync.Ledger

	// Events tracks which webhook events have already been applied.
	// If nil, the provider falls back to a process-local in-memory tracker,
	// which does not survive restarts and is not shared across instances.
	Events creditsync.EventTracker

	// PlanFeatures maps plan names to the features they unlock.
	// If nil, creditsync.DefaultPlanFeatures is used.
	PlanFeatures map[string][]string

	// WebhookSecret is used to verify incoming webhook requests.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider.
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with a 10s timeout is used.
	HTTPClient *http.Client

	// Logger is an optional structured logger. If nil, logging is disabled.
	Logger creditsync.Logger

	// Metrics is an optional metrics collector for provider operations.
	// If nil, metrics are silently ignored.
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics

	// WebhookCallback, if set, is invoked after a webhook event has been
	// fully applied. A callback error fails the webhook delivery so the
	// sender retries it.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error
}
