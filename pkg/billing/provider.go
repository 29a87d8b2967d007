// Package billing defines the provider-agnostic contract between the
// creditsync ledger and an external billing provider. Concrete providers
// (pkg/billing/stripe) process webhook events, reconcile the local profile
// cache, and drive credit-balance mutations through the ledger.
package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface a billing backend must implement.
type Provider interface {
	// Name returns the provider name (e.g., "stripe").
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// events. The implementation handles signature verification, parsing,
	// idempotency, and ledger updates internally.
	WebhookHandler() http.Handler

	// SyncUser forces a reconciliation of the user's cached profile from the
	// provider. Used for post-checkout refreshes or nightly reconciliation
	// jobs. Returns the resolved plan name.
	SyncUser(ctx context.Context, userID string) (string, error)
}
