// Package creditsync provides the core domain types for billing profile
// synchronization and credit-ledger tracking. The authoritative subscription
// state lives with the billing provider; a BillingProfile is a local
// performance cache plus the one field this package owns outright, the
// credit balance.
package creditsync

import "time"

// Optional represents a profile field that may not have been synchronized
// from the billing provider yet. The zero value is Unknown. This is distinct
// from an empty string: "never synced" and "synced, empty" are different
// states and call sites must handle both.
type Optional[T any] struct {
	value T
	known bool
}

// Known wraps a synchronized value.
func Known[T any](value T) Optional[T] {
	return Optional[T]{value: value, known: true}
}

// Get returns the value and whether it has been synchronized.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.known
}

// IsKnown reports whether the field has been synchronized.
func (o Optional[T]) IsKnown() bool {
	return o.known
}

// OrZero returns the value, or the zero value if unsynchronized.
func (o Optional[T]) OrZero() T {
	return o.value
}

// BillingProfile is the per-user local cache of billing state.
//
// CustomerID, SubscriptionID, PlanName and SubscriptionStatus are cache hints
// only - they are re-derivable from the provider given the subscription ID and
// are reconciled on every sync. CreditBalance is owned by this subsystem and
// is only ever mutated through the Ledger.
type BillingProfile struct {
	UserID             string
	CustomerID         Optional[string]
	SubscriptionID     Optional[string]
	PlanName           Optional[string]
	SubscriptionStatus Optional[string]
	CreditBalance      int64
	UpdatedAt          time.Time
}

// ProfilePatch is a partial update to a BillingProfile. Nil fields are left
// untouched; the balance is deliberately absent because it must go through
// the Ledger's serialized read-modify-write.
type ProfilePatch struct {
	CustomerID         *string
	SubscriptionID     *string
	PlanName           *string
	SubscriptionStatus *string
}

// IsEmpty reports whether the patch would change nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.CustomerID == nil && p.SubscriptionID == nil &&
		p.PlanName == nil && p.SubscriptionStatus == nil
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}
