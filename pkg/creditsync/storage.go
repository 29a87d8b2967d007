package creditsync

import "context"

// ProfileStore is the persistence interface for billing profiles.
// Implementations live in the storage/ subpackages (memory, postgres, redis,
// firestore).
type ProfileStore interface {
	// GetProfile returns the profile for a user. A missing row is not an
	// error: implementations return an all-Unknown profile with a zero
	// balance.
	GetProfile(ctx context.Context, userID string) (*BillingProfile, error)

	// UpsertProfile inserts the row if absent, otherwise updates only the
	// fields set in the patch. Last-writer-wins at field level; these fields
	// are reconciled from the provider on every sync.
	UpsertProfile(ctx context.Context, userID string, patch ProfilePatch) error

	// SetBalance replaces the credit balance unconditionally and returns the
	// new balance. Creates the row if absent.
	SetBalance(ctx context.Context, userID string, amount int64) (int64, error)

	// AddBalance adds delta to the credit balance inside a serialized
	// read-modify-write and returns the new balance. A missing row counts as
	// a zero prior balance; the result is floored at zero. Two concurrent
	// calls for the same user must be strictly ordered (no lost update).
	AddBalance(ctx context.Context, userID string, delta int64) (int64, error)

	// ClearProfile resets every provider field to Unknown and the balance to
	// zero. Used for explicit account cleanup only; rows are never deleted.
	ClearProfile(ctx context.Context, userID string) error
}

// EventTracker records which inbound billing events have already been applied,
// making webhook processing safe under at-least-once delivery.
//
// The memory implementation is process-local and does not survive restarts;
// production deployments should use the postgres, redis, or firestore
// implementations, which are durable and shared across instances.
type EventTracker interface {
	// IsProcessed reports whether the event has already been applied.
	IsProcessed(ctx context.Context, eventID string) (bool, error)

	// MarkProcessed records the event as applied. Marking an event twice is
	// not an error.
	MarkProcessed(ctx context.Context, eventID string) error
}
