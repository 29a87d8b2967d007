package creditsync

import (
	"context"
	"fmt"
	"time"
)

// Config holds Ledger configuration.
type Config struct {
	// Logger is an optional structured logger. If nil, logging is disabled.
	Logger Logger

	// Metrics is an optional metrics collector. If nil, metrics are ignored.
	Metrics Metrics
}

// Ledger provides transactionally safe mutations of the credit balance and
// access to the cached billing profile. All balance writes go through the
// store's serialized read-modify-write, so two concurrent writers for the
// same user are strictly ordered.
type Ledger struct {
	store   ProfileStore
	logger  Logger
	metrics Metrics
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store ProfileStore, config *Config) (*Ledger, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if config == nil {
		config = &Config{}
	}

	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &Ledger{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Profile returns the cached billing profile for a user. A user with no row
// yet gets an all-Unknown profile, never an error.
func (l *Ledger) Profile(ctx context.Context, userID string) (*BillingProfile, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return l.store.GetProfile(ctx, userID)
}

// UpdateProfile applies a partial update to the cached provider fields.
// The credit balance cannot be changed this way.
func (l *Ledger) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if patch.IsEmpty() {
		return nil
	}
	return l.store.UpsertProfile(ctx, userID, patch)
}

// SetBalance replaces the credit balance unconditionally. Used for renewal
// and initial-signup semantics, where a fresh billing period wipes the prior
// balance. Negative amounts are rejected.
func (l *Ledger) SetBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidUserID
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	start := time.Now()
	balance, err := l.store.SetBalance(ctx, userID, amount)
	l.metrics.RecordLedgerWriteDuration("set", time.Since(start))
	if err != nil {
		l.metrics.RecordLedgerWrite("set", "error")
		return 0, fmt.Errorf("ledger set failed: %w", err)
	}

	l.metrics.RecordLedgerWrite("set", "success")
	l.metrics.RecordBalance(balance)
	l.logger.Info("credit balance set",
		Field{Key: "user_id", Value: userID},
		Field{Key: "balance", Value: balance},
	)
	return balance, nil
}

// AddBalance adds delta to the credit balance. Used for upgrades and add-ons,
// which are additive. Negative deltas are allowed; the result is floored at
// zero by the store. A user with no row starts from a zero balance.
func (l *Ledger) AddBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	if userID == "" {
		return 0, ErrInvalidUserID
	}

	start := time.Now()
	balance, err := l.store.AddBalance(ctx, userID, delta)
	l.metrics.RecordLedgerWriteDuration("add", time.Since(start))
	if err != nil {
		l.metrics.RecordLedgerWrite("add", "error")
		return 0, fmt.Errorf("ledger add failed: %w", err)
	}

	l.metrics.RecordLedgerWrite("add", "success")
	l.metrics.RecordBalance(balance)
	l.logger.Info("credit balance adjusted",
		Field{Key: "user_id", Value: userID},
		Field{Key: "delta", Value: delta},
		Field{Key: "balance", Value: balance},
	)
	return balance, nil
}

// Balance returns the current credit balance. Absent rows read as zero.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	profile, err := l.Profile(ctx, userID)
	if err != nil {
		return 0, err
	}
	return profile.CreditBalance, nil
}

// Clear resets the profile to its unsynced state with a zero balance.
// Intended for explicit account cleanup; the row itself is kept.
func (l *Ledger) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if err := l.store.ClearProfile(ctx, userID); err != nil {
		return fmt.Errorf("ledger clear failed: %w", err)
	}
	l.logger.Info("billing profile cleared", Field{Key: "user_id", Value: userID})
	return nil
}
