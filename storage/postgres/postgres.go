// Package postgres provides a PostgreSQL implementation of the
// creditsync.ProfileStore and creditsync.EventTracker interfaces.
// Balance mutations run in SQL transactions with SELECT FOR UPDATE, so
// concurrent writers for the same user are strictly ordered.
//
// Expected schema:
//
//	CREATE TABLE billing_profiles (
//	    user_id             TEXT PRIMARY KEY,
//	    customer_id         TEXT,
//	    subscription_id     TEXT,
//	    plan_name           TEXT,
//	    subscription_status TEXT,
//	    credit_balance      BIGINT NOT NULL DEFAULT 0,
//	    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE processed_events (
//	    event_id     TEXT PRIMARY KEY,
//	    processed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    expires_at   TIMESTAMPTZ NOT NULL
//	);
//
// NULL columns map to Unknown profile fields: a never-synced field and a
// synced-empty field are stored differently.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// Storage implements creditsync.ProfileStore and creditsync.EventTracker
// using PostgreSQL.
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often to prune expired event records
	EventTTL        time.Duration // Retention for processed-event records
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		CleanupEnabled:  true,
		CleanupInterval: 1 * time.Hour,
		// Stripe retries webhooks for up to 3 days; keep a wide margin.
		EventTTL: 30 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter.
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())

	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Close closes the connection pool and stops background cleanup.
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetProfile implements creditsync.ProfileStore.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*creditsync.BillingProfile, error) {
	var (
		customerID         *string
		subscriptionID     *string
		planName           *string
		subscriptionStatus *string
		balance            int64
		updatedAt          time.Time
	)

	err := s.pool.QueryRow(ctx,
		`SELECT customer_id, subscription_id, plan_name, subscription_status, credit_balance, updated_at
			FROM billing_profiles WHERE user_id = $1`,
		userID).Scan(&customerID, &subscriptionID, &planName, &subscriptionStatus, &balance, &updatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return &creditsync.BillingProfile{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile := &creditsync.BillingProfile{
		UserID:        userID,
		CreditBalance: balance,
		UpdatedAt:     updatedAt,
	}
	if customerID != nil {
		profile.CustomerID = creditsync.Known(*customerID)
	}
	if subscriptionID != nil {
		profile.SubscriptionID = creditsync.Known(*subscriptionID)
	}
	if planName != nil {
		profile.PlanName = creditsync.Known(*planName)
	}
	if subscriptionStatus != nil {
		profile.SubscriptionStatus = creditsync.Known(*subscriptionStatus)
	}
	return profile, nil
}

// UpsertProfile implements creditsync.ProfileStore. COALESCE keeps columns
// the patch does not set.
func (s *Storage) UpsertProfile(ctx context.Context, userID string, patch creditsync.ProfilePatch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_profiles (user_id, customer_id, subscription_id, plan_name, subscription_status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id) DO UPDATE SET
				customer_id = COALESCE($2, billing_profiles.customer_id),
				subscription_id = COALESCE($3, billing_profiles.subscription_id),
				plan_name = COALESCE($4, billing_profiles.plan_name),
				subscription_status = COALESCE($5, billing_profiles.subscription_status),
				updated_at = $6`,
		userID, patch.CustomerID, patch.SubscriptionID, patch.PlanName, patch.SubscriptionStatus,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// SetBalance implements creditsync.ProfileStore.
func (s *Storage) SetBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO billing_profiles (user_id, credit_balance, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET
				credit_balance = EXCLUDED.credit_balance,
				updated_at = EXCLUDED.updated_at
			RETURNING credit_balance`,
		userID, amount, time.Now().UTC()).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to set balance: %w", err)
	}
	return balance, nil
}

// AddBalance implements creditsync.ProfileStore. The row lock serializes the
// read-modify-write against concurrent writers.
func (s *Storage) AddBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	// Ensure the row exists so the FOR UPDATE below always locks something.
	_, err = tx.Exec(ctx,
		`INSERT INTO billing_profiles (user_id, credit_balance, updated_at)
			VALUES ($1, 0, $2)
			ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to ensure profile row exists: %w", err)
	}

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT credit_balance FROM billing_profiles WHERE user_id = $1 FOR UPDATE`,
		userID).Scan(&current)
	if err != nil {
		return 0, fmt.Errorf("failed to lock balance: %w", err)
	}

	balance := current + delta
	if balance < 0 {
		balance = 0
	}

	_, err = tx.Exec(ctx,
		`UPDATE billing_profiles SET credit_balance = $2, updated_at = $3 WHERE user_id = $1`,
		userID, balance, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to update balance: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return balance, nil
}

// ClearProfile implements creditsync.ProfileStore. The row is kept with
// every provider column NULL and a zero balance.
func (s *Storage) ClearProfile(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO billing_profiles (user_id, credit_balance, updated_at)
			VALUES ($1, 0, $2)
			ON CONFLICT (user_id) DO UPDATE SET
				customer_id = NULL,
				subscription_id = NULL,
				plan_name = NULL,
				subscription_status = NULL,
				credit_balance = 0,
				updated_at = $2`,
		userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// IsProcessed implements creditsync.EventTracker.
func (s *Storage) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`,
		eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

// MarkProcessed implements creditsync.EventTracker. Marking twice is a no-op.
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO processed_events (event_id, processed_at, expires_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_id) DO NOTHING`,
		eventID, now, now.Add(s.config.EventTTL))
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// startCleanup prunes expired event records on a ticker until Close.
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Cleanup(context.Background())
		}
	}
}

// Cleanup deletes processed-event records past their retention. Safe to call
// manually.
func (s *Storage) Cleanup(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cleanup processed events: %w", err)
	}
	return nil
}

// Ping checks the PostgreSQL connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
