// Package redis provides a Redis implementation of the
// creditsync.ProfileStore and creditsync.EventTracker interfaces.
// Balance mutations use a Lua script, so the read-modify-write is atomic on
// the Redis server.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// Hash fields of a profile key. Absent fields are Unknown.
const (
	fieldCustomerID         = "customer_id"
	fieldSubscriptionID     = "subscription_id"
	fieldPlanName           = "plan_name"
	fieldSubscriptionStatus = "subscription_status"
	fieldCreditBalance      = "credit_balance"
	fieldUpdatedAt          = "updated_at"
)

// Storage implements creditsync.ProfileStore and creditsync.EventTracker
// using Redis.
type Storage struct {
	client    redis.UniversalClient
	config    Config
	addScript *redis.Script
}

// Config holds Redis storage configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "creditsync:")
	KeyPrefix string

	// EventTTL is the retention for processed-event markers. Must outlive
	// the provider's webhook retry window.
	EventTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "creditsync:",
		// Stripe retries webhooks for up to 3 days; keep a wide margin.
		EventTTL: 30 * 24 * time.Hour,
	}
}

// New creates a new Redis storage adapter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "creditsync:"
	}
	if config.EventTTL == 0 {
		config.EventTTL = DefaultConfig().EventTTL
	}

	return &Storage{
		client: client,
		config: config,
		// Atomic add-and-clamp. HINCRBY alone could leave a negative
		// balance visible between the increment and a corrective write.
		addScript: redis.NewScript(`
			local balance = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
			if balance < 0 then
				redis.call('HSET', KEYS[1], ARGV[1], 0)
				balance = 0
			end
			redis.call('HSET', KEYS[1], ARGV[3], ARGV[4])
			return balance
		`),
	}, nil
}

// GetProfile implements creditsync.ProfileStore.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*creditsync.BillingProfile, error) {
	fields, err := s.client.HGetAll(ctx, s.profileKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile := &creditsync.BillingProfile{UserID: userID}
	if len(fields) == 0 {
		return profile, nil
	}

	if v, ok := fields[fieldCustomerID]; ok {
		profile.CustomerID = creditsync.Known(v)
	}
	if v, ok := fields[fieldSubscriptionID]; ok {
		profile.SubscriptionID = creditsync.Known(v)
	}
	if v, ok := fields[fieldPlanName]; ok {
		profile.PlanName = creditsync.Known(v)
	}
	if v, ok := fields[fieldSubscriptionStatus]; ok {
		profile.SubscriptionStatus = creditsync.Known(v)
	}
	if v, ok := fields[fieldCreditBalance]; ok {
		balance, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt credit balance for user %s: %w", userID, err)
		}
		profile.CreditBalance = balance
	}
	if v, ok := fields[fieldUpdatedAt]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			profile.UpdatedAt = ts
		}
	}
	return profile, nil
}

// UpsertProfile implements creditsync.ProfileStore.
func (s *Storage) UpsertProfile(ctx context.Context, userID string, patch creditsync.ProfilePatch) error {
	values := make(map[string]interface{})
	if patch.CustomerID != nil {
		values[fieldCustomerID] = *patch.CustomerID
	}
	if patch.SubscriptionID != nil {
		values[fieldSubscriptionID] = *patch.SubscriptionID
	}
	if patch.PlanName != nil {
		values[fieldPlanName] = *patch.PlanName
	}
	if patch.SubscriptionStatus != nil {
		values[fieldSubscriptionStatus] = *patch.SubscriptionStatus
	}
	if len(values) == 0 {
		return nil
	}
	values[fieldUpdatedAt] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.client.HSet(ctx, s.profileKey(userID), values).Err(); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// SetBalance implements creditsync.ProfileStore.
func (s *Storage) SetBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	err := s.client.HSet(ctx, s.profileKey(userID), map[string]interface{}{
		fieldCreditBalance: amount,
		fieldUpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return 0, fmt.Errorf("failed to set balance: %w", err)
	}
	return amount, nil
}

// AddBalance implements creditsync.ProfileStore via the atomic Lua script.
func (s *Storage) AddBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	result, err := s.addScript.Run(ctx, s.client,
		[]string{s.profileKey(userID)},
		fieldCreditBalance, delta,
		fieldUpdatedAt, time.Now().UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to add balance: %w", err)
	}
	return result, nil
}

// ClearProfile implements creditsync.ProfileStore.
func (s *Storage) ClearProfile(ctx context.Context, userID string) error {
	key := s.profileKey(userID)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		fieldCreditBalance: 0,
		fieldUpdatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// IsProcessed implements creditsync.EventTracker.
func (s *Storage) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.eventKey(eventID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists == 1, nil
}

// MarkProcessed implements creditsync.EventTracker. The marker expires after
// EventTTL, well past the provider's retry window.
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	err := s.client.SetNX(ctx, s.eventKey(eventID), time.Now().UTC().Format(time.RFC3339Nano), s.config.EventTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (s *Storage) profileKey(userID string) string {
	return s.config.KeyPrefix + "profile:" + userID
}

func (s *Storage) eventKey(eventID string) string {
	return s.config.KeyPrefix + "event:" + eventID
}

// Ping checks the Redis connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Storage) Close() error {
	return s.client.Close()
}
