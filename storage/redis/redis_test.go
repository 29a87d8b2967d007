package redis

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// setupTestRedis creates a Redis client for testing.
// Requires Redis running on localhost:6379.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}
	return client
}

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	storage, err := New(setupTestRedis(t), DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	return storage
}

func TestNew_RequiresClient(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("Expected error for nil client")
	}
}

func TestGetProfile_MissingKey(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	profile, err := storage.GetProfile(ctx, "user1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.CustomerID.IsKnown() || profile.PlanName.IsKnown() {
		t.Error("Missing key must yield an all-Unknown profile")
	}
	if profile.CreditBalance != 0 {
		t.Errorf("Expected zero balance, got %d", profile.CreditBalance)
	}
}

func TestUpsertProfile_PartialPatch(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	if err := storage.UpsertProfile(ctx, "user1", creditsync.ProfilePatch{
		CustomerID: creditsync.String("cus_1"),
	}); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	if err := storage.UpsertProfile(ctx, "user1", creditsync.ProfilePatch{
		PlanName: creditsync.String("pro"),
	}); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	profile, err := storage.GetProfile(ctx, "user1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got := profile.CustomerID.OrZero(); got != "cus_1" {
		t.Errorf("Expected cus_1, got %q", got)
	}
	if got := profile.PlanName.OrZero(); got != "pro" {
		t.Errorf("Expected pro, got %q", got)
	}
	if profile.SubscriptionID.IsKnown() {
		t.Error("Unpatched field must stay Unknown")
	}
}

func TestSetAndAddBalance(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	balance, err := storage.SetBalance(ctx, "user1", 1000)
	if err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}
	if balance != 1000 {
		t.Errorf("Expected 1000, got %d", balance)
	}

	balance, err = storage.AddBalance(ctx, "user1", 250)
	if err != nil {
		t.Fatalf("AddBalance failed: %v", err)
	}
	if balance != 1250 {
		t.Errorf("Expected 1250, got %d", balance)
	}

	balance, err = storage.AddBalance(ctx, "user1", -5000)
	if err != nil {
		t.Fatalf("AddBalance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("Expected floor at zero, got %d", balance)
	}
}

func TestAddBalance_Concurrent(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	const goroutines = 20
	const perGoroutine = 10

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				if _, err := storage.AddBalance(ctx, "user1", 1); err != nil {
					t.Errorf("AddBalance failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	profile, err := storage.GetProfile(ctx, "user1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.CreditBalance != goroutines*perGoroutine {
		t.Errorf("Expected %d, got %d (lost update)", goroutines*perGoroutine, profile.CreditBalance)
	}
}

func TestClearProfile(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	if err := storage.UpsertProfile(ctx, "user1", creditsync.ProfilePatch{
		PlanName: creditsync.String("pro"),
	}); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}
	if _, err := storage.SetBalance(ctx, "user1", 500); err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}

	if err := storage.ClearProfile(ctx, "user1"); err != nil {
		t.Fatalf("ClearProfile failed: %v", err)
	}

	profile, err := storage.GetProfile(ctx, "user1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if profile.PlanName.IsKnown() {
		t.Error("Cleared field must be Unknown")
	}
	if profile.CreditBalance != 0 {
		t.Errorf("Expected zero balance, got %d", profile.CreditBalance)
	}
}

func TestEventTracker(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	seen, err := storage.IsProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if seen {
		t.Error("Fresh event should not be processed")
	}

	if err := storage.MarkProcessed(ctx, "evt_1"); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	if err := storage.MarkProcessed(ctx, "evt_1"); err != nil {
		t.Fatalf("Double-mark should be a no-op: %v", err)
	}

	seen, err = storage.IsProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if !seen {
		t.Error("Marked event should be processed")
	}
}
