// Package firestore provides a Firestore implementation of the
// creditsync.ProfileStore and creditsync.EventTracker interfaces.
// Balance mutations run inside Firestore transactions, which retry on
// contention, so the read-modify-write is serialized.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// Document fields of a profile. Absent fields are Unknown.
const (
	fieldCustomerID         = "customer_id"
	fieldSubscriptionID     = "subscription_id"
	fieldPlanName           = "plan_name"
	fieldSubscriptionStatus = "subscription_status"
	fieldCreditBalance      = "credit_balance"
	fieldUpdatedAt          = "updated_at"
)

// Storage implements creditsync.ProfileStore and creditsync.EventTracker
// using Google Cloud Firestore.
type Storage struct {
	client             *firestore.Client
	profilesCollection string
	eventsCollection   string
}

// Config holds Firestore storage configuration.
type Config struct {
	// ProfilesCollection is the Firestore collection for billing profiles
	// Default: "billing_profiles"
	ProfilesCollection string

	// EventsCollection is the Firestore collection for processed webhook events
	// Default: "billing_events"
	EventsCollection string
}

// New creates a new Firestore storage adapter.
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.ProfilesCollection == "" {
		config.ProfilesCollection = "billing_profiles"
	}
	if config.EventsCollection == "" {
		config.EventsCollection = "billing_events"
	}

	return &Storage{
		client:             client,
		profilesCollection: config.ProfilesCollection,
		eventsCollection:   config.EventsCollection,
	}, nil
}

// GetProfile implements creditsync.ProfileStore.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*creditsync.BillingProfile, error) {
	snap, err := s.profileDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &creditsync.BillingProfile{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profileFromData(userID, snap.Data()), nil
}

// UpsertProfile implements creditsync.ProfileStore. MergeAll touches only
// the fields present in the patch.
func (s *Storage) UpsertProfile(ctx context.Context, userID string, patch creditsync.ProfilePatch) error {
	data := make(map[string]interface{})
	if patch.CustomerID != nil {
		data[fieldCustomerID] = *patch.CustomerID
	}
	if patch.SubscriptionID != nil {
		data[fieldSubscriptionID] = *patch.SubscriptionID
	}
	if patch.PlanName != nil {
		data[fieldPlanName] = *patch.PlanName
	}
	if patch.SubscriptionStatus != nil {
		data[fieldSubscriptionStatus] = *patch.SubscriptionStatus
	}
	if len(data) == 0 {
		return nil
	}
	data[fieldUpdatedAt] = time.Now().UTC()

	if _, err := s.profileDoc(userID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// SetBalance implements creditsync.ProfileStore.
func (s *Storage) SetBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	_, err := s.profileDoc(userID).Set(ctx, map[string]interface{}{
		fieldCreditBalance: amount,
		fieldUpdatedAt:     time.Now().UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return 0, fmt.Errorf("failed to set balance: %w", err)
	}
	return amount, nil
}

// AddBalance implements creditsync.ProfileStore. The transaction retries on
// contention, so concurrent adds are strictly ordered.
func (s *Storage) AddBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	doc := s.profileDoc(userID)
	var balance int64

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var current int64
		if err == nil {
			current = getInt64(snap.Data(), fieldCreditBalance)
		}

		balance = current + delta
		if balance < 0 {
			balance = 0
		}

		return tx.Set(doc, map[string]interface{}{
			fieldCreditBalance: balance,
			fieldUpdatedAt:     time.Now().UTC(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add balance: %w", err)
	}
	return balance, nil
}

// ClearProfile implements creditsync.ProfileStore. The document is replaced
// wholesale so provider fields go back to absent (Unknown).
func (s *Storage) ClearProfile(ctx context.Context, userID string) error {
	_, err := s.profileDoc(userID).Set(ctx, map[string]interface{}{
		fieldCreditBalance: int64(0),
		fieldUpdatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to clear profile: %w", err)
	}
	return nil
}

// IsProcessed implements creditsync.EventTracker.
func (s *Storage) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	_, err := s.eventDoc(eventID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return true, nil
}

// MarkProcessed implements creditsync.EventTracker. Create fails with
// AlreadyExists for a duplicate mark, which is a no-op by contract.
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := s.eventDoc(eventID).Create(ctx, map[string]interface{}{
		"processed_at": time.Now().UTC(),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (s *Storage) profileDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.profilesCollection).Doc(userID)
}

func (s *Storage) eventDoc(eventID string) *firestore.DocumentRef {
	return s.client.Collection(s.eventsCollection).Doc(eventID)
}

// Close closes the underlying Firestore client.
func (s *Storage) Close() error {
	return s.client.Close()
}

func profileFromData(userID string, data map[string]interface{}) *creditsync.BillingProfile {
	profile := &creditsync.BillingProfile{
		UserID:        userID,
		CreditBalance: getInt64(data, fieldCreditBalance),
	}
	if v, ok := data[fieldCustomerID].(string); ok {
		profile.CustomerID = creditsync.Known(v)
	}
	if v, ok := data[fieldSubscriptionID].(string); ok {
		profile.SubscriptionID = creditsync.Known(v)
	}
	if v, ok := data[fieldPlanName].(string); ok {
		profile.PlanName = creditsync.Known(v)
	}
	if v, ok := data[fieldSubscriptionStatus].(string); ok {
		profile.SubscriptionStatus = creditsync.Known(v)
	}
	if v, ok := data[fieldUpdatedAt].(time.Time); ok {
		profile.UpdatedAt = v
	}
	return profile
}

// getInt64 reads a numeric field, tolerating the int64/float64 ambiguity in
// decoded Firestore data.
func getInt64(data map[string]interface{}, key string) int64 {
	switch v := data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}
