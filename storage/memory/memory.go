// Package memory provides an in-memory implementation of the
// creditsync.ProfileStore and creditsync.EventTracker interfaces.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// Storage implements creditsync.ProfileStore and creditsync.EventTracker
// using in-memory maps. A single mutex serializes balance read-modify-writes.
type Storage struct {
	mu       sync.RWMutex
	profiles map[string]*creditsync.BillingProfile
	events   map[string]struct{}
}

// New creates a new in-memory storage adapter.
func New() *Storage {
	return &Storage{
		profiles: make(map[string]*creditsync.BillingProfile),
		events:   make(map[string]struct{}),
	}
}

// GetProfile implements creditsync.ProfileStore. A missing row yields an
// all-Unknown profile with a zero balance.
func (s *Storage) GetProfile(ctx context.Context, userID string) (*creditsync.BillingProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return &creditsync.BillingProfile{UserID: userID}, nil
	}

	// Return a copy to prevent external mutations
	profileCopy := *profile
	return &profileCopy, nil
}

// UpsertProfile implements creditsync.ProfileStore.
func (s *Storage) UpsertProfile(ctx context.Context, userID string, patch creditsync.ProfilePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.getOrCreateLocked(userID)
	if patch.CustomerID != nil {
		profile.CustomerID = creditsync.Known(*patch.CustomerID)
	}
	if patch.SubscriptionID != nil {
		profile.SubscriptionID = creditsync.Known(*patch.SubscriptionID)
	}
	if patch.PlanName != nil {
		profile.PlanName = creditsync.Known(*patch.PlanName)
	}
	if patch.SubscriptionStatus != nil {
		profile.SubscriptionStatus = creditsync.Known(*patch.SubscriptionStatus)
	}
	profile.UpdatedAt = time.Now()
	return nil
}

// SetBalance implements creditsync.ProfileStore.
func (s *Storage) SetBalance(ctx context.Context, userID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.getOrCreateLocked(userID)
	profile.CreditBalance = amount
	profile.UpdatedAt = time.Now()
	return profile.CreditBalance, nil
}

// AddBalance implements creditsync.ProfileStore. The mutex makes the
// read-modify-write atomic; the result is floored at zero.
func (s *Storage) AddBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.getOrCreateLocked(userID)
	balance := profile.CreditBalance + delta
	if balance < 0 {
		balance = 0
	}
	profile.CreditBalance = balance
	profile.UpdatedAt = time.Now()
	return balance, nil
}

// ClearProfile implements creditsync.ProfileStore. The row survives with
// every field back to Unknown and a zero balance.
func (s *Storage) ClearProfile(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[userID] = &creditsync.BillingProfile{
		UserID:    userID,
		UpdatedAt: time.Now(),
	}
	return nil
}

// IsProcessed implements creditsync.EventTracker.
func (s *Storage) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.events[eventID]
	return ok, nil
}

// MarkProcessed implements creditsync.EventTracker.
func (s *Storage) MarkProcessed(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[eventID] = struct{}{}
	return nil
}

// getOrCreateLocked returns the stored profile, creating it on first touch.
// Caller must hold the write lock.
func (s *Storage) getOrCreateLocked(userID string) *creditsync.BillingProfile {
	profile, ok := s.profiles[userID]
	if !ok {
		profile = &creditsync.BillingProfile{UserID: userID}
		s.profiles[userID] = profile
	}
	return profile
}
