package api

import "time"

// ProfileResponse represents the cached billing state for a user
type ProfileResponse struct {
	UserID             string     `json:"user_id"`
	Plan               string     `json:"plan,omitempty"`
	SubscriptionStatus string     `json:"subscription_status,omitempty"`
	Status             string     `json:"status"` // "active", "inactive", "unsynced"
	CreditBalance      int64      `json:"credit_balance"`
	Features           []string   `json:"features"`
	UpdatedAt          *time.Time `json:"updated_at,omitempty"`
}

// BalanceResponse represents just the credit balance for a user
type BalanceResponse struct {
	UserID        string `json:"user_id"`
	CreditBalance int64  `json:"credit_balance"`
}
