package creditsync

import "errors"

var (
	// ErrInvalidUserID is returned when a user ID is empty
	ErrInvalidUserID = errors.New("invalid user ID")

	// ErrInvalidAmount is returned when a balance amount is negative
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrStoreRequired is returned when a Ledger is created without a store
	ErrStoreRequired = errors.New("profile store is required")
)
