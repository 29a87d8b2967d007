// Package api provides read-only HTTP endpoints over the locally cached
// billing profile. Responses come straight from the store; the billing
// provider is never called, so the endpoints stay up when the provider is
// down and answers reflect the last synced state.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

const (
	statusActive   = "active"
	statusInactive = "inactive"
	statusUnsynced = "unsynced"
	maxUserIDLen   = 255
)

// Subscription statuses under which the user keeps plan access. past_due is
// included to cover the card-retry grace window.
var activeStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
	"past_due": true,
}

// Handler provides HTTP endpoints for billing profile inspection
type Handler struct {
	config Config
}

// GetProfile returns the cached billing profile: plan, subscription status,
// credit balance, and the features the plan unlocks.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.config.Ledger.Profile(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get profile: %w", err), http.StatusInternalServerError)
		return
	}

	response := ProfileResponse{
		UserID:        userID,
		Plan:          profile.PlanName.OrZero(),
		CreditBalance: profile.CreditBalance,
		Status:        deriveStatus(profile),
		Features:      h.featuresFor(profile),
	}
	if profile.SubscriptionStatus.IsKnown() {
		response.SubscriptionStatus = profile.SubscriptionStatus.OrZero()
	}
	if !profile.UpdatedAt.IsZero() {
		updatedAt := profile.UpdatedAt
		response.UpdatedAt = &updatedAt
	}

	writeJSON(w, http.StatusOK, response)
}

// GetBalance returns just the credit balance. Absent profiles read as zero.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	balance, err := h.config.Ledger.Balance(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, fmt.Errorf("failed to get balance: %w", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		UserID:        userID,
		CreditBalance: balance,
	})
}

// Routes returns a ServeMux with the handler's endpoints mounted at
// /billing/profile and /billing/balance.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/billing/profile", h.GetProfile)
	mux.HandleFunc("/billing/balance", h.GetBalance)
	return mux
}

func (h *Handler) requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := h.config.GetUserID(r)
	if userID == "" {
		h.handleError(w, r, fmt.Errorf("user ID not found"), http.StatusUnauthorized)
		return "", false
	}
	if len(userID) > maxUserIDLen {
		h.handleError(w, r, fmt.Errorf("invalid user ID format"), http.StatusBadRequest)
		return "", false
	}
	return userID, true
}

func (h *Handler) featuresFor(profile *creditsync.BillingProfile) []string {
	features := h.config.Entitlements.Features(profile.PlanName.OrZero())
	if features == nil {
		return []string{}
	}
	sort.Strings(features)
	return features
}

// deriveStatus collapses the cached subscription state into the coarse
// status the UI cares about.
func deriveStatus(profile *creditsync.BillingProfile) string {
	if !profile.SubscriptionStatus.IsKnown() {
		return statusUnsynced
	}
	if activeStatuses[profile.SubscriptionStatus.OrZero()] {
		return statusActive
	}
	return statusInactive
}

// handleError handles errors with appropriate HTTP status codes
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if h.config.OnError != nil {
		h.config.OnError(w, r, err)
		return
	}

	writeJSON(w, statusCode, map[string]string{
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Response already sent; nothing useful left to do.
		_ = err
	}
}
