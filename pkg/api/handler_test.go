package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mihaimyh/creditsync/pkg/creditsync"
	"github.com/mihaimyh/creditsync/storage/memory"
)

func newTestHandler(t *testing.T) (*Handler, *creditsync.Ledger) {
	t.Helper()

	ledger, err := creditsync.NewLedger(memory.New(), nil)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	handler, err := NewHandler(Config{
		Ledger:    ledger,
		GetUserID: FromHeader("X-User-ID"),
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return handler, ledger
}

func getProfile(t *testing.T, handler *Handler, userID string) (int, ProfileResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/billing/profile", http.NoBody)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	handler.GetProfile(w, req)

	var resp ProfileResponse
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return w.Code, resp
}

func TestNewHandler_Validation(t *testing.T) {
	ledger, err := creditsync.NewLedger(memory.New(), nil)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}

	if _, err := NewHandler(Config{GetUserID: FromHeader("X-User-ID")}); err == nil {
		t.Error("Expected error for missing Ledger")
	}
	if _, err := NewHandler(Config{Ledger: ledger}); err == nil {
		t.Error("Expected error for missing GetUserID")
	}
}

func TestGetProfile_Unsynced(t *testing.T) {
	handler, _ := newTestHandler(t)

	code, resp := getProfile(t, handler, "user-1")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if resp.Status != statusUnsynced {
		t.Errorf("Expected unsynced status, got %q", resp.Status)
	}
	if resp.CreditBalance != 0 {
		t.Errorf("Expected zero balance, got %d", resp.CreditBalance)
	}
	if len(resp.Features) != 0 {
		t.Errorf("Expected no features, got %v", resp.Features)
	}
}

func TestGetProfile_ActiveSubscription(t *testing.T) {
	handler, ledger := newTestHandler(t)
	ctx := context.Background()

	if err := ledger.UpdateProfile(ctx, "user-1", creditsync.ProfilePatch{
		PlanName:           creditsync.String("pro"),
		SubscriptionStatus: creditsync.String("active"),
	}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if _, err := ledger.SetBalance(ctx, "user-1", 500); err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}

	code, resp := getProfile(t, handler, "user-1")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if resp.Status != statusActive {
		t.Errorf("Expected active status, got %q", resp.Status)
	}
	if resp.Plan != "pro" {
		t.Errorf("Expected plan pro, got %q", resp.Plan)
	}
	if resp.CreditBalance != 500 {
		t.Errorf("Expected 500 credits, got %d", resp.CreditBalance)
	}
	// Default plan table: pro unlocks basic and advanced, sorted.
	if len(resp.Features) != 2 || resp.Features[0] != "advanced" || resp.Features[1] != "basic" {
		t.Errorf("Unexpected features: %v", resp.Features)
	}
	if resp.UpdatedAt == nil {
		t.Error("Expected updated_at to be set")
	}
}

func TestGetProfile_PastDueCountsActive(t *testing.T) {
	handler, ledger := newTestHandler(t)

	if err := ledger.UpdateProfile(context.Background(), "user-1", creditsync.ProfilePatch{
		SubscriptionStatus: creditsync.String("past_due"),
	}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	code, resp := getProfile(t, handler, "user-1")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if resp.Status != statusActive {
		t.Errorf("Expected active status for past_due, got %q", resp.Status)
	}
}

func TestGetProfile_CanceledIsInactive(t *testing.T) {
	handler, ledger := newTestHandler(t)

	if err := ledger.UpdateProfile(context.Background(), "user-1", creditsync.ProfilePatch{
		PlanName:           creditsync.String("pro"),
		SubscriptionStatus: creditsync.String("canceled"),
	}); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}

	code, resp := getProfile(t, handler, "user-1")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if resp.Status != statusInactive {
		t.Errorf("Expected inactive status, got %q", resp.Status)
	}
}

func TestGetProfile_Unauthorized(t *testing.T) {
	handler, _ := newTestHandler(t)

	code, _ := getProfile(t, handler, "")
	if code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", code)
	}
}

func TestGetBalance(t *testing.T) {
	handler, ledger := newTestHandler(t)

	if _, err := ledger.SetBalance(context.Background(), "user-1", 1250); err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/billing/balance", http.NoBody)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.GetBalance(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp BalanceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.CreditBalance != 1250 {
		t.Errorf("Expected 1250, got %d", resp.CreditBalance)
	}
}

func TestRoutes(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/billing/profile", http.NoBody)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.Routes().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 via mux, got %d", w.Code)
	}
}

func TestCustomOnError(t *testing.T) {
	ledger, err := creditsync.NewLedger(memory.New(), nil)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	handler, err := NewHandler(Config{
		Ledger:    ledger,
		GetUserID: FromHeader("X-User-ID"),
		OnError: func(w http.ResponseWriter, _ *http.Request, _ error) {
			w.WriteHeader(http.StatusTeapot)
		},
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}

	code, _ := getProfile(t, handler, "")
	if code != http.StatusTeapot {
		t.Errorf("Expected custom handler 418, got %d", code)
	}
}
