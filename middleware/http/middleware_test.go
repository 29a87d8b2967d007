package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeChecker grants features from a static map.
type fakeChecker struct {
	features map[string][]string
	err      error
}

func (f *fakeChecker) HasFeature(_ context.Context, userID, feature string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, granted := range f.features[userID] {
		if granted == feature {
			return true, nil
		}
	}
	return false, nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireFeature_Allows(t *testing.T) {
	checker := &fakeChecker{features: map[string][]string{"user-1": {"advanced"}}}
	handler := RequireFeature(Config{
		Checker:   checker,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   "advanced",
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestRequireFeature_Forbidden(t *testing.T) {
	checker := &fakeChecker{features: map[string][]string{"user-1": {"basic"}}}
	handler := RequireFeature(Config{
		Checker:   checker,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   "advanced",
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", w.Code)
	}
}

func TestRequireFeature_Unauthorized(t *testing.T) {
	handler := RequireFeature(Config{
		Checker:   &fakeChecker{},
		GetUserID: FromHeader("X-User-ID"),
		Feature:   "advanced",
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestRequireFeature_CheckerError(t *testing.T) {
	handler := RequireFeature(Config{
		Checker:   &fakeChecker{err: errors.New("store unavailable")},
		GetUserID: FromHeader("X-User-ID"),
		Feature:   "advanced",
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestRequireFeature_CustomHooks(t *testing.T) {
	checker := &fakeChecker{}
	handler := RequireFeature(Config{
		Checker:   checker,
		GetUserID: FromHeader("X-User-ID"),
		Feature:   "advanced",
		OnForbidden: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		},
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/reports", http.NoBody)
	req.Header.Set("X-User-ID", "user-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected custom 402, got %d", w.Code)
	}
}

func TestFromContext(t *testing.T) {
	handler := RequireFeature(Config{
		Checker:   &fakeChecker{features: map[string][]string{"ctx-user": {"basic"}}},
		GetUserID: FromContext(UserIDKey),
		Feature:   "basic",
	})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req = req.WithContext(WithUserID(req.Context(), "ctx-user"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
