package stripe

import (
	"encoding/json"
	"testing"
)

func mustParseInvoice(t *testing.T, raw string) *invoicePayload {
	t.Helper()
	var inv invoicePayload
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		t.Fatalf("Failed to parse invoice payload: %v", err)
	}
	return &inv
}

func TestExtractInvoiceUserID_InvoiceParentWins(t *testing.T) {
	inv := mustParseInvoice(t, `{
		"id": "in_1",
		"parent": {"subscription_details": {"metadata": {"user_id": "from-parent"}}},
		"lines": {"data": [
			{"metadata": {"user_id": "from-line"},
			 "parent": {"subscription_details": {"metadata": {"user_id": "from-line-parent"}}}}
		]}
	}`)

	userID, tier := extractInvoiceUserID(inv)
	if userID != "from-parent" {
		t.Errorf("Expected from-parent, got %s", userID)
	}
	if tier != "invoice_parent" {
		t.Errorf("Expected invoice_parent tier, got %s", tier)
	}
}

func TestExtractInvoiceUserID_FallsBackToLineParent(t *testing.T) {
	inv := mustParseInvoice(t, `{
		"id": "in_1",
		"lines": {"data": [
			{"metadata": {"user_id": "from-line"},
			 "parent": {"subscription_details": {"metadata": {"user_id": "from-line-parent"}}}}
		]}
	}`)

	userID, tier := extractInvoiceUserID(inv)
	if userID != "from-line-parent" {
		t.Errorf("Expected from-line-parent, got %s", userID)
	}
	if tier != "line_parent" {
		t.Errorf("Expected line_parent tier, got %s", tier)
	}
}

func TestExtractInvoiceUserID_FallsBackToLineMetadata(t *testing.T) {
	inv := mustParseInvoice(t, `{
		"id": "in_1",
		"lines": {"data": [
			{"metadata": {"other": "x"}},
			{"metadata": {"user_id": "from-line"}}
		]}
	}`)

	userID, tier := extractInvoiceUserID(inv)
	if userID != "from-line" {
		t.Errorf("Expected from-line, got %s", userID)
	}
	if tier != "line_metadata" {
		t.Errorf("Expected line_metadata tier, got %s", tier)
	}
}

func TestExtractInvoiceUserID_FallsBackToInvoiceMetadata(t *testing.T) {
	inv := mustParseInvoice(t, `{
		"id": "in_1",
		"metadata": {"user_id": "from-invoice"},
		"lines": {"data": [{"metadata": {"other": "x"}}]}
	}`)

	userID, tier := extractInvoiceUserID(inv)
	if userID != "from-invoice" {
		t.Errorf("Expected from-invoice, got %s", userID)
	}
	if tier != "invoice_metadata" {
		t.Errorf("Expected invoice_metadata tier, got %s", tier)
	}
}

func TestExtractInvoiceUserID_LineMetadataBeatsInvoiceMetadata(t *testing.T) {
	inv := mustParseInvoice(t, `{
		"id": "in_1",
		"metadata": {"user_id": "from-invoice"},
		"lines": {"data": [{"metadata": {"user_id": "from-line"}}]}
	}`)

	userID, tier := extractInvoiceUserID(inv)
	if userID != "from-line" {
		t.Errorf("Expected from-line, got %s", userID)
	}
	if tier != "line_metadata" {
		t.Errorf("Expected line_metadata tier, got %s", tier)
	}
}

func TestExtractInvoiceUserID_NothingFound(t *testing.T) {
	inv := mustParseInvoice(t, `{"id": "in_1", "lines": {"data": []}}`)

	userID, tier := extractInvoiceUserID(inv)
	if userID != "" || tier != "" {
		t.Errorf("Expected empty result, got %q / %q", userID, tier)
	}
}

func TestSubscriptionRef_StringAndObjectForms(t *testing.T) {
	inv := mustParseInvoice(t, `{"id": "in_1", "subscription": "sub_plain"}`)
	if got := inv.subscriptionID(); got != "sub_plain" {
		t.Errorf("Expected sub_plain, got %s", got)
	}

	inv = mustParseInvoice(t, `{"id": "in_1", "subscription": {"id": "sub_expanded"}}`)
	if got := inv.subscriptionID(); got != "sub_expanded" {
		t.Errorf("Expected sub_expanded, got %s", got)
	}

	inv = mustParseInvoice(t, `{"id": "in_1", "subscription": null}`)
	if got := inv.subscriptionID(); got != "" {
		t.Errorf("Expected empty ID for null, got %s", got)
	}
}

func TestSubscriptionID_FromParentDetails(t *testing.T) {
	inv := mustParseInvoice(t, `{
		"id": "in_1",
		"parent": {"subscription_details": {"subscription": "sub_nested"}}
	}`)
	if got := inv.subscriptionID(); got != "sub_nested" {
		t.Errorf("Expected sub_nested, got %s", got)
	}
}

func TestParseCredits(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1000", 1000, false},
		{" 42 ", 42, false},
		{"0", 0, false},
		{"-5", 0, true},
		{"lots", 0, true},
		{"", 0, true},
		{"10.5", 0, true},
	}

	for _, tt := range tests {
		got, err := parseCredits(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseCredits(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCredits(%q): unexpected error %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("parseCredits(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
