package stripe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Invoice payloads are decoded into minimal local structs rather than the
// SDK's invoice type: only the identity and dispatch fields matter here, and
// a loose decode keeps the handler working across API-version drift in the
// parts of the payload we never read.

type invoicePayload struct {
	ID            string            `json:"id"`
	BillingReason string            `json:"billing_reason"`
	Subscription  subscriptionRef   `json:"subscription"`
	Parent        *invoiceParent    `json:"parent"`
	Lines         invoiceLines      `json:"lines"`
	Metadata      map[string]string `json:"metadata"`
}

type invoiceParent struct {
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
}

type subscriptionDetails struct {
	Subscription subscriptionRef   `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceLines struct {
	Data []invoiceLine `json:"data"`
}

type invoiceLine struct {
	Metadata map[string]string `json:"metadata"`
	Parent   *invoiceParent    `json:"parent"`
}

// subscriptionRef accepts either the string ID form or the expanded object
// form Stripe uses interchangeably for subscription references.
type subscriptionRef struct {
	ID string
}

func (r *subscriptionRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	return nil
}

// subscriptionID returns the subscription the invoice bills for, from the
// top-level reference or the parent details.
func (inv *invoicePayload) subscriptionID() string {
	if inv.Subscription.ID != "" {
		return inv.Subscription.ID
	}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

// identityExtractors are tried in order until one yields a user ID. Stripe
// surfaces subscription metadata in different places depending on API
// version and event shape, so each known location gets a tier.
var identityExtractors = []struct {
	tier string
	fn   func(*invoicePayload) string
}{
	{"invoice_parent", invoiceParentUserID},
	{"line_parent", lineParentUserID},
	{"line_metadata", lineMetadataUserID},
	{"invoice_metadata", invoiceMetadataUserID},
}

// extractInvoiceUserID walks the extraction tiers and returns the first user
// ID found along with the tier that produced it.
func extractInvoiceUserID(inv *invoicePayload) (userID, tier string) {
	for _, e := range identityExtractors {
		if id := e.fn(inv); id != "" {
			return id, e.tier
		}
	}
	return "", ""
}

// invoiceParentUserID reads subscription metadata nested under the invoice's
// parent details.
func invoiceParentUserID(inv *invoicePayload) string {
	if inv.Parent == nil || inv.Parent.SubscriptionDetails == nil {
		return ""
	}
	return inv.Parent.SubscriptionDetails.Metadata[metadataUserIDKey]
}

// lineParentUserID reads the same nested metadata off the invoice lines.
func lineParentUserID(inv *invoicePayload) string {
	for _, line := range inv.Lines.Data {
		if line.Parent == nil || line.Parent.SubscriptionDetails == nil {
			continue
		}
		if id := line.Parent.SubscriptionDetails.Metadata[metadataUserIDKey]; id != "" {
			return id
		}
	}
	return ""
}

// invoiceMetadataUserID reads metadata attached to the invoice itself. Only
// manually created invoices tend to carry it, so it ranks below the
// subscription-derived tiers.
func invoiceMetadataUserID(inv *invoicePayload) string {
	return inv.Metadata[metadataUserIDKey]
}

// lineMetadataUserID reads metadata attached directly to a line item.
func lineMetadataUserID(inv *invoicePayload) string {
	for _, line := range inv.Lines.Data {
		if id := line.Metadata[metadataUserIDKey]; id != "" {
			return id
		}
	}
	return ""
}

// parseCredits parses a price's credits metadata value. Metadata values are
// always strings in Stripe; negative or non-numeric values are rejected.
func parseCredits(raw string) (int64, error) {
	credits, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid credits value %q: %w", raw, err)
	}
	if credits < 0 {
		return 0, fmt.Errorf("negative credits value %q", raw)
	}
	return credits, nil
}
