package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/creditsync/pkg/billing"
	"github.com/mihaimyh/creditsync/pkg/billing/internal"
	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// handleWebhook verifies and processes a Stripe webhook delivery.
//
// Status codes drive Stripe's retry behavior: 2xx acknowledges the event
// permanently, anything else causes redelivery. Events that can never
// succeed (bad signature, no user identity) are acknowledged or rejected
// terminally; transient failures (ledger writes) return 500 so Stripe
// retries.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		p.metrics.RecordWebhookError(providerName, "read_body")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		p.metrics.RecordWebhookError(providerName, "missing_signature")
		http.Error(w, "missing signature", http.StatusBadRequest)
		return
	}

	event, err := stripe.ConstructEvent(body, sigHeader, p.webhookSecret)
	if err != nil {
		p.logger.Warn("webhook signature verification failed",
			creditsync.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordWebhookError(providerName, "invalid_signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err = p.processWebhookEvent(r.Context(), &event)
	p.metrics.RecordWebhookProcessingDuration(providerName, string(event.Type), time.Since(start))

	if err != nil {
		p.logger.Error("webhook processing failed",
			creditsync.Field{Key: "event_id", Value: event.ID},
			creditsync.Field{Key: "event_type", Value: string(event.Type)},
			creditsync.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "error")
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}

	p.metrics.RecordWebhookEvent(providerName, string(event.Type), "success")
	internal.WriteJSON(w, http.StatusOK, map[string]string{"received": "true"})
}

// processWebhookEvent routes an event to its handler. Unhandled event types
// are acknowledged without action.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "invoice.payment_succeeded":
		// invoice.paid is deliberately not handled: Stripe emits it as a
		// separate event (own event ID) for the same payment, so crediting
		// on both would bypass the idempotency gate and double-apply
		// additive billing reasons.
		return p.handleInvoicePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event)
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return p.handleSubscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	default:
		p.logger.Debug("ignoring unhandled webhook event",
			creditsync.Field{Key: "event_type", Value: string(event.Type)})
		return nil
	}
}

// handleInvoicePaymentSucceeded applies a paid invoice to the credit ledger.
//
// Period-start invoices (subscription_cycle, subscription_create) replace
// the balance with the plan's full allotment; anything else, including
// billing reasons this code does not recognize, adds to it. Replacing on an
// unrecognized reason could silently wipe purchased credits, so addition is
// the safe default.
func (p *Provider) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	seen, err := p.events.IsProcessed(ctx, event.ID)
	if err != nil {
		return fmt.Errorf("idempotency check for event %s: %w", event.ID, err)
	}
	if seen {
		p.logger.Debug("skipping already-processed event",
			creditsync.Field{Key: "event_id", Value: event.ID})
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "duplicate")
		return nil
	}

	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		// A malformed payload will not improve on redelivery.
		p.logger.Error("undecodable invoice payload, acknowledging",
			creditsync.Field{Key: "event_id", Value: event.ID},
			creditsync.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return nil
	}

	userID, tier := extractInvoiceUserID(&inv)
	if userID == "" {
		// Last resort: the subscription object itself may carry the tag.
		if subID := inv.subscriptionID(); subID != "" {
			if sub, err := p.fetchSubscription(ctx, subID); err == nil {
				userID = sub.Metadata[metadataUserIDKey]
				tier = "subscription_lookup"
			}
		}
	}
	if userID == "" {
		p.logger.Error("payment cannot be credited: no user identity on event",
			creditsync.Field{Key: "event_id", Value: event.ID},
			creditsync.Field{Key: "invoice_id", Value: inv.ID},
			creditsync.Field{Key: "subscription_id", Value: inv.subscriptionID()})
		p.metrics.RecordWebhookError(providerName, "missing_identity")
		return nil
	}

	credits := p.creditsForSubscription(ctx, inv.subscriptionID())

	var balance int64
	switch inv.BillingReason {
	case billingReasonCycle, billingReasonCreate:
		balance, err = p.ledger.SetBalance(ctx, userID, credits)
	default:
		balance, err = p.ledger.AddBalance(ctx, userID, credits)
	}
	if err != nil {
		return fmt.Errorf("ledger write for event %s user %s: %w", event.ID, userID, err)
	}
	p.metrics.RecordCreditsGranted(providerName, reasonLabel(inv.BillingReason), credits)

	if err := p.events.MarkProcessed(ctx, event.ID); err != nil {
		// The ledger write landed; failing the delivery now would replay it.
		p.logger.Warn("failed to record processed event",
			creditsync.Field{Key: "event_id", Value: event.ID},
			creditsync.Field{Key: "error", Value: err.Error()})
	}

	p.logger.Info("applied paid invoice to ledger",
		creditsync.Field{Key: "user_id", Value: userID},
		creditsync.Field{Key: "event_id", Value: event.ID},
		creditsync.Field{Key: "billing_reason", Value: inv.BillingReason},
		creditsync.Field{Key: "identity_tier", Value: tier},
		creditsync.Field{Key: "credits", Value: credits},
		creditsync.Field{Key: "balance", Value: balance})

	if p.callback != nil {
		return p.invokeCallback(ctx, event, billing.WebhookEvent{
			UserID:         userID,
			BillingReason:  inv.BillingReason,
			CreditsGranted: credits,
		})
	}
	return nil
}

// handleInvoicePaymentFailed logs the failure for observability; access is
// revoked by the subscription lifecycle events that follow, not here.
func (p *Provider) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return nil
	}
	userID, _ := extractInvoiceUserID(&inv)
	p.logger.Warn("invoice payment failed",
		creditsync.Field{Key: "user_id", Value: userID},
		creditsync.Field{Key: "invoice_id", Value: inv.ID},
		creditsync.Field{Key: "subscription_id", Value: inv.subscriptionID()})
	p.metrics.RecordWebhookError(providerName, "payment_failed")
	return nil
}

// handleCheckoutSessionCompleted links a finished checkout back to the user:
// the session metadata identifies the user, and the new subscription gets
// tagged so every later invoice is attributable.
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return nil
	}

	userID := session.Metadata[metadataUserIDKey]
	if userID == "" && session.ClientReferenceID != "" {
		userID = session.ClientReferenceID
	}
	if userID == "" {
		p.logger.Error("checkout session has no user identity",
			creditsync.Field{Key: "session_id", Value: session.ID})
		p.metrics.RecordWebhookError(providerName, "missing_identity")
		return nil
	}

	patch := creditsync.ProfilePatch{}
	if session.Customer != nil && session.Customer.ID != "" {
		patch.CustomerID = creditsync.String(session.Customer.ID)
	}
	if !patch.IsEmpty() {
		if err := p.ledger.UpdateProfile(ctx, userID, patch); err != nil {
			return fmt.Errorf("failed to link checkout customer for user %s: %w", userID, err)
		}
	}

	if session.Subscription == nil || session.Subscription.ID == "" {
		return nil
	}

	sub, err := p.fetchSubscription(ctx, session.Subscription.ID)
	if err != nil {
		p.logger.Warn("failed to load subscription after checkout",
			creditsync.Field{Key: "subscription_id", Value: session.Subscription.ID},
			creditsync.Field{Key: "error", Value: err.Error()})
		return nil
	}

	if sub.Metadata[metadataUserIDKey] == "" {
		tagged, err := p.client.SetSubscriptionUserID(ctx, sub.ID, userID)
		if err != nil {
			p.logger.Warn("failed to tag subscription with user ID",
				creditsync.Field{Key: "subscription_id", Value: sub.ID},
				creditsync.Field{Key: "error", Value: err.Error()})
		} else {
			sub = tagged
		}
	}

	if err := p.SyncFromLifecycleEvent(ctx, sub); err != nil {
		if errors.Is(err, billing.ErrMissingIdentity) {
			// The tag write above failed and the customer is untagged too;
			// sync directly under the session's user.
			return p.ledger.UpdateProfile(ctx, userID, creditsync.ProfilePatch{
				SubscriptionID:     creditsync.String(sub.ID),
				SubscriptionStatus: creditsync.String(string(sub.Status)),
			})
		}
		return err
	}
	return nil
}

// handleSubscriptionChanged mirrors created/updated subscriptions into the
// profile cache.
func (p *Provider) handleSubscriptionChanged(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return nil
	}

	err := p.SyncFromLifecycleEvent(ctx, &sub)
	if errors.Is(err, billing.ErrMissingIdentity) {
		p.logger.Error("subscription event has no user identity",
			creditsync.Field{Key: "event_id", Value: event.ID},
			creditsync.Field{Key: "subscription_id", Value: sub.ID})
		p.metrics.RecordWebhookError(providerName, "missing_identity")
		return nil
	}
	return err
}

// handleSubscriptionDeleted marks the cached subscription canceled. The
// credit balance is left alone; unused credits survive cancellation until
// they are spent.
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		p.metrics.RecordWebhookError(providerName, "invalid_payload")
		return nil
	}

	userID, err := p.subscriptionUserID(ctx, &sub)
	if err != nil {
		p.logger.Error("subscription deletion has no user identity",
			creditsync.Field{Key: "event_id", Value: event.ID},
			creditsync.Field{Key: "subscription_id", Value: sub.ID})
		p.metrics.RecordWebhookError(providerName, "missing_identity")
		return nil
	}

	if err := p.ledger.UpdateProfile(ctx, userID, creditsync.ProfilePatch{
		SubscriptionStatus: creditsync.String(string(stripe.SubscriptionStatusCanceled)),
	}); err != nil {
		return fmt.Errorf("failed to mark subscription canceled for user %s: %w", userID, err)
	}

	p.logger.Info("subscription canceled",
		creditsync.Field{Key: "user_id", Value: userID},
		creditsync.Field{Key: "subscription_id", Value: sub.ID})
	return nil
}

// creditsForSubscription computes the credit grant by fetching the
// subscription's current items and summing the credits metadata across their
// prices. The fetch is deliberately fresh: invoice line snapshots can be
// stale across mid-cycle plan changes. Any failure yields zero credits
// rather than blocking the payment acknowledgment.
func (p *Provider) creditsForSubscription(ctx context.Context, subscriptionID string) int64 {
	if subscriptionID == "" {
		return 0
	}

	sub, err := p.fetchSubscription(ctx, subscriptionID)
	if err != nil {
		p.logger.Warn("credit computation degraded to zero: subscription fetch failed",
			creditsync.Field{Key: "subscription_id", Value: subscriptionID},
			creditsync.Field{Key: "error", Value: err.Error()})
		return 0
	}
	if sub.Items == nil {
		return 0
	}

	var total int64
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		raw, ok := item.Price.Metadata[priceMetadataCreditsKey]
		if !ok {
			continue
		}
		credits, err := parseCredits(raw)
		if err != nil {
			p.logger.Warn("ignoring unparseable credits metadata",
				creditsync.Field{Key: "price_id", Value: item.Price.ID},
				creditsync.Field{Key: "credits", Value: raw})
			continue
		}
		total += credits
	}
	return total
}

func (p *Provider) invokeCallback(ctx context.Context, event *stripe.Event, applied billing.WebhookEvent) error {
	applied.Provider = providerName
	applied.EventID = event.ID
	applied.EventType = string(event.Type)
	applied.EventTimestamp = time.Unix(event.Created, 0)

	if err := p.callback(ctx, applied); err != nil {
		// The event is already marked processed, so the redelivery this
		// triggers will be a no-op on the ledger.
		return fmt.Errorf("webhook callback for event %s: %w", event.ID, err)
	}
	return nil
}

// reasonLabel bounds metric cardinality to the known billing reasons.
func reasonLabel(reason string) string {
	switch reason {
	case billingReasonCycle, billingReasonCreate, billingReasonUpdate, billingReasonManual:
		return reason
	default:
		return "other"
	}
}
