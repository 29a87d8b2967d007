package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/creditsync/pkg/billing"
	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// CheckoutURL creates a subscription Checkout Session for the given price
// and returns its URL. The session and its subscription are tagged with the
// user ID so the resulting webhooks can be attributed without guesswork.
func (p *Provider) CheckoutURL(ctx context.Context, userID, priceID, successURL, cancelURL string) (string, error) {
	if userID == "" {
		return "", creditsync.ErrInvalidUserID
	}
	if priceID == "" {
		return "", fmt.Errorf("%w: priceID is required", billing.ErrProviderNotConfigured)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata(metadataUserIDKey, userID)

	// The subscription-level tag is what invoice webhooks ultimately read.
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(metadataUserIDKey, userID)

	// Reuse the existing customer when one is cached, so the purchase lands
	// on the same Stripe customer as previous ones.
	profile, err := p.ledger.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	if customerID, ok := profile.CustomerID.Get(); ok && customerID != "" {
		params.Customer = stripe.String(customerID)
	}

	start := time.Now()
	session, err := p.client.CreateCheckoutSession(ctx, params)
	p.metrics.RecordAPICallDuration(providerName, "/v1/checkout/sessions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "error")
		return "", fmt.Errorf("failed to create checkout session for user %s: %w", userID, err)
	}
	p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "success")

	p.logger.Info("created checkout session",
		creditsync.Field{Key: "user_id", Value: userID},
		creditsync.Field{Key: "session_id", Value: session.ID},
		creditsync.Field{Key: "price_id", Value: priceID})
	return session.URL, nil
}

// PortalURL creates a Billing Portal session for the user's customer and
// returns its URL. The user must already have a customer.
func (p *Provider) PortalURL(ctx context.Context, userID, returnURL string) (string, error) {
	if userID == "" {
		return "", creditsync.ErrInvalidUserID
	}

	profile, err := p.ledger.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	customerID, ok := profile.CustomerID.Get()
	if !ok || customerID == "" {
		return "", fmt.Errorf("user %s: %w", userID, billing.ErrCustomerNotFound)
	}

	start := time.Now()
	session, err := p.client.CreatePortalSession(ctx, customerID, returnURL)
	p.metrics.RecordAPICallDuration(providerName, "/v1/billing_portal/sessions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "error")
		return "", fmt.Errorf("failed to create portal session for user %s: %w", userID, err)
	}
	p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "success")
	return session.URL, nil
}
