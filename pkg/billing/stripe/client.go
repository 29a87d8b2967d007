package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"
)

// Client is the subset of the Stripe API this provider depends on. The
// default implementation wraps the official client; tests substitute a fake.
// Stripe remains the authoritative source of truth for everything except the
// credit balance.
type Client interface {
	// Subscription retrieves a subscription by ID with item prices expanded,
	// so price-level metadata is available without extra round trips.
	Subscription(ctx context.Context, id string) (*stripe.Subscription, error)

	// ActiveSubscriptions lists a customer's subscriptions filtered to
	// status=active.
	ActiveSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error)

	// Customer retrieves a customer by ID.
	Customer(ctx context.Context, id string) (*stripe.Customer, error)

	// CreateCustomer creates a customer tagged with the internal user ID in
	// metadata, so future webhooks can resolve ownership.
	CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error)

	// Price retrieves a price by ID.
	Price(ctx context.Context, id string) (*stripe.Price, error)

	// Product retrieves a product by ID.
	Product(ctx context.Context, id string) (*stripe.Product, error)

	// SetSubscriptionUserID patches the user-ID tag onto a subscription's
	// metadata and returns the updated subscription.
	SetSubscriptionUserID(ctx context.Context, subscriptionID, userID string) (*stripe.Subscription, error)

	// CreateCheckoutSession creates a Checkout Session.
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)

	// CreatePortalSession creates a Billing Portal session for a customer.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error)
}

// apiClient implements Client over the official stripe-go client.
type apiClient struct {
	sc *stripe.Client
}

// NewAPIClient wraps a stripe.Client in the Client interface.
func NewAPIClient(sc *stripe.Client) Client {
	return &apiClient{sc: sc}
}

func (c *apiClient) Subscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionRetrieveParams{}
	params.AddExpand("items.data.price")
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, id, params)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", id, err)
	}
	return sub, nil
}

func (c *apiClient) ActiveSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String(string(stripe.SubscriptionStatusActive))

	var subscriptions []*stripe.Subscription
	for sub, err := range c.sc.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		subscriptions = append(subscriptions, sub)
	}
	return subscriptions, nil
}

func (c *apiClient) Customer(ctx context.Context, id string) (*stripe.Customer, error) {
	cust, err := c.sc.V1Customers.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve customer %s: %w", id, err)
	}
	return cust, nil
}

func (c *apiClient) CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(email),
	}
	params.AddMetadata(metadataUserIDKey, userID)

	cust, err := c.sc.V1Customers.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return cust, nil
}

func (c *apiClient) Price(ctx context.Context, id string) (*stripe.Price, error) {
	price, err := c.sc.V1Prices.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve price %s: %w", id, err)
	}
	return price, nil
}

func (c *apiClient) Product(ctx context.Context, id string) (*stripe.Product, error) {
	product, err := c.sc.V1Products.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve product %s: %w", id, err)
	}
	return product, nil
}

func (c *apiClient) SetSubscriptionUserID(ctx context.Context, subscriptionID, userID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionUpdateParams{}
	params.AddMetadata(metadataUserIDKey, userID)

	sub, err := c.sc.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to patch subscription metadata: %w", err)
	}
	return sub, nil
}

func (c *apiClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	session, err := c.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return session, nil
}

func (c *apiClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	session, err := c.sc.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}
	return session, nil
}
