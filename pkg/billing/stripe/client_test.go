package stripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v83"
)

// fakeClient is an in-memory Client for tests. Per-method error fields force
// failure paths; call counters verify which API surface a flow exercises.
type fakeClient struct {
	subscriptions map[string]*stripe.Subscription
	customers     map[string]*stripe.Customer
	prices        map[string]*stripe.Price
	products      map[string]*stripe.Product
	listResult    []*stripe.Subscription

	subscriptionErr error
	listErr         error
	customerErr     error
	priceErr        error
	productErr      error

	retrieveCalls int
	listCalls     int
	createCalls   int
	tagCalls      int
	priceCalls    int

	checkoutSession *stripe.CheckoutSession
	portalSession   *stripe.BillingPortalSession
	checkoutParams  *stripe.CheckoutSessionCreateParams
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		subscriptions: make(map[string]*stripe.Subscription),
		customers:     make(map[string]*stripe.Customer),
		prices:        make(map[string]*stripe.Price),
		products:      make(map[string]*stripe.Product),
	}
}

func (f *fakeClient) Subscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.retrieveCalls++
	if f.subscriptionErr != nil {
		return nil, f.subscriptionErr
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	return sub, nil
}

func (f *fakeClient) ActiveSubscriptions(_ context.Context, _ string) ([]*stripe.Subscription, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listResult, nil
}

func (f *fakeClient) Customer(_ context.Context, id string) (*stripe.Customer, error) {
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	cust, ok := f.customers[id]
	if !ok {
		return nil, fmt.Errorf("no such customer: %s", id)
	}
	return cust, nil
}

func (f *fakeClient) CreateCustomer(_ context.Context, email, userID string) (*stripe.Customer, error) {
	if f.customerErr != nil {
		return nil, f.customerErr
	}
	f.createCalls++
	cust := &stripe.Customer{
		ID:       fmt.Sprintf("cus_fake_%d", f.createCalls),
		Email:    email,
		Metadata: map[string]string{metadataUserIDKey: userID},
	}
	f.customers[cust.ID] = cust
	return cust, nil
}

func (f *fakeClient) Price(_ context.Context, id string) (*stripe.Price, error) {
	f.priceCalls++
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	price, ok := f.prices[id]
	if !ok {
		return nil, fmt.Errorf("no such price: %s", id)
	}
	return price, nil
}

func (f *fakeClient) Product(_ context.Context, id string) (*stripe.Product, error) {
	if f.productErr != nil {
		return nil, f.productErr
	}
	product, ok := f.products[id]
	if !ok {
		return nil, fmt.Errorf("no such product: %s", id)
	}
	return product, nil
}

func (f *fakeClient) SetSubscriptionUserID(_ context.Context, subscriptionID, userID string) (*stripe.Subscription, error) {
	f.tagCalls++
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
	}
	if sub.Metadata == nil {
		sub.Metadata = make(map[string]string)
	}
	sub.Metadata[metadataUserIDKey] = userID
	return sub, nil
}

func (f *fakeClient) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	f.checkoutParams = params
	if f.checkoutSession == nil {
		return nil, fmt.Errorf("checkout not configured")
	}
	return f.checkoutSession, nil
}

func (f *fakeClient) CreatePortalSession(_ context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	if f.portalSession == nil {
		return nil, fmt.Errorf("portal not configured")
	}
	return f.portalSession, nil
}

// subWithCredits builds a subscription whose single item grants the given
// credits through price metadata.
func subWithCredits(id string, status stripe.SubscriptionStatus, credits string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Status:   status,
		Metadata: map[string]string{},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					Price: &stripe.Price{
						ID:       "price_test_1",
						Metadata: map[string]string{priceMetadataCreditsKey: credits},
						Product:  &stripe.Product{ID: "prod_test_1", Name: "Pro"},
					},
				},
			},
		},
	}
}
