package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/creditsync/pkg/billing"
	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

// uiActiveStatuses are the subscription statuses treated as "active" for
// display and entitlement purposes. past_due is included so a user whose
// card bounced keeps access while Stripe retries the charge.
var uiActiveStatuses = map[stripe.SubscriptionStatus]bool{
	stripe.SubscriptionStatusActive:   true,
	stripe.SubscriptionStatusTrialing: true,
	stripe.SubscriptionStatusPastDue:  true,
}

// LocalProfile returns the cached billing profile without contacting Stripe.
// Fields that have never been synced are Unknown.
func (p *Provider) LocalProfile(ctx context.Context, userID string) (*creditsync.BillingProfile, error) {
	return p.ledger.Profile(ctx, userID)
}

// ActiveSubscription resolves the user's current subscription, preferring the
// cached subscription ID over a list call. Returns (nil, nil) when the user
// has no usable subscription; provider outages degrade to the same answer
// rather than failing the caller.
func (p *Provider) ActiveSubscription(ctx context.Context, userID string) (*stripe.Subscription, error) {
	profile, err := p.ledger.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	customerID, ok := profile.CustomerID.Get()
	if !ok || customerID == "" {
		return nil, nil
	}

	// Fast path: a cached subscription ID means a single retrieve.
	if subID, ok := profile.SubscriptionID.Get(); ok && subID != "" {
		sub, err := p.fetchSubscription(ctx, subID)
		if err != nil {
			p.logger.Warn("subscription lookup failed, treating as no subscription",
				creditsync.Field{Key: "user_id", Value: userID},
				creditsync.Field{Key: "subscription_id", Value: subID},
				creditsync.Field{Key: "error", Value: err.Error()})
			return nil, nil
		}
		if !uiActiveStatuses[sub.Status] {
			p.cacheSubscriptionStatus(ctx, userID, sub)
			return nil, nil
		}
		p.cacheSubscriptionStatus(ctx, userID, sub)
		return sub, nil
	}

	// Slow path: list the customer's active subscriptions.
	subs, err := p.listActiveSubscriptions(ctx, customerID)
	if err != nil {
		p.logger.Warn("subscription list failed, treating as no subscription",
			creditsync.Field{Key: "user_id", Value: userID},
			creditsync.Field{Key: "customer_id", Value: customerID},
			creditsync.Field{Key: "error", Value: err.Error()})
		return nil, nil
	}
	if len(subs) == 0 {
		return nil, nil
	}

	sub := subs[0]
	if err := p.ledger.UpdateProfile(ctx, userID, creditsync.ProfilePatch{
		SubscriptionID:     creditsync.String(sub.ID),
		SubscriptionStatus: creditsync.String(string(sub.Status)),
	}); err != nil {
		p.logger.Warn("failed to cache discovered subscription",
			creditsync.Field{Key: "user_id", Value: userID},
			creditsync.Field{Key: "error", Value: err.Error()})
	}
	return sub, nil
}

// cacheSubscriptionStatus writes the freshly observed status back so the
// cache converges even when Stripe state changed behind our back.
func (p *Provider) cacheSubscriptionStatus(ctx context.Context, userID string, sub *stripe.Subscription) {
	if err := p.ledger.UpdateProfile(ctx, userID, creditsync.ProfilePatch{
		SubscriptionStatus: creditsync.String(string(sub.Status)),
	}); err != nil {
		p.logger.Warn("failed to cache subscription status",
			creditsync.Field{Key: "user_id", Value: userID},
			creditsync.Field{Key: "error", Value: err.Error()})
	}
}

// HasFeature reports whether the user's plan unlocks the feature. The cached
// plan name answers immediately; otherwise the plan is resolved from Stripe
// and persisted for next time. Users without an active subscription have no
// features.
func (p *Provider) HasFeature(ctx context.Context, userID, feature string) (bool, error) {
	profile, err := p.ledger.Profile(ctx, userID)
	if err != nil {
		return false, err
	}

	if plan, ok := profile.PlanName.Get(); ok && plan != "" {
		return p.entitlements.HasFeature(plan, feature), nil
	}

	sub, err := p.ActiveSubscription(ctx, userID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	plan := p.resolvePlanName(ctx, sub)
	if plan == "" {
		return false, nil
	}

	if err := p.ledger.UpdateProfile(ctx, userID, creditsync.ProfilePatch{
		PlanName: creditsync.String(plan),
	}); err != nil {
		p.logger.Warn("failed to cache resolved plan",
			creditsync.Field{Key: "user_id", Value: userID},
			creditsync.Field{Key: "plan", Value: plan},
			creditsync.Field{Key: "error", Value: err.Error()})
	}
	return p.entitlements.HasFeature(plan, feature), nil
}

// EnsureCustomer returns the user's Stripe customer ID, creating the
// customer on first use. The created customer is tagged with the user ID so
// later webhooks can resolve ownership.
func (p *Provider) EnsureCustomer(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", creditsync.ErrInvalidUserID
	}

	profile, err := p.ledger.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	if customerID, ok := profile.CustomerID.Get(); ok && customerID != "" {
		return customerID, nil
	}

	start := time.Now()
	cust, err := p.client.CreateCustomer(ctx, email, userID)
	p.metrics.RecordAPICallDuration(providerName, "/v1/customers", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/customers", "error")
		return "", fmt.Errorf("failed to create customer for user %s: %w", userID, err)
	}
	p.metrics.RecordAPICall(providerName, "/v1/customers", "success")

	if err := p.ledger.UpdateProfile(ctx, userID, creditsync.ProfilePatch{
		CustomerID: creditsync.String(cust.ID),
	}); err != nil {
		return "", fmt.Errorf("failed to cache customer ID for user %s: %w", userID, err)
	}

	p.logger.Info("created billing customer",
		creditsync.Field{Key: "user_id", Value: userID},
		creditsync.Field{Key: "customer_id", Value: cust.ID})
	return cust.ID, nil
}

// SyncFromLifecycleEvent mirrors a subscription object from a lifecycle
// webhook into the profile cache. The subscription must carry the user ID in
// its metadata, or on its customer as a fallback.
func (p *Provider) SyncFromLifecycleEvent(ctx context.Context, sub *stripe.Subscription) error {
	userID, err := p.subscriptionUserID(ctx, sub)
	if err != nil {
		return err
	}

	patch := creditsync.ProfilePatch{
		SubscriptionID:     creditsync.String(sub.ID),
		SubscriptionStatus: creditsync.String(string(sub.Status)),
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		patch.CustomerID = creditsync.String(sub.Customer.ID)
	}

	plan := p.resolvePlanName(ctx, sub)
	if plan != "" {
		patch.PlanName = creditsync.String(plan)
		p.recordPlanChange(ctx, userID, plan)
	}

	if err := p.ledger.UpdateProfile(ctx, userID, patch); err != nil {
		return fmt.Errorf("failed to sync subscription %s for user %s: %w", sub.ID, userID, err)
	}

	p.logger.Info("synced subscription from lifecycle event",
		creditsync.Field{Key: "user_id", Value: userID},
		creditsync.Field{Key: "subscription_id", Value: sub.ID},
		creditsync.Field{Key: "status", Value: string(sub.Status)},
		creditsync.Field{Key: "plan", Value: plan})
	return nil
}

// subscriptionUserID extracts the owning user ID from a subscription,
// falling back to the customer's metadata.
func (p *Provider) subscriptionUserID(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if userID := sub.Metadata[metadataUserIDKey]; userID != "" {
		return userID, nil
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		cust, err := p.client.Customer(ctx, sub.Customer.ID)
		if err == nil && cust.Metadata[metadataUserIDKey] != "" {
			return cust.Metadata[metadataUserIDKey], nil
		}
	}
	return "", fmt.Errorf("subscription %s: %w", sub.ID, billing.ErrMissingIdentity)
}

// SyncUser forces a reconciliation of the user's cached profile from Stripe
// and returns the resolved plan name. Users without a customer or an active
// subscription resolve to an empty plan.
func (p *Provider) SyncUser(ctx context.Context, userID string) (string, error) {
	start := time.Now()
	plan, err := p.syncUser(ctx, userID)
	p.metrics.RecordUserSyncDuration(providerName, time.Since(start))
	if err != nil {
		p.metrics.RecordUserSync(providerName, "error")
		return "", err
	}
	p.metrics.RecordUserSync(providerName, "success")
	return plan, nil
}

func (p *Provider) syncUser(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", creditsync.ErrInvalidUserID
	}

	sub, err := p.ActiveSubscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", nil
	}

	plan := p.resolvePlanName(ctx, sub)
	patch := creditsync.ProfilePatch{
		SubscriptionID:     creditsync.String(sub.ID),
		SubscriptionStatus: creditsync.String(string(sub.Status)),
	}
	if plan != "" {
		patch.PlanName = creditsync.String(plan)
		p.recordPlanChange(ctx, userID, plan)
	}
	if err := p.ledger.UpdateProfile(ctx, userID, patch); err != nil {
		return "", fmt.Errorf("failed to persist sync for user %s: %w", userID, err)
	}
	return plan, nil
}

// SyncAll reconciles a batch of users with bounded concurrency. Intended for
// nightly reconciliation jobs. Individual sync failures cancel the batch.
func (p *Provider) SyncAll(ctx context.Context, userIDs []string, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, userID := range userIDs {
		g.Go(func() error {
			_, err := p.SyncUser(ctx, userID)
			return err
		})
	}
	return g.Wait()
}

// resolvePlanName derives a lowercase plan name for a subscription's first
// item: the price's plan_name metadata wins, then the product name. Returns
// "" when nothing resolves; resolution failures degrade rather than error.
func (p *Provider) resolvePlanName(ctx context.Context, sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item == nil || item.Price == nil {
		return ""
	}

	price := item.Price
	if name := price.Metadata[priceMetadataPlanKey]; name != "" {
		return strings.ToLower(strings.TrimSpace(name))
	}

	// Lifecycle-event payloads can carry the price unexpanded: no metadata
	// and no product reference. One price retrieve recovers both.
	if len(price.Metadata) == 0 && (price.Product == nil || price.Product.ID == "") && price.ID != "" {
		fetched, err := p.fetchPrice(ctx, price.ID)
		if err != nil {
			return ""
		}
		price = fetched
		if name := price.Metadata[priceMetadataPlanKey]; name != "" {
			return strings.ToLower(strings.TrimSpace(name))
		}
	}

	// The expanded price on a subscription carries only a product ID, so the
	// human-readable name needs one more call.
	if price.Product == nil || price.Product.ID == "" {
		return ""
	}
	if price.Product.Name != "" {
		return strings.ToLower(strings.TrimSpace(price.Product.Name))
	}

	start := time.Now()
	product, err := p.client.Product(ctx, price.Product.ID)
	p.metrics.RecordAPICallDuration(providerName, "/v1/products", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/products", "error")
		p.logger.Warn("failed to resolve product name for plan",
			creditsync.Field{Key: "product_id", Value: price.Product.ID},
			creditsync.Field{Key: "error", Value: err.Error()})
		return ""
	}
	p.metrics.RecordAPICall(providerName, "/v1/products", "success")
	return strings.ToLower(strings.TrimSpace(product.Name))
}

// recordPlanChange emits a plan-change metric when the cached plan differs
// from the newly resolved one.
func (p *Provider) recordPlanChange(ctx context.Context, userID, newPlan string) {
	profile, err := p.ledger.Profile(ctx, userID)
	if err != nil {
		return
	}
	oldPlan := profile.PlanName.OrZero()
	if oldPlan != newPlan {
		p.metrics.RecordPlanChange(providerName, oldPlan, newPlan)
	}
}

func (p *Provider) fetchPrice(ctx context.Context, id string) (*stripe.Price, error) {
	start := time.Now()
	price, err := p.client.Price(ctx, id)
	p.metrics.RecordAPICallDuration(providerName, "/v1/prices", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/prices", "error")
		p.logger.Warn("failed to retrieve price",
			creditsync.Field{Key: "price_id", Value: id},
			creditsync.Field{Key: "error", Value: err.Error()})
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/prices", "success")
	return price, nil
}

func (p *Provider) fetchSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	start := time.Now()
	sub, err := p.client.Subscription(ctx, id)
	p.metrics.RecordAPICallDuration(providerName, "/v1/subscriptions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "error")
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "success")
	return sub, nil
}

func (p *Provider) listActiveSubscriptions(ctx context.Context, customerID string) ([]*stripe.Subscription, error) {
	start := time.Now()
	subs, err := p.client.ActiveSubscriptions(ctx, customerID)
	p.metrics.RecordAPICallDuration(providerName, "/v1/subscriptions", time.Since(start))
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "error")
		return nil, err
	}
	p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "success")
	return subs, nil
}
