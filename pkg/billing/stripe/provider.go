// Package stripe implements the billing.Provider interface for Stripe.
//
// The provider keeps the local billing-profile cache in sync with Stripe via
// webhooks and on-demand reconciliation, and converts paid invoices into
// credit-ledger writes. Stripe stays authoritative for subscription state;
// the ledger is authoritative for the credit balance.
package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/creditsync/pkg/billing"
	"github.com/mihaimyh/creditsync/pkg/billing/internal"
	"github.com/mihaimyh/creditsync/pkg/creditsync"
)

const (
	providerName = "stripe"

	// metadataUserIDKey is the metadata key carrying the internal user ID on
	// customers, subscriptions, and checkout sessions.
	metadataUserIDKey = "user_id"

	// priceMetadataCreditsKey is the price-metadata key holding the credit
	// quantity a paid billing period grants.
	priceMetadataCreditsKey = "credits"

	// priceMetadataPlanKey optionally overrides the plan name on a price,
	// taking precedence over the product name.
	priceMetadataPlanKey = "plan_name"

	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100

	maxWebhookBodyBytes = 256 * 1024
)

// Billing reasons Stripe attaches to invoices. A period-start invoice
// (cycle or create) resets the balance; anything else tops it up.
const (
	billingReasonCycle  = "subscription_cycle"
	billingReasonCreate = "subscription_create"
	billingReasonUpdate = "subscription_update"
	billingReasonManual = "manual"
)

// Config extends billing.Config with Stripe-specific options.
type Config struct {
	billing.Config // Base config (Ledger, Events, PlanFeatures, etc.)

	// Stripe-specific. Fall back to the base config's APIKey and
	// WebhookSecret when empty.
	StripeAPIKey        string
	StripeWebhookSecret string

	// Client overrides the Stripe-backed API client. Intended for tests and
	// custom transports; when set, StripeAPIKey is not required.
	Client Client
}

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	ledger        *creditsync.Ledger
	events        creditsync.EventTracker
	entitlements  *creditsync.Entitlements
	client        Client
	httpClient    *http.Client
	rateLimiter   *internal.RateLimiter
	webhookSecret string
	logger        creditsync.Logger
	metrics       billing.Metrics
	callback      func(ctx context.Context, event billing.WebhookEvent) error
}

// NewProvider creates a new Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Ledger == nil {
		return nil, fmt.Errorf("%w: Ledger is required", billing.ErrProviderNotConfigured)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	client := config.Client
	if client == nil {
		apiKey := strings.TrimSpace(config.StripeAPIKey)
		if apiKey == "" {
			apiKey = strings.TrimSpace(config.APIKey)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: StripeAPIKey is required", billing.ErrProviderNotConfigured)
		}
		client = NewAPIClient(stripe.NewClient(apiKey))
	}

	webhookSecret := strings.TrimSpace(config.StripeWebhookSecret)
	if webhookSecret == "" {
		webhookSecret = strings.TrimSpace(config.WebhookSecret)
	}

	events := config.Events
	if events == nil {
		events = newLocalEventTracker()
	}

	logger := config.Logger
	if logger == nil {
		logger = &creditsync.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		ledger:        config.Ledger,
		events:        events,
		entitlements:  creditsync.NewEntitlements(config.PlanFeatures),
		client:        client,
		httpClient:    httpClient,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: webhookSecret,
		logger:        logger,
		metrics:       metrics,
		callback:      config.WebhookCallback,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks, wrapped with
// per-IP rate limiting.
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// Entitlements exposes the plan-to-feature mapping the provider was
// configured with.
func (p *Provider) Entitlements() *creditsync.Entitlements {
	return p.entitlements
}

// localEventTracker is the process-local fallback EventTracker used when no
// durable tracker is configured. It does not survive restarts and is not
// shared across instances; production deployments should use one of the
// storage backends.
type localEventTracker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newLocalEventTracker() *localEventTracker {
	return &localEventTracker{seen: make(map[string]struct{})}
}

func (t *localEventTracker) IsProcessed(_ context.Context, eventID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.seen[eventID]
	return ok, nil
}

func (t *localEventTracker) MarkProcessed(_ context.Context, eventID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[eventID] = struct{}{}
	return nil
}
