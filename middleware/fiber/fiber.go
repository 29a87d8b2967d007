// Package fiber provides Fiber middleware for feature gating based on the
// billing profile's plan.
package fiber

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// FeatureChecker reports whether a user's plan unlocks a feature. The Stripe
// provider implements this.
type FeatureChecker interface {
	HasFeature(ctx context.Context, userID, feature string) (bool, error)
}

// UserIDExtractor extracts the user ID from a Fiber context.
// Return empty string if user is not authenticated.
type UserIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration.
type Config struct {
	// Checker evaluates feature access (required)
	Checker FeatureChecker

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// Feature is the feature name the gated routes require (required)
	Feature string

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnForbidden is called when the user's plan lacks the feature
	// If nil, returns 403 JSON
	OnForbidden func(c *fiber.Ctx) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// RequireFeature creates a Fiber middleware that blocks requests from users
// whose plan does not include the feature.
func RequireFeature(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Checker == nil {
		panic("creditsync/fiber: Config.Checker is required")
	}
	if cfg.GetUserID == nil {
		panic("creditsync/fiber: Config.GetUserID is required")
	}
	if cfg.Feature == "" {
		panic("creditsync/fiber: Config.Feature is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return defaultUnauthorized(c)
		}

		// Fiber uses fasthttp, so c.UserContext() carries the context.Context.
		ok, err := cfg.Checker.HasFeature(c.UserContext(), userID, cfg.Feature)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return defaultError(c, err)
		}
		if !ok {
			if cfg.OnForbidden != nil {
				return cfg.OnForbidden(c)
			}
			return defaultForbidden(c, cfg.Feature)
		}

		return c.Next()
	}
}

// Default error handlers

func defaultUnauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
}

func defaultForbidden(c *fiber.Ctx, feature string) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"error":   "feature not available on current plan",
		"feature": feature,
	})
}

func defaultError(c *fiber.Ctx, _ error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Fiber context
// values (Locals), set by an auth middleware via c.Locals.
func FromContext(key string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		if val := c.Locals(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
// Fiber v2 uses c.Get() for headers (not c.GetHeader())
func FromHeader(headerName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
