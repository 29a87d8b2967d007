// Package gin provides Gin middleware for feature gating based on the
// billing profile's plan.
package gin

import (
	"context"
	"net/http"

	gongin "github.com/gin-gonic/gin"
)

// FeatureChecker reports whether a user's plan unlocks a feature. The Stripe
// provider implements this.
type FeatureChecker interface {
	HasFeature(ctx context.Context, userID, feature string) (bool, error)
}

// UserIDExtractor extracts the user ID from a Gin context.
// Return empty string if user is not authenticated.
type UserIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration.
type Config struct {
	// Checker evaluates feature access (required)
	Checker FeatureChecker

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// Feature is the feature name the gated routes require (required)
	Feature string

	// OnForbidden is called when the user's plan lacks the feature
	// If nil, returns 403 JSON
	OnForbidden func(c *gongin.Context)

	// OnUnauthorized is called when user is not authenticated
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// RequireFeature creates a Gin middleware that blocks requests from users
// whose plan does not include the feature.
func RequireFeature(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Checker == nil {
		panic("creditsync/gin: Config.Checker is required")
	}
	if cfg.GetUserID == nil {
		panic("creditsync/gin: Config.GetUserID is required")
	}
	if cfg.Feature == "" {
		panic("creditsync/gin: Config.Feature is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			c.Abort()
			return
		}

		ok, err := cfg.Checker.HasFeature(c.Request.Context(), userID, cfg.Feature)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gongin.H{"error": "internal error"})
			}
			c.Abort()
			return
		}
		if !ok {
			if cfg.OnForbidden != nil {
				cfg.OnForbidden(c)
			} else {
				c.AbortWithStatusJSON(http.StatusForbidden, gongin.H{
					"error":   "feature not available on current plan",
					"feature": cfg.Feature,
				})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header.
func FromHeader(headerName string) UserIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromContextKey returns a UserIDExtractor that gets user ID from Gin's
// key-value store (set by an auth middleware via c.Set).
func FromContextKey(key string) UserIDExtractor {
	return func(c *gongin.Context) string {
		if userID, ok := c.Get(key); ok {
			if s, ok := userID.(string); ok {
				return s
			}
		}
		return ""
	}
}
