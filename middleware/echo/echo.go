// Package echo provides Echo middleware for feature gating based on the
// billing profile's plan.
package echo

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// FeatureChecker reports whether a user's plan unlocks a feature. The Stripe
// provider implements this.
type FeatureChecker interface {
	HasFeature(ctx context.Context, userID, feature string) (bool, error)
}

// UserIDExtractor extracts the user ID from an Echo context.
// Return empty string if user is not authenticated.
type UserIDExtractor func(c echo.Context) string

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
	OnUnauthorized func(c echo.Context) error

	// OnForbidden is called when the user's plan lacks the feature
	// If nil, returns 403 JSON
	OnForbidden func(c echo.Context) error

	// OnError is called when an internal error occurs
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// RequireFeature creates an Echo middleware that blocks requests from users
// whose plan does not include the feature.
func RequireFeature(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Checker == nil {
		panic("creditsync/echo: Config.Checker is required")
	}
	if cfg.GetUserID == nil {
		panic("creditsync/echo: Config.GetUserID is required")
	}
	if cfg.Feature == "" {
		panic("creditsync/echo: Config.Feature is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			ok, err := cfg.Checker.HasFeature(c.Request().Context(), userID, cfg.Feature)
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

			return next(c)
		}
	}
}

// Default error handlers

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
}

func defaultForbidden(c echo.Context, feature string) error {
	return c.JSON(http.StatusForbidden, map[string]string{
		"error":   "feature not available on current plan",
		"feature": feature,
	})
}

func defaultError(c echo.Context, _ error) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
}

// Convenience extractors for User ID

// FromContext returns a UserIDExtractor that gets user ID from Echo context
// values, set by an auth middleware via c.Set.
func FromContext(key string) UserIDExtractor {
	return func(c echo.Context) string {
		if val := c.Get(key); val != nil {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns a UserIDExtractor that gets user ID from a header
func FromHeader(headerName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns a UserIDExtractor that gets user ID from a route parameter
func FromParam(paramName string) UserIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
