// Package middleware contains reusable HTTP middleware: token
// authentication, role gating, Redis rate limiting and response caching.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-inventory/internal/config"
	"github.com/iliyamo/lab-inventory/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer session token
// and injects the subject and role claims into the request context under
// "username" and "roles". Protected handlers read the caller's identity via
// c.Get("username") and c.Get("roles").
//
// When cfg.AuthDisabled is set, every request is treated as the configured
// dev identity and the Authorization header is ignored entirely.
func JWTAuth(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.AuthDisabled {
				c.Set("username", cfg.DevUser)
				c.Set("roles", append([]string(nil), cfg.DevRoles...))
				return next(c)
			}

			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := utils.ParseSessionToken(cfg.JWTSecret, raw)
			if err != nil {
				// Expired, malformed and tampered tokens all look the same.
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set("username", claims.Subject)
			c.Set("roles", claims.Roles)
			return next(c)
		}
	}
}
