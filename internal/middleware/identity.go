package middleware

// identity.go holds helpers shared across middleware files for reading the
// identity JWTAuth stored in the Echo context.

import "github.com/labstack/echo/v4"

// currentUsername returns the authenticated caller's username, or "anon"
// when the request passed through no authentication middleware.
func currentUsername(c echo.Context) string {
	if s, ok := c.Get("username").(string); ok && s != "" {
		return s
	}
	return "anon"
}
