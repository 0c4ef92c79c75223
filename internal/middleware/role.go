package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole enforces that the authenticated caller has one of the given
// roles.  It assumes JWTAuth already stored the "role" claim in the
// context; anything else is rejected with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// CallerEmail returns the authenticated caller's email, or "" when the
// request is unauthenticated.
func CallerEmail(c echo.Context) string {
	if v, ok := c.Get("email").(string); ok {
		return v
	}
	return ""
}
