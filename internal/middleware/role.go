package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-manager/internal/model"
)

// RequireRole admits authenticated callers whose role is in roles.  With no
// roles every authenticated caller is admitted.  It must run after JWTAuth.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			if len(allowed) > 0 && !allowed[id.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Insufficient role"})
			}
			return next(c)
		}
	}
}
