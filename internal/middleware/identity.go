package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-manager/internal/service"
)

const identityKey = "identity"

// IdentityFrom returns the caller resolved by JWTAuth.
func IdentityFrom(c echo.Context) (service.Identity, bool) {
	id, ok := c.Get(identityKey).(service.Identity)
	return id, ok
}

// userID returns the caller's id, or "guest" before authentication.
func userID(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok && id.ID != "" {
		return id.ID
	}
	return "guest"
}
