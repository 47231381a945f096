package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-manager/internal/service"
)

// TokenVerifier resolves a bearer token to an identity.
type TokenVerifier interface {
	Verify(token string) (service.Identity, error)
}

// JWTAuth rejects requests without a valid bearer token and stores the
// resolved identity on the context for IdentityFrom.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, found := strings.Cut(auth, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Missing bearer token"})
			}
			id, err := v.Verify(strings.TrimSpace(raw))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid token"})
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}
