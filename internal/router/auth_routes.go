package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-manager/internal/middleware"
)

// RegisterAuth registers /v1/auth.  Register and login are rate limited per
// client; /me only needs a valid token.  A new account shows up in the
// cached user listing, so registration invalidates the response cache.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth", middleware.RateLimit(d.Config.RateLimit, d.Redis, d.Log))
	g.POST("/register", d.Auth.Register, middleware.InvalidateCache(d.Config.Cache, d.Redis, d.Log))
	g.POST("/login", d.Auth.Login)

	g.GET("/me", d.Auth.Me,
		middleware.JWTAuth(d.Verifier),
		middleware.RequireRole(),
	)
}
