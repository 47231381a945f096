package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-manager/internal/middleware"
	"github.com/iliyamo/contacts-manager/internal/model"
)

// RegisterUsers registers the admin-only /v1/users routes.
func RegisterUsers(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/users",
		middleware.JWTAuth(d.Verifier),
		middleware.RequireRole(model.RoleAdmin),
		middleware.ResponseCache(d.Config.Cache, d.Redis, d.Log),
	)
	g.GET("", d.Users.List)
	g.GET("/:id", d.Users.Get)
	g.PUT("/:id/role", d.Users.UpdateRole)
	g.DELETE("/:id", d.Users.Delete)
}
