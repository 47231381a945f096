package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/contacts-manager/internal/middleware"
	"github.com/iliyamo/contacts-manager/internal/model"
)

// RegisterContacts registers /v1/contacts for users and admins.  Ownership
// is enforced by the contact service, not here.
func RegisterContacts(e *echo.Echo, d Deps) {
	g := e.Group(
		"/v1/contacts",
		middleware.JWTAuth(d.Verifier),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
		middleware.ResponseCache(d.Config.Cache, d.Redis, d.Log),
	)
	g.POST("", d.Contacts.Create)
	g.GET("", d.Contacts.List)
	g.GET("/:id", d.Contacts.Get)
	g.PUT("/:id", d.Contacts.Update)
	g.DELETE("/:id", d.Contacts.Delete)
}
