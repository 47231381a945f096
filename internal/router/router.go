// Package router assembles the Echo server: global middleware, the route
// table and the role each route group requires.
package router

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/config"
	"github.com/iliyamo/contacts-manager/internal/handler"
	"github.com/iliyamo/contacts-manager/internal/middleware"
)

// Deps are the collaborators the routes are wired to.  Redis may be nil,
// which disables rate limiting and response caching.
type Deps struct {
	Config   config.Config
	Log      *zap.Logger
	Redis    *redis.Client
	Verifier middleware.TokenVerifier
	Auth     *handler.AuthHandler
	Contacts *handler.ContactHandler
	Users    *handler.UserHandler
}

// New returns a configured Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = errorHandler(d.Log)

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.Config.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	// multipart overhead on top of the photo itself
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dK", d.Config.MaxUploadBytes/1024+1024)))

	RegisterRoutes(e, d.Config.UploadDir)
	RegisterAuth(e, d)
	RegisterContacts(e, d)
	RegisterUsers(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated routes: the health check and
// the stored photos.
func RegisterRoutes(e *echo.Echo, uploadDir string) {
	e.GET("/healthz", handler.Health)
	e.Static("/uploads", uploadDir)
}

// errorHandler renders errors that escape handlers (unknown routes, bad
// methods, body limit) in the same {"error": ...} shape as handler errors.
func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := http.StatusInternalServerError, "internal error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, echo.Map{"error": msg})
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
