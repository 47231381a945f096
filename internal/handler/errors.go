package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/middleware"
	"github.com/iliyamo/contacts-manager/internal/service"
)

// requestTimeout bounds the store work done for one request.
const requestTimeout = 5 * time.Second

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"error": msg})
}

// respond maps service errors to their status codes.  Anything else is
// logged and reported as a 500 without details.
func respond(c echo.Context, log *zap.Logger, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		return errorJSON(c, statusOf(se.Kind), se.Message)
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return errorJSON(c, http.StatusInternalServerError, "internal error")
}

func statusOf(kind error) int {
	switch {
	case errors.Is(kind, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(kind, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(kind, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(kind, service.ErrValidation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// bindAndValidate decodes the body into dst and runs the echo validator.
// The returned error text is safe to show to clients.
func bindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errors.New("invalid request body")
	}
	return c.Validate(dst)
}

// identity returns the authenticated caller; routes without JWTAuth never
// reach handlers that call it.
func identity(c echo.Context) (service.Identity, bool) {
	return middleware.IdentityFrom(c)
}
