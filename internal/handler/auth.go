package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/service"
)

// AuthHandler serves /v1/auth.
type AuthHandler struct {
	Auth *service.AuthService
	Log  *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Log: log}
}

type registerReq struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Register creates an account and returns a token for it.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := bindAndValidate(c, &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Login exchanges credentials for a token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bindAndValidate(c, &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(c echo.Context) error {
	who, ok := identity(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	me, err := h.Auth.Me(ctx, who)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, me)
}
