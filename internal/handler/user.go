package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/model"
	"github.com/iliyamo/contacts-manager/internal/service"
)

// UserHandler serves the admin-only /v1/users routes.
type UserHandler struct {
	Users *service.UserService
	Log   *zap.Logger
}

func NewUserHandler(users *service.UserService, log *zap.Logger) *UserHandler {
	return &UserHandler{Users: users, Log: log}
}

type roleReq struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

func (h *UserHandler) List(c echo.Context) error {
	page, limit, err := pageParams(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Users.ListUsers(ctx, page, limit)
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *UserHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.FindByID(ctx, c.Param("id"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// UpdateRole handles PUT /v1/users/:id/role.
func (h *UserHandler) UpdateRole(c echo.Context) error {
	who, _ := identity(c)
	var req roleReq
	if err := bindAndValidate(c, &req); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	u, err := h.Users.UpdateUserRole(ctx, who, c.Param("id"), model.Role(req.Role))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete handles DELETE /v1/users/:id.  The user's contacts are removed
// with it.
func (h *UserHandler) Delete(c echo.Context) error {
	who, _ := identity(c)
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Users.DeleteUser(ctx, who, c.Param("id")); err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
