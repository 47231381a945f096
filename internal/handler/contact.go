package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/service"
	"github.com/iliyamo/contacts-manager/internal/upload"
)

// ContactHandler serves /v1/contacts.  Create and update accept
// multipart/form-data with an optional "photo" file; update also accepts a
// JSON body without a photo.
type ContactHandler struct {
	Contacts  *service.ContactService
	Photos    *upload.PhotoStore
	Validator *Validator
	Log       *zap.Logger
}

func NewContactHandler(contacts *service.ContactService, photos *upload.PhotoStore, v *Validator, log *zap.Logger) *ContactHandler {
	return &ContactHandler{Contacts: contacts, Photos: photos, Validator: v, Log: log}
}

// contactFields holds the submitted text fields.  A nil field was absent
// from the request.
type contactFields struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func (h *ContactHandler) readFields(c echo.Context) (contactFields, error) {
	var f contactFields
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := c.Bind(&f); err != nil {
			return f, errors.New("invalid request body")
		}
	} else {
		form, err := c.FormParams()
		if err != nil {
			return f, errors.New("invalid form data")
		}
		f.Name = formValue(form, "name")
		f.Email = formValue(form, "email")
		f.Phone = formValue(form, "phone")
	}
	if f.Email != nil && strings.TrimSpace(*f.Email) != "" {
		if err := h.Validator.Var("email", strings.TrimSpace(*f.Email), "email"); err != nil {
			return f, err
		}
	}
	for _, l := range []struct {
		field string
		value *string
		tag   string
	}{
		{"name", f.Name, "max=255"},
		{"email", f.Email, "max=255"},
		{"phone", f.Phone, "max=64"},
	} {
		if l.value == nil {
			continue
		}
		if err := h.Validator.Var(l.field, strings.TrimSpace(*l.value), l.tag); err != nil {
			return f, err
		}
	}
	return f, nil
}

func formValue(form map[string][]string, key string) *string {
	vals, ok := form[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}

// savePhoto stores the "photo" file when one was uploaded.  The returned
// name is nil when there was none.
func (h *ContactHandler) savePhoto(c echo.Context) (*string, error) {
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, nil
	}
	fh, err := c.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	name, err := h.Photos.Save(fh)
	if err != nil {
		return nil, err
	}
	return &name, nil
}

// discardPhoto removes an upload the failed request would have referenced.
func (h *ContactHandler) discardPhoto(name *string) {
	if name == nil {
		return
	}
	if err := h.Photos.Remove(*name); err != nil {
		h.Log.Warn("remove orphaned photo", zap.String("photo", *name), zap.Error(err))
	}
}

func (h *ContactHandler) photoError(c echo.Context, err error) error {
	if errors.Is(err, upload.ErrInvalidImage) {
		return errorJSON(c, http.StatusBadRequest, "photo must be a JPEG, PNG or GIF image within the size limit")
	}
	return respond(c, h.Log, err)
}

// Create handles POST /v1/contacts.
func (h *ContactHandler) Create(c echo.Context) error {
	who, ok := identity(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	f, err := h.readFields(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if f.Name == nil || strings.TrimSpace(*f.Name) == "" {
		return errorJSON(c, http.StatusBadRequest, "name is required")
	}
	photo, err := h.savePhoto(c)
	if err != nil {
		return h.photoError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	contact, err := h.Contacts.Create(ctx, who.ID, service.ContactInput{
		Name:  *f.Name,
		Email: f.Email,
		Phone: f.Phone,
		Photo: photo,
	})
	if err != nil {
		h.discardPhoto(photo)
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, contact)
}

// List handles GET /v1/contacts.
func (h *ContactHandler) List(c echo.Context) error {
	who, ok := identity(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	page, limit, err := pageParams(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := h.Contacts.FindAllForUser(ctx, who, service.ListOptions{
		Page:      page,
		Limit:     limit,
		Search:    c.QueryParam("search"),
		SortBy:    strings.TrimSpace(c.QueryParam("sortBy")),
		SortOrder: strings.TrimSpace(c.QueryParam("sortOrder")),
	})
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Get handles GET /v1/contacts/:id.
func (h *ContactHandler) Get(c echo.Context) error {
	who, ok := identity(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	contact, err := h.Contacts.FindOneByID(ctx, who, c.Param("id"))
	if err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, contact)
}

// Update handles PUT /v1/contacts/:id.  Fields missing from the request
// keep their stored values.
func (h *ContactHandler) Update(c echo.Context) error {
	who, ok := identity(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	f, err := h.readFields(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	photo, err := h.savePhoto(c)
	if err != nil {
		return h.photoError(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	contact, err := h.Contacts.Update(ctx, who, c.Param("id"), service.ContactPatch{
		Name:  f.Name,
		Email: f.Email,
		Phone: f.Phone,
		Photo: photo,
	})
	if err != nil {
		h.discardPhoto(photo)
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, contact)
}

// Delete handles DELETE /v1/contacts/:id.
func (h *ContactHandler) Delete(c echo.Context) error {
	who, ok := identity(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Contacts.Remove(ctx, who, c.Param("id")); err != nil {
		return respond(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// pageParams reads ?page= and ?limit=.  Missing values are returned as 0 so
// the service applies its defaults.
func pageParams(c echo.Context) (page, limit int, err error) {
	if page, err = positiveInt(c.QueryParam("page")); err != nil {
		return 0, 0, errors.New("page must be a positive integer")
	}
	if limit, err = positiveInt(c.QueryParam("limit")); err != nil {
		return 0, 0, errors.New("limit must be a positive integer")
	}
	return page, limit, nil
}

func positiveInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}
