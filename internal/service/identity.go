package service

import "github.com/iliyamo/contacts-manager/internal/model"

// Identity is the authenticated caller.  It is resolved once by the auth
// middleware and passed by value into every scoped operation.
type Identity struct {
	ID   string
	Role model.Role
}

// IsAdmin reports whether the caller may see and modify every contact.
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }
