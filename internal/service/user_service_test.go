package service

import (
	"context"
	"testing"

	"github.com/iliyamo/contacts-manager/internal/model"
)

func TestListUsersNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ann", "ann@example.com")
	f.register(t, "Bob", "bob@example.com")
	f.register(t, "Cid", "cid@example.com")

	page, err := f.users.ListUsers(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Data) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Data[0].CreatedAt.Before(page.Data[1].CreatedAt) {
		t.Fatalf("expected newest first, got %v then %v", page.Data[0].CreatedAt, page.Data[1].CreatedAt)
	}
}

func TestUpdateUserRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	ann := f.register(t, "Ann", "ann@example.com")

	u, err := f.users.UpdateUserRole(ctx, admin, ann.ID, model.RoleAdmin)
	if err != nil {
		t.Fatalf("update role: %v", err)
	}
	if u.Role != model.RoleAdmin {
		t.Fatalf("expected admin, got %s", u.Role)
	}

	_, err = f.users.UpdateUserRole(ctx, admin, ann.ID, model.Role("root"))
	expectKind(t, err, ErrValidation, "")

	_, err = f.users.UpdateUserRole(ctx, admin, "missing", model.RoleUser)
	expectKind(t, err, ErrNotFound, "User not found")
}

func TestDeleteUserCascadesContacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	ann := f.register(t, "Ann", "ann@example.com")
	f.create(t, ann, "Jordan", nil)
	f.create(t, ann, "Sam", nil)

	if err := f.users.DeleteUser(ctx, admin, ann.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := f.countRows(t, "contacts"); n != 0 {
		t.Fatalf("expected contacts to cascade, %d left", n)
	}
	_, err := f.users.FindByID(ctx, ann.ID)
	expectKind(t, err, ErrNotFound, "User not found")

	err = f.users.DeleteUser(ctx, admin, ann.ID)
	expectKind(t, err, ErrNotFound, "")
}
