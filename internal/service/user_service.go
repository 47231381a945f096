package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/model"
	"github.com/iliyamo/contacts-manager/internal/repository"
)

// UserService holds the admin-only account operations.  Route guards keep
// non-admins out, so the methods do not check the caller's role again; the
// caller identity is only recorded on events.
type UserService struct {
	users  *repository.UserRepo
	events EventPublisher
	log    *zap.Logger
}

func NewUserService(users *repository.UserRepo, events EventPublisher, log *zap.Logger) *UserService {
	if events == nil {
		events = NopPublisher{}
	}
	return &UserService{users: users, events: events, log: log}
}

// ListUsers returns one page of accounts, newest first.
func (s *UserService) ListUsers(ctx context.Context, page, limit int) (model.Page[model.User], error) {
	ctx, span := tracer.Start(ctx, "UserService.ListUsers")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	rows, total, err := s.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return model.Page[model.User]{}, fmt.Errorf("list users: %w", err)
	}
	return model.NewPage(rows, total, page, limit), nil
}

func (s *UserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound("User not found")
		}
		return nil, err
	}
	return u, nil
}

// UpdateUserRole changes the role of user id and returns the updated user.
func (s *UserService) UpdateUserRole(ctx context.Context, actor Identity, id string, role model.Role) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "UserService.UpdateUserRole")
	defer span.End()

	if !role.Valid() {
		return nil, invalid("role must be one of user, admin")
	}
	if err := s.users.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound("User not found")
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	emit(ctx, s.events, s.log, actorEvent(EventUserRoleChanged, actor, u.ID, ""))
	return u, nil
}

// DeleteUser removes the account and, through the foreign key, its contacts.
func (s *UserService) DeleteUser(ctx context.Context, actor Identity, id string) error {
	ctx, span := tracer.Start(ctx, "UserService.DeleteUser")
	defer span.End()

	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return notFound("User not found")
		}
		return fmt.Errorf("delete user: %w", err)
	}
	emit(ctx, s.events, s.log, actorEvent(EventUserDeleted, actor, id, ""))
	return nil
}
