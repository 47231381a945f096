package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/contacts-manager/internal/model"
	"github.com/iliyamo/contacts-manager/internal/repository"
)

// Listing defaults and bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ContactInput carries the fields of a new contact.  Empty optional fields
// are stored as NULL.
type ContactInput struct {
	Name  string
	Email *string
	Phone *string
	Photo *string
}

// ContactPatch is a partial update.  Nil fields are left unchanged; an empty
// Email or Phone clears the stored value.
type ContactPatch struct {
	Name  *string
	Email *string
	Phone *string
	Photo *string
}

// ListOptions controls FindAllForUser.  Zero values select the defaults:
// page 1, DefaultPageSize rows, newest first.
type ListOptions struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

func (o *ListOptions) normalize() error {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = DefaultPageSize
	}
	if o.Limit > MaxPageSize {
		o.Limit = MaxPageSize
	}
	o.Search = strings.TrimSpace(o.Search)
	if o.SortBy == "" {
		o.SortBy = "createdAt"
	}
	if _, ok := repository.ContactSortColumn(o.SortBy); !ok {
		return invalid("cannot sort by %q", o.SortBy)
	}
	switch strings.ToUpper(o.SortOrder) {
	case "":
		o.SortOrder = "DESC"
	case "ASC", "DESC":
		o.SortOrder = strings.ToUpper(o.SortOrder)
	default:
		return invalid("sortOrder must be ASC or DESC")
	}
	return nil
}

// ContactService manages contacts on behalf of an authenticated caller.
// Non-admin callers only ever see and touch their own contacts.
type ContactService struct {
	contacts *repository.ContactRepo
	users    *repository.UserRepo
	events   EventPublisher
	log      *zap.Logger
}

func NewContactService(contacts *repository.ContactRepo, users *repository.UserRepo, events EventPublisher, log *zap.Logger) *ContactService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ContactService{contacts: contacts, users: users, events: events, log: log}
}

// Create stores a new contact owned by ownerID.  The actor recorded on the
// event is the owner.
func (s *ContactService) Create(ctx context.Context, ownerID string, in ContactInput) (*model.Contact, error) {
	ctx, span := tracer.Start(ctx, "ContactService.Create")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, notFound("Owner not found")
		}
		return nil, err
	}

	c := &model.Contact{
		OwnerID: owner.ID,
		Name:    name,
		Email:   optional(in.Email),
		Phone:   optional(in.Phone),
		Photo:   optional(in.Photo),
	}
	if err := s.contacts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	span.SetAttributes(attribute.String("contact.id", c.ID))

	emit(ctx, s.events, s.log, Event{
		Type:      EventContactCreated,
		ActorID:   owner.ID,
		ActorRole: string(owner.Role),
		SubjectID: c.ID,
		OwnerID:   owner.ID,
	})
	return c, nil
}

// FindAllForUser lists the contacts visible to who: their own, or every
// contact for an admin.
func (s *ContactService) FindAllForUser(ctx context.Context, who Identity, opts ListOptions) (model.Page[model.Contact], error) {
	ctx, span := tracer.Start(ctx, "ContactService.FindAllForUser")
	defer span.End()

	if err := opts.normalize(); err != nil {
		return model.Page[model.Contact]{}, err
	}
	q := repository.ContactSearchQuery{
		Search: opts.Search,
		SortBy: opts.SortBy,
		Desc:   opts.SortOrder == "DESC",
		Limit:  opts.Limit,
		Offset: (opts.Page - 1) * opts.Limit,
	}
	if !who.IsAdmin() {
		q.OwnerID = who.ID
	}
	rows, total, err := s.contacts.Search(ctx, q)
	if err != nil {
		return model.Page[model.Contact]{}, fmt.Errorf("search contacts: %w", err)
	}
	span.SetAttributes(attribute.Int64("contacts.total", total))
	return model.NewPage(rows, total, opts.Page, opts.Limit), nil
}

// FindOneByID returns the contact if who may access it.
func (s *ContactService) FindOneByID(ctx context.Context, who Identity, id string) (*model.Contact, error) {
	c, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return nil, notFound("Contact not found")
		}
		return nil, err
	}
	if !who.IsAdmin() && c.OwnerID != who.ID {
		return nil, forbidden("Not allowed to access this contact")
	}
	return c, nil
}

// Update applies patch to the contact.  The photo only changes when
// patch.Photo is set.
func (s *ContactService) Update(ctx context.Context, who Identity, id string, patch ContactPatch) (*model.Contact, error) {
	ctx, span := tracer.Start(ctx, "ContactService.Update")
	defer span.End()

	c, err := s.FindOneByID(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, invalid("name must not be empty")
		}
		c.Name = name
	}
	if patch.Email != nil {
		c.Email = optional(patch.Email)
	}
	if patch.Phone != nil {
		c.Phone = optional(patch.Phone)
	}
	if patch.Photo != nil {
		c.Photo = optional(patch.Photo)
	}

	if err := s.contacts.Update(ctx, c); err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return nil, notFound("Contact not found")
		}
		return nil, fmt.Errorf("update contact: %w", err)
	}
	emit(ctx, s.events, s.log, actorEvent(EventContactUpdated, who, c.ID, c.OwnerID))
	return c, nil
}

// Remove deletes the contact.  The photo file is kept.
func (s *ContactService) Remove(ctx context.Context, who Identity, id string) error {
	ctx, span := tracer.Start(ctx, "ContactService.Remove")
	defer span.End()

	c, err := s.FindOneByID(ctx, who, id)
	if err != nil {
		return err
	}
	if err := s.contacts.Delete(ctx, c.ID); err != nil {
		if errors.Is(err, repository.ErrContactNotFound) {
			return notFound("Contact not found")
		}
		return fmt.Errorf("delete contact: %w", err)
	}
	emit(ctx, s.events, s.log, actorEvent(EventContactDeleted, who, c.ID, c.OwnerID))
	return nil
}

// optional trims p and maps blank values to nil.
func optional(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
