package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/contacts-manager/internal/model"
)

// contactSelect joins the owner so every read carries owner_name.
const contactSelect = `SELECT c.id, c.owner_id, u.name AS owner_name, c.name, c.email, c.phone, c.photo,
	c.created_at, c.updated_at
	FROM contacts c
	JOIN users u ON u.id = c.owner_id`

// ContactRepo encapsulates all database queries related to contacts.
type ContactRepo struct {
	db *sqlx.DB
}

func NewContactRepo(db *sqlx.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

// Create inserts a new contact.  ID and timestamps are assigned here; the
// stored row is read back so the caller receives owner_name as well.
func (r *ContactRepo) Create(ctx context.Context, c *model.Contact) error {
	now := time.Now().UTC()
	c.ID = uuid.NewString()
	c.CreatedAt, c.UpdatedAt = now, now

	const q = `INSERT INTO contacts (id, owner_id, name, email, phone, photo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, q,
		c.ID, c.OwnerID, c.Name, c.Email, c.Phone, c.Photo, c.CreatedAt, c.UpdatedAt); err != nil {
		return err
	}
	stored, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

// GetByID fetches a contact by id regardless of owner.  Ownership checks
// belong to the caller.
func (r *ContactRepo) GetByID(ctx context.Context, id string) (*model.Contact, error) {
	var c model.Contact
	if err := r.db.GetContext(ctx, &c, contactSelect+" WHERE c.id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Update writes the mutable fields of c and bumps updated_at.
func (r *ContactRepo) Update(ctx context.Context, c *model.Contact) error {
	c.UpdatedAt = time.Now().UTC()
	const q = `UPDATE contacts
		SET name = ?, email = ?, phone = ?, photo = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, c.Name, c.Email, c.Phone, c.Photo, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrContactNotFound)
}

// Delete removes a contact.  There is no soft delete.
func (r *ContactRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM contacts WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrContactNotFound)
}
