package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/contacts-manager/internal/model"
)

const userColumns = "id, email, name, password_hash, role, created_at, updated_at"

// UserRepo persists rows of the `users` table.
type UserRepo struct{ db *sqlx.DB }

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts u, assigning its ID and timestamps.  The email is stored
// trimmed but otherwise as given.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	now := time.Now().UTC()
	u.ID = uuid.NewString()
	u.Email = strings.TrimSpace(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?,?,?,?,?,?,?)",
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// GetByEmail fetches a user by trimmed email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", strings.TrimSpace(email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// List returns one page of users, newest first, plus the total user count.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]model.User, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM users"); err != nil {
		return nil, 0, err
	}
	out := make([]model.User, 0, limit)
	err := r.db.SelectContext(ctx, &out,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// UpdateRole sets the role of a user.  It returns ErrUserNotFound when no
// row matches.
func (r *UserRepo) UpdateRole(ctx context.Context, id string, role model.Role) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE users SET role = ?, updated_at = ? WHERE id = ?",
		role, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

// Delete removes a user; owned contacts go with it through the
// ON DELETE CASCADE foreign key.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrUserNotFound)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
