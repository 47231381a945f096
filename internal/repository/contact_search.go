package repository

import (
	"context"
	"strings"

	"github.com/iliyamo/contacts-manager/internal/model"
)

// contactSortColumns whitelists the fields a listing may be ordered by.
// Both the JSON spelling and the column spelling are accepted.
var contactSortColumns = map[string]string{
	"name":       "c.name",
	"email":      "c.email",
	"phone":      "c.phone",
	"createdAt":  "c.created_at",
	"created_at": "c.created_at",
	"updatedAt":  "c.updated_at",
	"updated_at": "c.updated_at",
}

// ContactSortColumn maps a sortable field name to its column.  ok is false
// for fields outside the whitelist.
func ContactSortColumn(field string) (column string, ok bool) {
	column, ok = contactSortColumns[field]
	return column, ok
}

// ContactSearchQuery defines scope, filters, ordering and pagination for
// listing contacts.  An empty OwnerID means every owner.
type ContactSearchQuery struct {
	OwnerID string
	Search  string
	SortBy  string // key of contactSortColumns; unknown values fall back to created_at
	Desc    bool
	Limit   int
	Offset  int
}

// Search returns the requested page and the number of rows matching the
// scope and search filters, ignoring pagination.
func (r *ContactRepo) Search(ctx context.Context, q ContactSearchQuery) ([]model.Contact, int64, error) {
	where := []string{}
	args := []any{}

	if q.OwnerID != "" {
		where = append(where, "c.owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Search)) + "%"
		where = append(where, "(LOWER(c.name) LIKE ? ESCAPE '!' OR LOWER(c.email) LIKE ? ESCAPE '!')")
		args = append(args, pattern, pattern)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM contacts c WHERE "+cond, args...); err != nil {
		return nil, 0, err
	}

	column, ok := ContactSortColumn(q.SortBy)
	if !ok {
		column = "c.created_at"
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}

	dataSQL := contactSelect + `
		WHERE ` + cond + `
		ORDER BY ` + column + ` ` + dir + `, c.id ASC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), q.Limit, q.Offset)

	out := make([]model.Contact, 0, q.Limit)
	if err := r.db.SelectContext(ctx, &out, dataSQL, argsData...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// escapeLike makes s match literally inside a LIKE pattern using '!' as the
// escape character, which both MySQL and SQLite accept without quoting rules.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
