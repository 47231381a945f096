package model

import "time"

// Contact is a row of the `contacts` table.  Every contact has exactly one
// owner; Email, Phone and Photo are optional and nil when unset.  Photo holds
// the stored filename, served under /uploads.
//
// OwnerName is not a column of `contacts`: repositories fill it from the
// owning user so responses can show who a contact belongs to.
type Contact struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"ownerId"`
	OwnerName string    `db:"owner_name" json:"ownerName"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email"`
	Phone     *string   `db:"phone" json:"phone"`
	Photo     *string   `db:"photo" json:"photo"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"totalPages"`
}

// NewPage assembles a Page, computing TotalPages as ceil(total/limit).
func NewPage[T any](data []T, total int64, page, limit int) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return Page[T]{Data: data, Total: total, Page: page, Limit: limit, TotalPages: pages}
}
