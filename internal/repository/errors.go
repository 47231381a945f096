// Package repository holds the data access layer.  Each repository wraps the
// shared *sqlx.DB pool and returns the sentinel errors below so that the
// service layer can tell missing rows and unique-key violations apart from
// infrastructure failures.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrContactNotFound is returned when no contact matches the lookup.
var ErrContactNotFound = errors.New("contact not found")

// ErrEmailExists is returned when inserting a user whose email is taken.
var ErrEmailExists = errors.New("email already exists")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique constraint violation on
// either supported driver.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
