package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func countRows(t *testing.T, db *sqlx.DB, query string) int {
	t.Helper()
	var n int
	if err := db.Get(&n, query); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"users", "contacts"} {
		n := countRows(t, db, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='"+table+"'")
		if n != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 1 {
		t.Fatalf("expected 1 recorded migration, got %d", n)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := Migrate(db); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 1 {
		t.Fatalf("expected single migration row after replay, got %d", n)
	}
}

func TestApplyMigrationsDoesNotRecordFailedMigration(t *testing.T) {
	db := openTestDB(t)

	bad := fstest.MapFS{
		"001_bad.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREAT TABLE things(id INT);")},
	}
	if err := ApplyMigrations(db, bad); err == nil {
		t.Fatal("expected bad migration to fail")
	}
	if n := countRows(t, db, "SELECT COUNT(*) FROM schema_migrations"); n != 0 {
		t.Fatalf("expected failed migration to stay unrecorded, got %d rows", n)
	}
}

func TestSplitStatements(t *testing.T) {
	script := ExtractUpMigration("-- +migrate Up\n-- comment\nCREATE TABLE a (id INT);\n\nCREATE INDEX i ON a (id);\n-- +migrate Down\nDROP TABLE a;")

	stmts := SplitStatements(script)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (id INT)" {
		t.Fatalf("unexpected first statement %q", stmts[0])
	}
}
