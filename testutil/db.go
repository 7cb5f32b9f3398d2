package testutil

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/Mavuisra/naklass-sub005/core"
	"github.com/Mavuisra/naklass-sub005/core/academicyear"
	"github.com/Mavuisra/naklass-sub005/core/user"
	"github.com/Mavuisra/naklass-sub005/storage/database"
)

// PrepareDB opens a fresh, migrated SQLite database living in the test's temp dir.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "naklass.db"))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	database.SetMigrationLogger(goose.NopLogger())
	if err = database.Migrate(context.Background(), db.DB, database.EngineSQLite, "up"); err != nil {
		t.Fatalf("PrepareDB() failed to migrate: %v", err)
	}
	return db
}

// NewValidator returns a validator with every domain validator registered.
func NewValidator() *core.Validator {
	v := core.NewValidator()
	user.InitValidators(v.Validate, v.Translator)
	academicyear.InitValidators(v.Validate, v.Translator)
	return v
}

// Count returns the number of rows of table matching the optional where clause.
func Count(t *testing.T, db *sqlx.DB, table, where string, args ...interface{}) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := db.Get(&n, db.Rebind(q), args...); err != nil {
		t.Fatalf("Count(%s) failed: %v", table, err)
	}
	return n
}

// FailWrites makes every `event` (INSERT, UPDATE or DELETE) on table matching the optional
// condition on NEW/OLD abort with an error, until the returned func drops the trigger.
func FailWrites(t *testing.T, db *sqlx.DB, table, event, when string) (restore func()) {
	t.Helper()
	name := "fail_" + strings.ToLower(event) + "_" + table
	q := "CREATE TRIGGER " + name + " BEFORE " + event + " ON " + table
	if when != "" {
		q += " WHEN " + when
	}
	q += " BEGIN SELECT RAISE(ABORT, 'write refused'); END"
	if _, err := db.Exec(q); err != nil {
		t.Fatalf("FailWrites(%s) failed: %v", table, err)
	}
	return func() {
		if _, err := db.Exec("DROP TRIGGER IF EXISTS " + name); err != nil {
			t.Fatalf("FailWrites(%s) failed to restore: %v", table, err)
		}
	}
}
