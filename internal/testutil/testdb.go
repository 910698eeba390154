package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/alexanderramin/workgrid/internal/db"
)

// NewTestDB creates a file-backed SQLite database in a temp directory with
// all migrations applied. A file is used instead of :memory: so that every
// pooled connection sees the same data, which the concurrency tests rely on.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "workgrid_test.db"), db.PoolOptions{})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// NewTestUoW creates a UnitOfWork backed by the given test database.
func NewTestUoW(database *sql.DB) db.UnitOfWork {
	return db.NewSQLUnitOfWork(database, db.DialectSQLite)
}
