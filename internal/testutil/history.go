package testutil

import (
	"testing"

	"cx-go/internal/database"
)

// NewTestHistory creates an in-memory SQLite history with migrations applied.
// It is closed when the test completes.
func NewTestHistory(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open history database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
