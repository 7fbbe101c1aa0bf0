package testutil

import (
	"context"
	"testing"

	"github.com/nhle/notification-sync/internal/backend"
)

// NewTestDB creates an in-memory SQLite backend database with all
// migrations applied and the seed users inserted. It automatically closes
// the database when the test completes.
func NewTestDB(t *testing.T) *backend.DB {
	t.Helper()

	db, err := backend.Open(context.Background(), backend.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing test db: %v", err)
		}
	})

	if _, err := db.Seed(context.Background(), backend.SeedUsers); err != nil {
		t.Fatalf("seeding test db: %v", err)
	}

	return db
}
