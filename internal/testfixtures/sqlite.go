package testfixtures

import (
	"context"
	"testing"

	"github.com/example/study-reminders/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by an in-memory SQLite
// database for integration-style persistence tests.
type SQLiteHarness struct {
	Pool          *sqlite.ConnectionPool
	Schedules     *sqlite.ScheduleRepository
	Notifications *sqlite.NotificationRepository
}

// NewSQLiteHarness opens and migrates a fresh in-memory database. Cleanup is
// registered with the test.
func NewSQLiteHarness(t *testing.T) *SQLiteHarness {
	t.Helper()

	pool, err := sqlite.NewConnectionPool(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("failed to close sqlite pool: %v", err)
		}
	})

	if err := pool.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	return &SQLiteHarness{
		Pool:          pool,
		Schedules:     sqlite.NewScheduleRepository(pool),
		Notifications: sqlite.NewNotificationRepository(pool),
	}
}
