package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the ordered schema history. Each entry runs at most once;
// applied versions are tracked in schema_migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		start_date TEXT NOT NULL,
		start_time_of_day TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		starts_at TEXT NOT NULL,
		ends_at TEXT NOT NULL,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		is_active INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'scheduled',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_recurring_days (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
		PRIMARY KEY (schedule_id, day_of_week)
	)`,
	`CREATE TABLE IF NOT EXISTS scheduled_notifications (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		minutes_before INTEGER NOT NULL,
		scheduled_for TEXT NOT NULL,
		is_executed INTEGER NOT NULL DEFAULT 0,
		job_token TEXT NOT NULL,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		recurring_day_of_week INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_pending
		ON scheduled_notifications (is_executed, scheduled_for)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_schedule
		ON scheduled_notifications (schedule_id)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_user_active
		ON schedules (user_id, is_active)`,
}

// Migrate applies any schema migrations that have not run yet.
func (cp *ConnectionPool) Migrate(ctx context.Context) error {
	if _, err := cp.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	return cp.WithTransaction(ctx, func(tx *sql.Tx) error {
		var current sql.NullInt64
		if err := tx.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&current); err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		start := 0
		if current.Valid {
			start = int(current.Int64)
		}

		for i := start; i < len(migrations); i++ {
			if _, err := tx.Exec(migrations[i]); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
			if _, err := tx.Exec(
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))",
				i+1); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", i+1, err)
			}
		}

		return nil
	})
}
