package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/study-reminders/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite.
type NotificationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewNotificationRepository creates a new SQLite notification repository.
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const notificationColumns = `id, schedule_id, minutes_before, scheduled_for, is_executed,
	job_token, is_recurring, recurring_day_of_week, created_at, updated_at`

// CreateNotification inserts a pending reminder row.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notification persistence.ScheduledNotification) error {
	if notification.ID == "" {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	notification.CreatedAt = now
	notification.UpdatedAt = now

	var recurringDay sql.NullInt64
	if notification.RecurringDayOfWeek != nil {
		recurringDay.Int64 = int64(*notification.RecurringDayOfWeek)
		recurringDay.Valid = true
	}

	query := `
		INSERT INTO scheduled_notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.helper.Exec(ctx, query,
		notification.ID,
		notification.ScheduleID,
		notification.MinutesBefore,
		notification.ScheduledFor.UTC().Format(time.RFC3339),
		boolToInt(notification.IsExecuted),
		notification.JobToken,
		boolToInt(notification.IsRecurring),
		recurringDay,
		notification.CreatedAt.Format(time.RFC3339),
		notification.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	return nil
}

// ListPendingFuture returns every non-executed row scheduled after the
// reference instant, ordered by fire time.
func (r *NotificationRepository) ListPendingFuture(ctx context.Context, reference time.Time) ([]persistence.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications
		WHERE is_executed = 0 AND scheduled_for > ?
		ORDER BY scheduled_for ASC, id ASC
	`

	return r.queryNotifications(ctx, query, reference.UTC().Format(time.RFC3339))
}

// ListPendingForSchedule returns every non-executed row for one schedule.
func (r *NotificationRepository) ListPendingForSchedule(ctx context.Context, scheduleID string) ([]persistence.ScheduledNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM scheduled_notifications
		WHERE is_executed = 0 AND schedule_id = ?
		ORDER BY scheduled_for ASC, id ASC
	`

	return r.queryNotifications(ctx, query, scheduleID)
}

// MarkExecuted flips IsExecuted on a row. A missing row is a no-op: a fire
// racing a concurrent cancellation already removed it.
func (r *NotificationRepository) MarkExecuted(ctx context.Context, id string) error {
	_, err := r.helper.Exec(ctx,
		"UPDATE scheduled_notifications SET is_executed = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// DeletePendingForSchedule removes still-pending rows for a schedule.
// Executed rows are retained as history.
func (r *NotificationRepository) DeletePendingForSchedule(ctx context.Context, scheduleID string) error {
	_, err := r.helper.Exec(ctx,
		"DELETE FROM scheduled_notifications WHERE schedule_id = ? AND is_executed = 0",
		scheduleID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

func (r *NotificationRepository) queryNotifications(ctx context.Context, query string, args ...interface{}) ([]persistence.ScheduledNotification, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var notifications []persistence.ScheduledNotification
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return notifications, nil
}

func scanNotification(scanner rowScanner) (persistence.ScheduledNotification, error) {
	var notification persistence.ScheduledNotification
	var scheduledForStr, createdAtStr, updatedAtStr string
	var isExecuted, isRecurring int
	var recurringDay sql.NullInt64

	err := scanner.Scan(
		&notification.ID,
		&notification.ScheduleID,
		&notification.MinutesBefore,
		&scheduledForStr,
		&isExecuted,
		&notification.JobToken,
		&isRecurring,
		&recurringDay,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return persistence.ScheduledNotification{}, err
	}

	notification.IsExecuted = isExecuted != 0
	notification.IsRecurring = isRecurring != 0
	if recurringDay.Valid {
		day := time.Weekday(recurringDay.Int64)
		notification.RecurringDayOfWeek = &day
	}

	if notification.ScheduledFor, err = time.Parse(time.RFC3339, scheduledForStr); err != nil {
		return persistence.ScheduledNotification{}, fmt.Errorf("failed to parse scheduled_for: %w", err)
	}
	if notification.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.ScheduledNotification{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if notification.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.ScheduledNotification{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return notification, nil
}
