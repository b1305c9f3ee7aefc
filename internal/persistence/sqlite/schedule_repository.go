package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/study-reminders/internal/persistence"
)

// ScheduleRepository implements persistence.ScheduleRepository using SQLite.
type ScheduleRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewScheduleRepository creates a new SQLite schedule repository.
func NewScheduleRepository(pool *ConnectionPool) *ScheduleRepository {
	return &ScheduleRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const scheduleColumns = `id, user_id, title, start_date, start_time_of_day, duration_minutes,
	starts_at, ends_at, is_recurring, is_active, status, created_at, updated_at`

// CreateSchedule inserts a schedule and its recurring-day rows in one transaction.
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if !schedule.EndsAt.After(schedule.StartsAt) {
		return persistence.ErrConstraintViolation
	}

	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO schedules (` + scheduleColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		_, err := r.helper.ExecTx(tx, query,
			schedule.ID,
			schedule.UserID,
			schedule.Title,
			schedule.StartDate,
			schedule.StartTimeOfDay,
			schedule.DurationMinutes,
			schedule.StartsAt.UTC().Format(time.RFC3339),
			schedule.EndsAt.UTC().Format(time.RFC3339),
			boolToInt(schedule.IsRecurring),
			boolToInt(schedule.IsActive),
			string(schedule.Status),
			schedule.CreatedAt.Format(time.RFC3339),
			schedule.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		return r.insertRecurringDays(tx, schedule.ID, schedule.RecurringDays)
	})
}

// UpdateSchedule replaces the schedule's mutable fields and recreates its
// recurring-day rows.
func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, schedule persistence.Schedule) error {
	if schedule.ID == "" {
		return persistence.ErrNotFound
	}
	if !schedule.EndsAt.After(schedule.StartsAt) {
		return persistence.ErrConstraintViolation
	}

	schedule.UpdatedAt = time.Now().UTC()

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE schedules
			SET title = ?, start_date = ?, start_time_of_day = ?, duration_minutes = ?,
				starts_at = ?, ends_at = ?, is_recurring = ?, is_active = ?, status = ?, updated_at = ?
			WHERE id = ?
		`

		result, err := r.helper.ExecTx(tx, query,
			schedule.Title,
			schedule.StartDate,
			schedule.StartTimeOfDay,
			schedule.DurationMinutes,
			schedule.StartsAt.UTC().Format(time.RFC3339),
			schedule.EndsAt.UTC().Format(time.RFC3339),
			boolToInt(schedule.IsRecurring),
			boolToInt(schedule.IsActive),
			string(schedule.Status),
			schedule.UpdatedAt.Format(time.RFC3339),
			schedule.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return persistence.ErrNotFound
		}

		// Recurring days are a dependent child collection: delete and recreate.
		if _, err := r.helper.ExecTx(tx, "DELETE FROM schedule_recurring_days WHERE schedule_id = ?", schedule.ID); err != nil {
			return r.mapper.MapError(err)
		}

		return r.insertRecurringDays(tx, schedule.ID, schedule.RecurringDays)
	})
}

// GetSchedule retrieves a schedule by ID, recurring days included.
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (persistence.Schedule, error) {
	if id == "" {
		return persistence.Schedule{}, persistence.ErrNotFound
	}

	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`

	schedule, err := scanSchedule(r.helper.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Schedule{}, persistence.ErrNotFound
		}
		return persistence.Schedule{}, r.mapper.MapError(err)
	}

	days, err := r.loadRecurringDays(ctx, id)
	if err != nil {
		return persistence.Schedule{}, err
	}
	schedule.RecurringDays = days

	return schedule, nil
}

// ListActiveOverlapping returns the user's active schedules intersecting the
// given absolute window, optionally excluding one schedule.
func (r *ScheduleRepository) ListActiveOverlapping(ctx context.Context, userID string, start, end time.Time, excludeID string) ([]persistence.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM schedules
		WHERE user_id = ?
		  AND is_active = 1
		  AND starts_at < ?
		  AND ends_at > ?
	`
	args := []interface{}{
		userID,
		end.UTC().Format(time.RFC3339),
		start.UTC().Format(time.RFC3339),
	}
	if excludeID != "" {
		query += " AND id != ?"
		args = append(args, excludeID)
	}
	query += " ORDER BY starts_at ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var schedules []persistence.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	for i := range schedules {
		days, err := r.loadRecurringDays(ctx, schedules[i].ID)
		if err != nil {
			return nil, err
		}
		schedules[i].RecurringDays = days
	}

	return schedules, nil
}

// SetActive flips the IsActive flag and records the lifecycle status.
func (r *ScheduleRepository) SetActive(ctx context.Context, id string, active bool, status persistence.ScheduleStatus) error {
	if id == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx,
		"UPDATE schedules SET is_active = ?, status = ?, updated_at = ? WHERE id = ?",
		boolToInt(active), string(status), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return r.mapper.MapError(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return persistence.ErrNotFound
	}

	return nil
}

// SoftDeleteSchedule deactivates the schedule and marks it deleted.
func (r *ScheduleRepository) SoftDeleteSchedule(ctx context.Context, id string) error {
	return r.SetActive(ctx, id, false, persistence.ScheduleStatusDeleted)
}

func (r *ScheduleRepository) insertRecurringDays(tx *sql.Tx, scheduleID string, days []time.Weekday) error {
	seen := make(map[time.Weekday]struct{}, len(days))
	for _, day := range days {
		if day < time.Sunday || day > time.Saturday {
			continue
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}

		if _, err := r.helper.ExecTx(tx,
			"INSERT INTO schedule_recurring_days (schedule_id, day_of_week) VALUES (?, ?)",
			scheduleID, int(day)); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

func (r *ScheduleRepository) loadRecurringDays(ctx context.Context, scheduleID string) ([]time.Weekday, error) {
	rows, err := r.helper.Query(ctx,
		"SELECT day_of_week FROM schedule_recurring_days WHERE schedule_id = ? ORDER BY day_of_week ASC",
		scheduleID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var days []time.Weekday
	for rows.Next() {
		var day int
		if err := rows.Scan(&day); err != nil {
			return nil, r.mapper.MapError(err)
		}
		days = append(days, time.Weekday(day))
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}

	return days, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(scanner rowScanner) (persistence.Schedule, error) {
	var schedule persistence.Schedule
	var startsAtStr, endsAtStr, createdAtStr, updatedAtStr, status string
	var isRecurring, isActive int

	err := scanner.Scan(
		&schedule.ID,
		&schedule.UserID,
		&schedule.Title,
		&schedule.StartDate,
		&schedule.StartTimeOfDay,
		&schedule.DurationMinutes,
		&startsAtStr,
		&endsAtStr,
		&isRecurring,
		&isActive,
		&status,
		&createdAtStr,
		&updatedAtStr,
	)
	if err != nil {
		return persistence.Schedule{}, err
	}

	schedule.IsRecurring = isRecurring != 0
	schedule.IsActive = isActive != 0
	schedule.Status = persistence.ScheduleStatus(status)

	if schedule.StartsAt, err = time.Parse(time.RFC3339, startsAtStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse starts_at: %w", err)
	}
	if schedule.EndsAt, err = time.Parse(time.RFC3339, endsAtStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse ends_at: %w", err)
	}
	if schedule.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if schedule.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr); err != nil {
		return persistence.Schedule{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return schedule, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
