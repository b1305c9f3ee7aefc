package persistence

import (
	"context"
	"time"
)

// ScheduleRepository stores study schedules and their recurring weekday rows.
type ScheduleRepository interface {
	// CreateSchedule inserts the schedule together with its recurring-day
	// child rows in a single transaction.
	CreateSchedule(ctx context.Context, schedule Schedule) error
	// UpdateSchedule replaces the schedule's mutable fields. Recurring-day
	// rows are deleted and recreated from the provided set.
	UpdateSchedule(ctx context.Context, schedule Schedule) error
	// GetSchedule retrieves a schedule by ID, recurring days included.
	GetSchedule(ctx context.Context, id string) (Schedule, error)
	// ListActiveOverlapping returns the user's active schedules whose
	// [StartsAt, EndsAt) window intersects the given window. excludeID may
	// name a schedule to ignore (the one being updated).
	ListActiveOverlapping(ctx context.Context, userID string, start, end time.Time, excludeID string) ([]Schedule, error)
	// SetActive flips the IsActive flag and records the lifecycle status.
	SetActive(ctx context.Context, id string, active bool, status ScheduleStatus) error
	// SoftDeleteSchedule deactivates the schedule and marks it deleted.
	SoftDeleteSchedule(ctx context.Context, id string) error
}

// NotificationRepository stores scheduled reminder rows.
type NotificationRepository interface {
	// CreateNotification inserts a pending reminder row.
	CreateNotification(ctx context.Context, notification ScheduledNotification) error
	// ListPendingFuture returns every non-executed row with ScheduledFor
	// after the reference instant.
	ListPendingFuture(ctx context.Context, reference time.Time) ([]ScheduledNotification, error)
	// ListPendingForSchedule returns every non-executed row for one schedule.
	ListPendingForSchedule(ctx context.Context, scheduleID string) ([]ScheduledNotification, error)
	// MarkExecuted flips IsExecuted on a row. A missing row is a no-op, not
	// an error: a fire racing a concurrent cancellation is tolerated.
	MarkExecuted(ctx context.Context, id string) error
	// DeletePendingForSchedule removes still-pending rows for a schedule.
	// Executed rows are retained as history.
	DeletePendingForSchedule(ctx context.Context, scheduleID string) error
}
