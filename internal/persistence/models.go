package persistence

import "time"

// ScheduleStatus tracks the lifecycle of a study schedule.
type ScheduleStatus string

const (
	// ScheduleStatusScheduled marks a schedule that has not started yet.
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	// ScheduleStatusCompleted marks a schedule whose session finished.
	ScheduleStatusCompleted ScheduleStatus = "completed"
	// ScheduleStatusExpired marks a schedule whose window elapsed unused.
	ScheduleStatusExpired ScheduleStatus = "expired"
	// ScheduleStatusDeleted marks a soft-deleted schedule.
	ScheduleStatusDeleted ScheduleStatus = "deleted"
)

// Schedule represents a user's planned study block. StartDate and
// StartTimeOfDay hold the civil values as entered; StartsAt and EndsAt are
// the derived absolute instants used for all scheduling math.
type Schedule struct {
	ID              string
	UserID          string
	Title           string
	StartDate       string
	StartTimeOfDay  string
	DurationMinutes int
	StartsAt        time.Time
	EndsAt          time.Time
	IsRecurring     bool
	RecurringDays   []time.Weekday
	IsActive        bool
	Status          ScheduleStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ScheduledNotification is one persisted reminder instance: one row per
// reminder offset per occurrence.
type ScheduledNotification struct {
	ID                 string
	ScheduleID         string
	MinutesBefore      int
	ScheduledFor       time.Time
	IsExecuted         bool
	JobToken           string
	IsRecurring        bool
	RecurringDayOfWeek *time.Weekday
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
