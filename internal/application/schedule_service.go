// Package application orchestrates validation, overlap checks and
// persistence for schedule mutations, and hands the results to the
// notification engine.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/study-reminders/internal/civiltime"
	"github.com/example/study-reminders/internal/logging"
	"github.com/example/study-reminders/internal/persistence"
)

// ScheduleInput carries the user-entered fields of a schedule mutation.
type ScheduleInput struct {
	UserID          string
	Title           string
	StartDate       string
	StartTime       string
	DurationMinutes int
	IsRecurring     bool
	RecurringDays   []time.Weekday
}

// NotificationScheduler is the engine surface the service drives after
// schedule mutations.
type NotificationScheduler interface {
	ScheduleNotifications(ctx context.Context, scheduleID string) error
	CancelNotifications(ctx context.Context, scheduleID string) error
	UpdateSchedule(ctx context.Context, scheduleID string) error
}

// ScheduleService validates and persists study schedules.
type ScheduleService struct {
	schedules   persistence.ScheduleRepository
	notifier    NotificationScheduler
	converter   *civiltime.Converter
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewScheduleService wires dependencies for schedule operations.
func NewScheduleService(schedules persistence.ScheduleRepository, notifier NotificationScheduler, converter *civiltime.Converter, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if converter == nil {
		converter = civiltime.NewConverter(nil)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleService{
		schedules:   schedules,
		notifier:    notifier,
		converter:   converter,
		idGenerator: idGenerator,
		now:         now,
		logger:      logger,
	}
}

// CreateSchedule validates the request, rejects overlaps with the user's
// other active schedules, persists the schedule together with its recurring
// days, and arms its reminders.
func (s *ScheduleService) CreateSchedule(ctx context.Context, input ScheduleInput) (persistence.Schedule, error) {
	if err := validateScheduleCore(input); err != nil {
		return persistence.Schedule{}, err
	}

	startsAt, err := s.converter.ToAbsolute(input.StartDate, input.StartTime)
	if err != nil {
		return persistence.Schedule{}, err
	}
	endsAt := s.converter.AddMinutes(startsAt, input.DurationMinutes)

	if err := s.ensureNoOverlap(ctx, input.UserID, startsAt, endsAt, ""); err != nil {
		return persistence.Schedule{}, err
	}

	schedule := persistence.Schedule{
		ID:              s.idGenerator(),
		UserID:          input.UserID,
		Title:           strings.TrimSpace(input.Title),
		StartDate:       input.StartDate,
		StartTimeOfDay:  input.StartTime,
		DurationMinutes: input.DurationMinutes,
		StartsAt:        startsAt,
		EndsAt:          endsAt,
		IsRecurring:     input.IsRecurring,
		RecurringDays:   input.RecurringDays,
		IsActive:        true,
		Status:          persistence.ScheduleStatusScheduled,
	}

	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.ScheduleNotifications(ctx, schedule.ID); err != nil {
			return persistence.Schedule{}, fmt.Errorf("schedule created but reminders failed: %w", err)
		}
	}

	s.log(ctx).Info("schedule created",
		"schedule_id", schedule.ID, "user_id", schedule.UserID, "starts_at", startsAt)
	return schedule, nil
}

// UpdateSchedule applies new timing fields to an existing schedule and
// recomputes its reminders.
func (s *ScheduleService) UpdateSchedule(ctx context.Context, scheduleID string, input ScheduleInput) (persistence.Schedule, error) {
	existing, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}

	if err := validateScheduleCore(input); err != nil {
		return persistence.Schedule{}, err
	}

	startsAt, err := s.converter.ToAbsolute(input.StartDate, input.StartTime)
	if err != nil {
		return persistence.Schedule{}, err
	}
	endsAt := s.converter.AddMinutes(startsAt, input.DurationMinutes)

	if err := s.ensureNoOverlap(ctx, existing.UserID, startsAt, endsAt, scheduleID); err != nil {
		return persistence.Schedule{}, err
	}

	updated := existing
	updated.Title = strings.TrimSpace(input.Title)
	updated.StartDate = input.StartDate
	updated.StartTimeOfDay = input.StartTime
	updated.DurationMinutes = input.DurationMinutes
	updated.StartsAt = startsAt
	updated.EndsAt = endsAt
	updated.IsRecurring = input.IsRecurring
	updated.RecurringDays = input.RecurringDays

	if err := s.schedules.UpdateSchedule(ctx, updated); err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.UpdateSchedule(ctx, scheduleID); err != nil {
			return persistence.Schedule{}, fmt.Errorf("schedule updated but reminders failed: %w", err)
		}
	}

	s.log(ctx).Info("schedule updated", "schedule_id", scheduleID, "starts_at", startsAt)
	return updated, nil
}

// DeleteSchedule soft-deletes the schedule and cancels its reminders.
func (s *ScheduleService) DeleteSchedule(ctx context.Context, scheduleID string) error {
	if err := s.schedules.SoftDeleteSchedule(ctx, scheduleID); err != nil {
		return mapRepoError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.CancelNotifications(ctx, scheduleID); err != nil {
			return fmt.Errorf("schedule deleted but reminder cancel failed: %w", err)
		}
	}

	s.log(ctx).Info("schedule deleted", "schedule_id", scheduleID)
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *ScheduleService) GetSchedule(ctx context.Context, scheduleID string) (persistence.Schedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return persistence.Schedule{}, mapRepoError(err)
	}
	return schedule, nil
}

// log prefers a request-scoped logger carried on the context.
func (s *ScheduleService) log(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != nil {
		return logger
	}
	return s.logger
}

func (s *ScheduleService) ensureNoOverlap(ctx context.Context, userID string, start, end time.Time, excludeID string) error {
	overlapping, err := s.schedules.ListActiveOverlapping(ctx, userID, start, end, excludeID)
	if err != nil {
		return mapRepoError(err)
	}
	if len(overlapping) > 0 {
		return fmt.Errorf("%w: %s", ErrScheduleConflict, overlapping[0].ID)
	}
	return nil
}

func validateScheduleCore(input ScheduleInput) error {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.UserID) == "" {
		vErr.add("user_id", "user is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		vErr.add("title", "title is required")
	}
	if input.DurationMinutes <= 0 {
		vErr.add("duration_minutes", "duration must be positive")
	}
	if input.IsRecurring && len(input.RecurringDays) == 0 {
		vErr.add("recurring_days", "recurring schedules need at least one weekday")
	}
	for _, day := range input.RecurringDays {
		if day < time.Sunday || day > time.Saturday {
			vErr.add("recurring_days", "weekdays must be between 0 and 6")
			break
		}
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("time", "schedule window is invalid")
		return vErr
	}
	return err
}
