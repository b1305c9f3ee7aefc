// Package engine decides when study reminders fire, persists that schedule
// durably, recovers it after a restart, and keeps the in-memory timer set
// consistent with the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/study-reminders/internal/civiltime"
	"github.com/example/study-reminders/internal/persistence"
	"github.com/example/study-reminders/internal/registry"
)

// DefaultReminderOffsets is the fixed reminder-time set in minutes before a
// session starts.
var DefaultReminderOffsets = []int{30, 5}

// Dispatcher delivers reminder notifications. Delivery is fire-and-forget:
// failures are logged by the engine and never retried.
type Dispatcher interface {
	SendReminder(ctx context.Context, recipient, scheduleTitle string, minutesBefore int, startTimeFormatted string, durationMinutes int) error
}

// TimerFactory arms a callback after the given duration and returns its
// handle. Injected so tests can fire timers manually.
type TimerFactory func(d time.Duration, fn func()) registry.Handle

// Engine computes, arms, persists and recovers reminder notifications.
type Engine struct {
	mu         sync.Mutex
	epochs     map[string]uint64
	schedules  persistence.ScheduleRepository
	store      persistence.NotificationRepository
	timers     *registry.TimerRegistry
	dispatcher Dispatcher
	converter  *civiltime.Converter
	offsets    []int
	now        func() time.Time
	newID      func() string
	newTimer   TimerFactory
	logger     *slog.Logger
}

// Options bundles the optional dependencies of New.
type Options struct {
	Offsets      []int
	Now          func() time.Time
	IDGenerator  func() string
	TimerFactory TimerFactory
	Logger       *slog.Logger
}

// New wires an engine instance. The registry must be exclusively owned by
// this engine; sharing it across engines breaks cancel-before-arm.
func New(schedules persistence.ScheduleRepository, store persistence.NotificationRepository, timers *registry.TimerRegistry, dispatcher Dispatcher, converter *civiltime.Converter, opts Options) *Engine {
	if timers == nil {
		timers = registry.New()
	}
	if converter == nil {
		converter = civiltime.NewConverter(nil)
	}
	offsets := opts.Offsets
	if len(offsets) == 0 {
		offsets = DefaultReminderOffsets
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.IDGenerator
	if newID == nil {
		newID = func() string { return "" }
	}
	newTimer := opts.TimerFactory
	if newTimer == nil {
		newTimer = func(d time.Duration, fn func()) registry.Handle {
			return time.AfterFunc(d, fn)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		epochs:     make(map[string]uint64),
		schedules:  schedules,
		store:      store,
		timers:     timers,
		dispatcher: dispatcher,
		converter:  converter,
		offsets:    offsets,
		now:        now,
		newID:      newID,
		newTimer:   newTimer,
		logger:     logger,
	}
}

// ScheduleNotifications idempotently recomputes and arms all reminders for
// one schedule. Existing timers are stopped and pending rows removed before
// the new set is persisted and armed, so repeated calls never leave
// duplicates. A missing or inactive schedule is a no-op.
func (e *Engine) ScheduleNotifications(ctx context.Context, scheduleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disarmLocked(scheduleID)
	if err := e.store.DeletePendingForSchedule(ctx, scheduleID); err != nil {
		return fmt.Errorf("engine: delete pending rows for %s: %w", scheduleID, err)
	}

	schedule, err := e.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			e.logger.Debug("schedule missing, skipping reminders", "schedule_id", scheduleID)
			return nil
		}
		return fmt.Errorf("engine: load schedule %s: %w", scheduleID, err)
	}
	if !schedule.IsActive {
		return nil
	}

	plan := buildPlan(schedule, e.offsets, e.now(), e.converter)
	return e.armPlanLocked(ctx, schedule, plan)
}

// CancelNotifications stops every armed timer for the schedule and deletes
// its still-pending persisted rows. Executed rows stay as history.
func (e *Engine) CancelNotifications(ctx context.Context, scheduleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.disarmLocked(scheduleID)
	if err := e.store.DeletePendingForSchedule(ctx, scheduleID); err != nil {
		return fmt.Errorf("engine: delete pending rows for %s: %w", scheduleID, err)
	}

	return nil
}

// UpdateSchedule recomputes reminders after the schedule's timing fields
// changed. Composition of cancel then reschedule.
func (e *Engine) UpdateSchedule(ctx context.Context, scheduleID string) error {
	return e.ScheduleNotifications(ctx, scheduleID)
}

// MarkScheduleComplete flips a non-recurring schedule inactive and cancels
// its remaining reminders. Recurring schedules are left alone; their next
// occurrence is still wanted.
func (e *Engine) MarkScheduleComplete(ctx context.Context, scheduleID string) error {
	schedule, err := e.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("engine: load schedule %s: %w", scheduleID, err)
	}
	if schedule.IsRecurring {
		return nil
	}

	if err := e.schedules.SetActive(ctx, scheduleID, false, persistence.ScheduleStatusCompleted); err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("engine: deactivate schedule %s: %w", scheduleID, err)
	}

	return e.CancelNotifications(ctx, scheduleID)
}

// RecoverPendingNotifications rebuilds the timer set from the store after a
// restart. Recovery is deliberately coarse: it recomputes each affected
// schedule from its current definition rather than re-arming stale instants,
// which keeps the store and timers consistent after downtime of any length.
// Schedules whose reminder window fully elapsed get no reminder.
func (e *Engine) RecoverPendingNotifications(ctx context.Context) error {
	pending, err := e.store.ListPendingFuture(ctx, e.now())
	if err != nil {
		return fmt.Errorf("engine: scan pending notifications: %w", err)
	}

	seen := make(map[string]struct{}, len(pending))
	recovered := 0
	for _, notification := range pending {
		if _, ok := seen[notification.ScheduleID]; ok {
			continue
		}
		seen[notification.ScheduleID] = struct{}{}

		if err := e.ScheduleNotifications(ctx, notification.ScheduleID); err != nil {
			e.logger.Error("failed to recover schedule reminders",
				"schedule_id", notification.ScheduleID, "error", err)
			continue
		}
		recovered++
	}

	e.logger.Info("reminder recovery complete", "schedules", recovered, "pending_rows", len(pending))
	return nil
}

// Shutdown stops every armed timer. State is store-derived, so no
// persistence writes are needed.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id := range e.epochs {
		e.epochs[id]++
	}
	stopped := e.timers.CancelAllGlobal()
	e.logger.Info("reminder timers stopped", "count", stopped)
}

// disarmLocked stops the schedule's timers and bumps its epoch so an
// in-flight recurring fire cannot re-arm afterwards. Caller holds e.mu.
func (e *Engine) disarmLocked(scheduleID string) {
	e.epochs[scheduleID]++
	e.timers.CancelAll(scheduleID)
}

// armPlanLocked persists and arms every planned reminder. Caller holds e.mu.
func (e *Engine) armPlanLocked(ctx context.Context, schedule persistence.Schedule, plan []plannedReminder) error {
	epoch := e.epochs[schedule.ID]

	for _, item := range plan {
		notification := persistence.ScheduledNotification{
			ID:                 e.newID(),
			ScheduleID:         schedule.ID,
			MinutesBefore:      item.MinutesBefore,
			ScheduledFor:       item.FireAt,
			JobToken:           e.newID(),
			IsRecurring:        item.Recurring,
			RecurringDayOfWeek: item.Weekday,
		}
		if err := e.store.CreateNotification(ctx, notification); err != nil {
			return fmt.Errorf("engine: persist reminder for %s: %w", schedule.ID, err)
		}

		e.armLocked(schedule.ID, notification, item.FireAt.Sub(e.now()), epoch)
	}

	return nil
}

// armedTimer lets the fire callback reference its own handle for
// deregistration. The inner handle is set before the factory's timer can be
// stopped through the registry.
type armedTimer struct {
	mu    sync.Mutex
	inner registry.Handle
}

func (t *armedTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inner == nil {
		return false
	}
	return t.inner.Stop()
}

func (t *armedTimer) set(handle registry.Handle) {
	t.mu.Lock()
	t.inner = handle
	t.mu.Unlock()
}

func (e *Engine) armLocked(scheduleID string, notification persistence.ScheduledNotification, wait time.Duration, epoch uint64) {
	if wait < 0 {
		wait = 0
	}

	timer := &armedTimer{}
	timer.set(e.newTimer(wait, func() {
		e.fire(scheduleID, notification, timer, epoch)
	}))
	e.timers.Register(scheduleID, timer)
}

// fire runs on the timer goroutine. Failures are contained here so one bad
// reminder never prevents others from firing.
func (e *Engine) fire(scheduleID string, notification persistence.ScheduledNotification, timer *armedTimer, epoch uint64) {
	ctx := context.Background()
	e.timers.Deregister(scheduleID, timer)

	schedule, err := e.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			e.logger.Error("failed to load schedule for reminder",
				"schedule_id", scheduleID, "error", err)
		}
		return
	}
	if !schedule.IsActive {
		return
	}

	startsAt := schedule.StartsAt
	if notification.IsRecurring {
		startsAt = e.converter.AddMinutes(notification.ScheduledFor, notification.MinutesBefore)
	}

	err = e.dispatcher.SendReminder(ctx,
		schedule.UserID,
		schedule.Title,
		notification.MinutesBefore,
		e.converter.Format(startsAt),
		schedule.DurationMinutes,
	)
	if err != nil {
		e.logger.Error("reminder dispatch failed",
			"schedule_id", scheduleID,
			"minutes_before", notification.MinutesBefore,
			"job_token", notification.JobToken,
			"error", err)
	} else {
		if err := e.store.MarkExecuted(ctx, notification.ID); err != nil {
			e.logger.Error("failed to mark reminder executed",
				"notification_id", notification.ID, "error", err)
		}
	}

	if notification.IsRecurring {
		e.rearmRecurring(ctx, schedule, notification, epoch)
	}
}

// rearmRecurring persists and arms the next weekly occurrence of a recurring
// reminder. The epoch check under the engine lock keeps a fire that raced a
// cancel or reschedule from resurrecting a timer.
func (e *Engine) rearmRecurring(ctx context.Context, schedule persistence.Schedule, previous persistence.ScheduledNotification, epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.epochs[schedule.ID] != epoch {
		return
	}

	next := previous
	next.ID = e.newID()
	next.JobToken = e.newID()
	next.IsExecuted = false
	next.ScheduledFor = previous.ScheduledFor.AddDate(0, 0, 7)

	if err := e.store.CreateNotification(ctx, next); err != nil {
		e.logger.Error("failed to persist next recurring reminder",
			"schedule_id", schedule.ID, "error", err)
		return
	}

	e.armLocked(schedule.ID, next, next.ScheduledFor.Sub(e.now()), epoch)
}
