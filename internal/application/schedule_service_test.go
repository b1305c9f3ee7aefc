package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/study-reminders/internal/civiltime"
	"github.com/example/study-reminders/internal/persistence"
	"github.com/example/study-reminders/internal/testfixtures"
)

// notifierRecorder records which engine operations the service drove.
type notifierRecorder struct {
	scheduled []string
	cancelled []string
	updated   []string
	err       error
}

func (n *notifierRecorder) ScheduleNotifications(_ context.Context, scheduleID string) error {
	n.scheduled = append(n.scheduled, scheduleID)
	return n.err
}

func (n *notifierRecorder) CancelNotifications(_ context.Context, scheduleID string) error {
	n.cancelled = append(n.cancelled, scheduleID)
	return n.err
}

func (n *notifierRecorder) UpdateSchedule(_ context.Context, scheduleID string) error {
	n.updated = append(n.updated, scheduleID)
	return n.err
}

func newTestService(t *testing.T) (*ScheduleService, *testfixtures.SQLiteHarness, *notifierRecorder) {
	t.Helper()

	db := testfixtures.NewSQLiteHarness(t)
	notifier := &notifierRecorder{}
	clock := testfixtures.NewClock(time.Time{})

	service := NewScheduleService(
		db.Schedules,
		notifier,
		civiltime.NewConverter(nil),
		testfixtures.NewIDGenerator("schedule").NextFunc(),
		clock.NowFunc(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return service, db, notifier
}

func validInput() ScheduleInput {
	return ScheduleInput{
		UserID:          "user-1",
		Title:           "Algebra review",
		StartDate:       "2024-01-16",
		StartTime:       "20:00:00",
		DurationMinutes: 60,
	}
}

func TestCreateSchedulePersistsAndArms(t *testing.T) {
	service, db, notifier := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateSchedule(ctx, validInput())
	if err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected a generated schedule ID")
	}
	if !created.IsActive || created.Status != persistence.ScheduleStatusScheduled {
		t.Errorf("unexpected lifecycle state: %+v", created)
	}

	// 2024-01-16 20:00 KST is 11:00 UTC.
	wantStart := time.Date(2024, time.January, 16, 11, 0, 0, 0, time.UTC)
	if !created.StartsAt.Equal(wantStart) {
		t.Errorf("StartsAt = %v, want %v", created.StartsAt, wantStart)
	}
	if !created.EndsAt.Equal(wantStart.Add(time.Hour)) {
		t.Errorf("EndsAt = %v", created.EndsAt)
	}

	stored, err := db.Schedules.GetSchedule(ctx, created.ID)
	if err != nil {
		t.Fatalf("schedule not persisted: %v", err)
	}
	if stored.Title != "Algebra review" {
		t.Errorf("stored title %q", stored.Title)
	}

	if len(notifier.scheduled) != 1 || notifier.scheduled[0] != created.ID {
		t.Errorf("expected reminders to be armed for %s, got %v", created.ID, notifier.scheduled)
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	service, _, notifier := newTestService(t)

	input := ScheduleInput{IsRecurring: true, DurationMinutes: 0}
	_, err := service.CreateSchedule(context.Background(), input)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"user_id", "title", "duration_minutes", "recurring_days"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Errorf("expected a validation message for %s", field)
		}
	}
	if len(notifier.scheduled) != 0 {
		t.Error("invalid input must not arm reminders")
	}
}

func TestCreateScheduleMalformedDate(t *testing.T) {
	service, _, _ := newTestService(t)

	input := validInput()
	input.StartDate = "16/01/2024"

	_, err := service.CreateSchedule(context.Background(), input)

	var formatErr *civiltime.FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	if formatErr.Field != "date" {
		t.Errorf("expected date field, got %q", formatErr.Field)
	}
}

func TestCreateScheduleRejectsOverlap(t *testing.T) {
	service, _, notifier := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, validInput()); err != nil {
		t.Fatalf("first CreateSchedule failed: %v", err)
	}

	conflicting := validInput()
	conflicting.Title = "Overlapping block"
	conflicting.StartTime = "20:30:00"

	_, err := service.CreateSchedule(ctx, conflicting)
	if !errors.Is(err, ErrScheduleConflict) {
		t.Fatalf("expected ErrScheduleConflict, got %v", err)
	}
	if len(notifier.scheduled) != 1 {
		t.Errorf("conflicting schedule must not arm reminders, got %v", notifier.scheduled)
	}
}

func TestCreateScheduleAllowsAdjacentAndOtherUsers(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateSchedule(ctx, validInput()); err != nil {
		t.Fatalf("first CreateSchedule failed: %v", err)
	}

	adjacent := validInput()
	adjacent.StartTime = "21:00:00"
	if _, err := service.CreateSchedule(ctx, adjacent); err != nil {
		t.Errorf("back-to-back schedules must not conflict: %v", err)
	}

	otherUser := validInput()
	otherUser.UserID = "user-2"
	if _, err := service.CreateSchedule(ctx, otherUser); err != nil {
		t.Errorf("another user's schedule must not conflict: %v", err)
	}
}

func TestUpdateScheduleExcludesSelfFromOverlap(t *testing.T) {
	service, db, notifier := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateSchedule(ctx, validInput())
	if err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}

	// Shift within the schedule's own window: overlaps only itself.
	input := validInput()
	input.StartTime = "20:15:00"
	input.Title = "Algebra review, moved"

	updated, err := service.UpdateSchedule(ctx, created.ID, input)
	if err != nil {
		t.Fatalf("UpdateSchedule failed: %v", err)
	}
	if updated.Title != "Algebra review, moved" {
		t.Errorf("title not updated: %q", updated.Title)
	}

	stored, err := db.Schedules.GetSchedule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSchedule failed: %v", err)
	}
	if !stored.StartsAt.Equal(updated.StartsAt) {
		t.Errorf("persisted StartsAt %v, want %v", stored.StartsAt, updated.StartsAt)
	}

	if len(notifier.updated) != 1 || notifier.updated[0] != created.ID {
		t.Errorf("expected reminders recomputed for %s, got %v", created.ID, notifier.updated)
	}
}

func TestUpdateScheduleMissing(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.UpdateSchedule(context.Background(), "missing", validInput())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteScheduleSoftDeletesAndCancels(t *testing.T) {
	service, db, notifier := newTestService(t)
	ctx := context.Background()

	created, err := service.CreateSchedule(ctx, validInput())
	if err != nil {
		t.Fatalf("CreateSchedule failed: %v", err)
	}

	if err := service.DeleteSchedule(ctx, created.ID); err != nil {
		t.Fatalf("DeleteSchedule failed: %v", err)
	}

	stored, err := db.Schedules.GetSchedule(ctx, created.ID)
	if err != nil {
		t.Fatalf("soft-deleted schedule must still be readable: %v", err)
	}
	if stored.IsActive || stored.Status != persistence.ScheduleStatusDeleted {
		t.Errorf("unexpected state after delete: active=%v status=%q", stored.IsActive, stored.Status)
	}

	if len(notifier.cancelled) != 1 || notifier.cancelled[0] != created.ID {
		t.Errorf("expected reminders cancelled for %s, got %v", created.ID, notifier.cancelled)
	}
}

func TestGetScheduleMapsNotFound(t *testing.T) {
	service, _, _ := newTestService(t)

	if _, err := service.GetSchedule(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
