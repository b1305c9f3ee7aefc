package engine

import (
	"time"

	"github.com/example/study-reminders/internal/civiltime"
	"github.com/example/study-reminders/internal/persistence"
)

// plannedReminder is one reminder the engine intends to persist and arm.
type plannedReminder struct {
	MinutesBefore int
	FireAt        time.Time
	Recurring     bool
	Weekday       *time.Weekday
}

// buildPlan computes the reminder fire instants for a schedule. It is pure:
// no I/O, no clock reads beyond the supplied now. Reminders whose instant is
// not strictly in the future are dropped; firing past-due reminders
// immediately would spam users on recovery.
func buildPlan(schedule persistence.Schedule, offsets []int, now time.Time, converter *civiltime.Converter) []plannedReminder {
	if !schedule.IsActive {
		return nil
	}

	plan := make([]plannedReminder, 0, len(offsets))

	for _, offset := range offsets {
		fireAt := converter.AddMinutes(schedule.StartsAt, -offset)
		if !fireAt.After(now) {
			continue
		}
		plan = append(plan, plannedReminder{MinutesBefore: offset, FireAt: fireAt})
	}

	if !schedule.IsRecurring {
		return plan
	}

	for _, day := range schedule.RecurringDays {
		if day < time.Sunday || day > time.Saturday {
			continue
		}
		for _, offset := range offsets {
			fireAt, ok := nextWeeklyFire(now, day, schedule.StartTimeOfDay, offset, converter)
			if !ok {
				continue
			}
			weekday := day
			plan = append(plan, plannedReminder{
				MinutesBefore: offset,
				FireAt:        fireAt,
				Recurring:     true,
				Weekday:       &weekday,
			})
		}
	}

	return plan
}

// nextWeeklyFire finds the earliest instant strictly after now at which a
// reminder should fire for a weekly session on the given weekday. The session
// start is anchored to the civil clock time in the converter's zone, so a
// reminder offset that crosses midnight lands on the preceding civil day.
func nextWeeklyFire(now time.Time, day time.Weekday, clock string, offset int, converter *civiltime.Converter) (time.Time, bool) {
	loc := converter.Location()
	local := now.In(loc)

	// Scan two weeks of candidate dates; the first match is at most 7 days
	// out, the second covers a fire instant earlier today that already passed.
	for i := 0; i < 14; i++ {
		candidate := local.AddDate(0, 0, i)
		if candidate.Weekday() != day {
			continue
		}

		sessionStart, err := converter.ToAbsolute(candidate.Format("2006-01-02"), clock)
		if err != nil {
			return time.Time{}, false
		}

		fireAt := converter.AddMinutes(sessionStart, -offset)
		if fireAt.After(now) {
			return fireAt, true
		}
	}

	return time.Time{}, false
}
