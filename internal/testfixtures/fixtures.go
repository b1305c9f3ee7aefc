package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/study-reminders/internal/persistence"
)

var scheduleCounter uint64

// ScheduleFixture builds a deterministic active study schedule starting at
// the given absolute instant. Civil fields are derived in KST.
func ScheduleFixture(userID string, startsAt time.Time, durationMinutes int) persistence.Schedule {
	n := atomic.AddUint64(&scheduleCounter, 1)
	kst := time.FixedZone("KST", 9*60*60)
	local := startsAt.In(kst)

	return persistence.Schedule{
		ID:              fmt.Sprintf("schedule-%d", n),
		UserID:          userID,
		Title:           fmt.Sprintf("Study block %d", n),
		StartDate:       local.Format("2006-01-02"),
		StartTimeOfDay:  local.Format("15:04:05"),
		DurationMinutes: durationMinutes,
		StartsAt:        startsAt,
		EndsAt:          startsAt.Add(time.Duration(durationMinutes) * time.Minute),
		IsActive:        true,
		Status:          persistence.ScheduleStatusScheduled,
		CreatedAt:       ReferenceTime(),
		UpdatedAt:       ReferenceTime(),
	}
}

// RecurringScheduleFixture builds an active weekly schedule on the given
// weekdays.
func RecurringScheduleFixture(userID string, startsAt time.Time, durationMinutes int, days ...time.Weekday) persistence.Schedule {
	schedule := ScheduleFixture(userID, startsAt, durationMinutes)
	schedule.IsRecurring = true
	schedule.RecurringDays = days
	return schedule
}
