package testfixtures

import (
	"sort"
	"sync"
	"time"

	"github.com/example/study-reminders/internal/registry"
)

// ManualTimer is an armed callback that fires only when a test says so.
type ManualTimer struct {
	mu       sync.Mutex
	Deadline time.Time
	fn       func()
	fired    bool
	stopped  bool
}

// Stop reports whether the timer was still pending and prevents it from firing.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasPending := !t.fired && !t.stopped
	t.stopped = true
	return wasPending
}

// Fire runs the callback unless the timer was stopped or already fired.
func (t *ManualTimer) Fire() {
	t.mu.Lock()
	if t.fired || t.stopped {
		t.mu.Unlock()
		return
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

func (t *ManualTimer) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.fired && !t.stopped
}

// ManualTimers is a TimerFactory whose timers never fire on their own. Each
// timer's deadline is anchored to the supplied clock at arming time, so tests
// advance the clock and then fire whatever became due.
type ManualTimers struct {
	mu     sync.Mutex
	clock  *Clock
	timers []*ManualTimer
}

// NewManualTimers constructs a factory bound to the given clock.
func NewManualTimers(clock *Clock) *ManualTimers {
	if clock == nil {
		clock = NewClock(time.Time{})
	}
	return &ManualTimers{clock: clock}
}

// Factory satisfies the engine's TimerFactory signature.
func (m *ManualTimers) Factory(d time.Duration, fn func()) registry.Handle {
	timer := &ManualTimer{Deadline: m.clock.Now().Add(d), fn: fn}
	m.mu.Lock()
	m.timers = append(m.timers, timer)
	m.mu.Unlock()
	return timer
}

// Pending returns the timers that have neither fired nor been stopped,
// ordered by deadline.
func (m *ManualTimers) Pending() []*ManualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make([]*ManualTimer, 0, len(m.timers))
	for _, timer := range m.timers {
		if timer.pending() {
			pending = append(pending, timer)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Deadline.Before(pending[j].Deadline)
	})
	return pending
}

// FireDue fires every pending timer whose deadline is at or before the
// clock's current instant, in deadline order. Timers armed by the callbacks
// themselves are picked up too. Returns the number fired.
func (m *ManualTimers) FireDue() int {
	fired := 0
	for {
		var due *ManualTimer
		now := m.clock.Now()
		for _, timer := range m.Pending() {
			if !timer.Deadline.After(now) {
				due = timer
				break
			}
		}
		if due == nil {
			return fired
		}
		due.Fire()
		fired++
	}
}
