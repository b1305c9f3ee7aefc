package checkin

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/study-reminders/internal/testfixtures"
)

func newTestCoordinator(t *testing.T, channels ChannelRegistry, jitter float64) (*Coordinator, *testfixtures.Clock, *testfixtures.ManualTimers) {
	t.Helper()

	clock := testfixtures.NewClock(time.Time{})
	timers := testfixtures.NewManualTimers(clock)
	coordinator := NewCoordinator(channels, Options{
		Now:          clock.NowFunc(),
		IDGenerator:  testfixtures.NewIDGenerator("checkin").NextFunc(),
		TimerFactory: timers.Factory,
		Jitter:       func() float64 { return jitter },
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return coordinator, clock, timers
}

func TestIntervalScalesWithDuration(t *testing.T) {
	// Jitter of 0.5 is the neutral roll: no adjustment.
	coordinator, _, _ := newTestCoordinator(t, testfixtures.NewChannelStub(), 0.5)

	cases := []struct {
		duration time.Duration
		want     time.Duration
	}{
		{30 * time.Minute, 5 * time.Minute},
		{60 * time.Minute, 10 * time.Minute},
		{90 * time.Minute, 15 * time.Minute},
		{10 * time.Minute, 3 * time.Minute},   // clamped up
		{4 * time.Hour, 15 * time.Minute},     // clamped down
		{15 * time.Minute, 3 * time.Minute},   // 2.5m raw, clamped up
	}

	for _, tc := range cases {
		if got := coordinator.Interval(tc.duration); got != tc.want {
			t.Errorf("Interval(%v) = %v, want %v", tc.duration, got, tc.want)
		}
	}
}

func TestIntervalJitterBounds(t *testing.T) {
	stub := testfixtures.NewChannelStub()

	low, _, _ := newTestCoordinator(t, stub, 0)
	got := low.Interval(30 * time.Minute)
	if got < 3*time.Minute+29*time.Second || got > 3*time.Minute+31*time.Second {
		t.Errorf("lowest jitter roll: got %v, want about 3m30s", got)
	}

	high, _, _ := newTestCoordinator(t, stub, 0.999)
	got = high.Interval(30 * time.Minute)
	if got <= 5*time.Minute || got > 6*time.Minute+30*time.Second {
		t.Errorf("highest jitter roll out of bounds: %v", got)
	}
}

func TestSessionTicksUntilSpent(t *testing.T) {
	stub := testfixtures.NewChannelStub()
	stub.Connect("user-1")
	coordinator, clock, timers := newTestCoordinator(t, stub, 0.5)

	// 30 minutes at a 5-minute cadence: six ticks, then the session ends.
	coordinator.StartSession("user-1", "schedule-a", 30*time.Minute)
	if coordinator.ActiveSessions() != 1 {
		t.Fatal("expected one active session")
	}

	for i := 0; i < 6; i++ {
		clock.Advance(5 * time.Minute)
		if fired := timers.FireDue(); fired != 1 {
			t.Fatalf("tick %d: expected 1 timer to fire, got %d", i+1, fired)
		}
	}

	events := stub.Events()
	if len(events) != 6 {
		t.Fatalf("expected 6 check-in events, got %d", len(events))
	}
	if events[0].UserID != "user-1" || events[0].Event.Type != "check_in" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if coordinator.ActiveSessions() != 0 {
		t.Error("session should end once its ticks are spent")
	}
	if got := len(timers.Pending()); got != 0 {
		t.Errorf("expected no armed timers, got %d", got)
	}
}

func TestTickStopsWhenChannelGone(t *testing.T) {
	stub := testfixtures.NewChannelStub()
	stub.Connect("user-1")
	coordinator, clock, timers := newTestCoordinator(t, stub, 0.5)

	coordinator.StartSession("user-1", "schedule-a", 30*time.Minute)
	stub.Disconnect("user-1")

	clock.Advance(5 * time.Minute)
	timers.FireDue()

	if len(stub.Events()) != 0 {
		t.Error("no event should be sent after disconnect")
	}
	if coordinator.ActiveSessions() != 0 {
		t.Error("session should tear down when the channel is gone")
	}
}

func TestFailedSendKeepsCadence(t *testing.T) {
	stub := testfixtures.NewChannelStub()
	stub.Connect("user-1")
	stub.SendErr = errors.New("write failed")
	coordinator, clock, timers := newTestCoordinator(t, stub, 0.5)

	coordinator.StartSession("user-1", "schedule-a", 30*time.Minute)

	clock.Advance(5 * time.Minute)
	timers.FireDue()

	if len(stub.Events()) != 0 {
		t.Error("failed send should record nothing")
	}
	if coordinator.ActiveSessions() != 1 {
		t.Error("a failed send must not end the session")
	}
	if got := len(timers.Pending()); got != 1 {
		t.Errorf("expected the next tick to be armed, got %d timers", got)
	}
}

func TestStartSessionReplacesExisting(t *testing.T) {
	stub := testfixtures.NewChannelStub()
	stub.Connect("user-1")
	coordinator, clock, timers := newTestCoordinator(t, stub, 0.5)

	coordinator.StartSession("user-1", "schedule-a", 30*time.Minute)
	coordinator.StartSession("user-1", "schedule-b", 60*time.Minute)

	if coordinator.ActiveSessions() != 1 {
		t.Fatalf("expected one active session, got %d", coordinator.ActiveSessions())
	}
	if got := len(timers.Pending()); got != 1 {
		t.Fatalf("expected the replaced timer to be stopped, got %d pending", got)
	}

	// The surviving cadence is the second session's 10-minute interval.
	clock.Advance(5 * time.Minute)
	if fired := timers.FireDue(); fired != 0 {
		t.Errorf("old cadence fired %d timers", fired)
	}
	clock.Advance(5 * time.Minute)
	if fired := timers.FireDue(); fired != 1 {
		t.Errorf("expected the new cadence to fire, got %d", fired)
	}
}

func TestEndSessionStopsTimer(t *testing.T) {
	stub := testfixtures.NewChannelStub()
	stub.Connect("user-1")
	coordinator, clock, timers := newTestCoordinator(t, stub, 0.5)

	coordinator.StartSession("user-1", "schedule-a", 30*time.Minute)
	coordinator.EndSession("user-1")

	if coordinator.ActiveSessions() != 0 {
		t.Error("expected no active sessions")
	}

	clock.Advance(time.Hour)
	timers.FireDue()
	if len(stub.Events()) != 0 {
		t.Error("ended session must not tick")
	}
}

func TestShutdownStopsEverySession(t *testing.T) {
	stub := testfixtures.NewChannelStub()
	stub.Connect("user-1")
	stub.Connect("user-2")
	coordinator, clock, timers := newTestCoordinator(t, stub, 0.5)

	coordinator.StartSession("user-1", "schedule-a", 30*time.Minute)
	coordinator.StartSession("user-2", "schedule-b", 30*time.Minute)

	coordinator.Shutdown()

	if coordinator.ActiveSessions() != 0 {
		t.Error("expected no active sessions after shutdown")
	}
	clock.Advance(time.Hour)
	timers.FireDue()
	if len(stub.Events()) != 0 {
		t.Error("no session may tick after shutdown")
	}
}
