// Package checkin arms a randomized check-in cadence for live study
// sessions, independent of the reminder engine.
package checkin

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/example/study-reminders/internal/channel"
	"github.com/example/study-reminders/internal/registry"
)

const (
	baseInterval     = 5 * time.Minute
	minInterval      = 3 * time.Minute
	maxInterval      = 15 * time.Minute
	referenceSession = 30 * time.Minute
	jitterFraction   = 0.3
)

// ChannelRegistry is the live connection registry the coordinator sends
// check-in events through.
type ChannelRegistry interface {
	IsConnected(userID string) bool
	Send(userID string, event channel.Event) error
}

// TimerFactory arms a callback after the given duration. Injected so tests
// can drive ticks without sleeping.
type TimerFactory func(d time.Duration, fn func()) registry.Handle

// session is the in-memory check-in state for one connected user. Destroyed
// on disconnect or session end.
type session struct {
	scheduleID  string
	interval    time.Duration
	lastCheckIn time.Time
	remaining   int
	timer       registry.Handle
}

// Coordinator owns the per-user live session state and its tick timers.
type Coordinator struct {
	mu       sync.Mutex
	sessions map[string]*session
	channels ChannelRegistry
	now      func() time.Time
	newID    func() string
	newTimer TimerFactory
	jitter   func() float64
	logger   *slog.Logger
}

// Options bundles the optional dependencies of NewCoordinator.
type Options struct {
	Now          func() time.Time
	IDGenerator  func() string
	TimerFactory TimerFactory
	// Jitter returns a value in [0, 1); it is read once per session start.
	Jitter func() float64
	Logger *slog.Logger
}

// NewCoordinator wires a coordinator around the given channel registry.
func NewCoordinator(channels ChannelRegistry, opts Options) *Coordinator {
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
	jitter := opts.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		sessions: make(map[string]*session),
		channels: channels,
		now:      now,
		newID:    newID,
		newTimer: newTimer,
		jitter:   jitter,
		logger:   logger,
	}
}

// Interval computes the check-in cadence for a session of the given length:
// the 5-minute base scaled proportionally to the session duration, clamped
// to [3, 15] minutes, then jittered by up to ±30%. The jitter roll is taken
// once; ticks within a session are evenly spaced.
func (c *Coordinator) Interval(duration time.Duration) time.Duration {
	interval := time.Duration(float64(baseInterval) * float64(duration) / float64(referenceSession))
	if interval < minInterval {
		interval = minInterval
	}
	if interval > maxInterval {
		interval = maxInterval
	}

	factor := 1 + jitterFraction*(2*c.jitter()-1)
	return time.Duration(float64(interval) * factor)
}

// StartSession arms the check-in cadence for a user's live session. Any
// previous session for the user is replaced.
func (c *Coordinator) StartSession(userID, scheduleID string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.sessions[userID]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	interval := c.Interval(duration)
	remaining := int(duration / interval)
	if remaining < 1 {
		remaining = 1
	}

	s := &session{
		scheduleID:  scheduleID,
		interval:    interval,
		lastCheckIn: c.now(),
		remaining:   remaining,
	}
	c.sessions[userID] = s
	s.timer = c.newTimer(interval, func() { c.tick(userID) })

	c.logger.Info("check-in cadence started",
		"user_id", userID,
		"schedule_id", scheduleID,
		"interval", interval,
		"ticks", remaining)
}

// EndSession tears down the user's check-in state.
func (c *Coordinator) EndSession(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked(userID)
}

// ActiveSessions returns the number of users with a live cadence.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Shutdown stops every session timer.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for userID := range c.sessions {
		c.endLocked(userID)
	}
}

func (c *Coordinator) endLocked(userID string) {
	if s, ok := c.sessions[userID]; ok {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(c.sessions, userID)
	}
}

// tick sends one check-in event and re-arms for the next, stopping itself
// when the user's channel is gone or the session's ticks are spent. A failed
// send is logged only; the next tick will try again.
func (c *Coordinator) tick(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[userID]
	if !ok {
		return
	}

	if !c.channels.IsConnected(userID) {
		c.logger.Info("check-in channel gone, stopping cadence", "user_id", userID)
		c.endLocked(userID)
		return
	}

	event := channel.Event{
		ID:        c.newID(),
		Type:      "check_in",
		Message:   "Still studying? Tap to check in.",
		Timestamp: c.now(),
	}
	if err := c.channels.Send(userID, event); err != nil {
		c.logger.Warn("check-in delivery failed",
			"user_id", userID, "schedule_id", s.scheduleID, "error", err)
	} else {
		s.lastCheckIn = c.now()
	}

	s.remaining--
	if s.remaining <= 0 {
		c.endLocked(userID)
		return
	}

	s.timer = c.newTimer(s.interval, func() { c.tick(userID) })
}
