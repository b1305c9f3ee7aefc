package testfixtures

import (
	"context"
	"sync"

	"github.com/example/study-reminders/internal/channel"
)

// ReminderCall records one dispatcher invocation.
type ReminderCall struct {
	Recipient          string
	ScheduleTitle      string
	MinutesBefore      int
	StartTimeFormatted string
	DurationMinutes    int
}

// DispatcherStub records reminder sends and optionally fails them.
type DispatcherStub struct {
	mu    sync.Mutex
	Err   error
	calls []ReminderCall
}

// SendReminder implements the engine's Dispatcher interface.
func (d *DispatcherStub) SendReminder(_ context.Context, recipient, scheduleTitle string, minutesBefore int, startTimeFormatted string, durationMinutes int) error {
	d.mu.Lock()
	d.calls = append(d.calls, ReminderCall{
		Recipient:          recipient,
		ScheduleTitle:      scheduleTitle,
		MinutesBefore:      minutesBefore,
		StartTimeFormatted: startTimeFormatted,
		DurationMinutes:    durationMinutes,
	})
	d.mu.Unlock()
	return d.Err
}

// Calls returns a copy of the recorded invocations.
func (d *DispatcherStub) Calls() []ReminderCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ReminderCall, len(d.calls))
	copy(out, d.calls)
	return out
}

// ChannelEvent records one event sent over the stubbed live channel.
type ChannelEvent struct {
	UserID string
	Event  channel.Event
}

// ChannelStub implements the check-in coordinator's channel registry with an
// in-memory connected-user set.
type ChannelStub struct {
	mu        sync.Mutex
	connected map[string]bool
	SendErr   error
	events    []ChannelEvent
}

// NewChannelStub returns a stub with no connected users.
func NewChannelStub() *ChannelStub {
	return &ChannelStub{connected: make(map[string]bool)}
}

// Connect marks a user as connected.
func (c *ChannelStub) Connect(userID string) {
	c.mu.Lock()
	c.connected[userID] = true
	c.mu.Unlock()
}

// Disconnect removes a user from the connected set.
func (c *ChannelStub) Disconnect(userID string) {
	c.mu.Lock()
	delete(c.connected, userID)
	c.mu.Unlock()
}

// IsConnected reports whether the user has a live channel.
func (c *ChannelStub) IsConnected(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected[userID]
}

// Send records the event for a connected user.
func (c *ChannelStub) Send(userID string, event channel.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return c.SendErr
	}
	c.events = append(c.events, ChannelEvent{UserID: userID, Event: event})
	return nil
}

// Events returns a copy of the recorded events.
func (c *ChannelStub) Events() []ChannelEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChannelEvent, len(c.events))
	copy(out, c.events)
	return out
}
