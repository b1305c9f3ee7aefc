// Package registry tracks the live in-memory timers armed for each schedule.
// The registry is process-local bookkeeping only; it is rebuilt from the
// persistent store on every start and never trusted across restarts.
package registry

import "sync"

// Handle is an armed timer that can be stopped. Stop reports whether the
// timer was still pending.
type Handle interface {
	Stop() bool
}

// TimerRegistry maps schedule identifiers to their live timer handles. It is
// owned by the scheduling engine and injected at construction so tests can
// use isolated instances.
type TimerRegistry struct {
	mu      sync.Mutex
	entries map[string][]Handle
}

// New returns an empty registry.
func New() *TimerRegistry {
	return &TimerRegistry{entries: make(map[string][]Handle)}
}

// Register records a live handle for the schedule.
func (r *TimerRegistry) Register(scheduleID string, handle Handle) {
	if scheduleID == "" || handle == nil {
		return
	}

	r.mu.Lock()
	r.entries[scheduleID] = append(r.entries[scheduleID], handle)
	r.mu.Unlock()
}

// Deregister removes a single handle for the schedule without stopping it,
// used when a one-shot timer has already fired.
func (r *TimerRegistry) Deregister(scheduleID string, handle Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles := r.entries[scheduleID]
	for i, h := range handles {
		if h == handle {
			r.entries[scheduleID] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
	if len(r.entries[scheduleID]) == 0 {
		delete(r.entries, scheduleID)
	}
}

// CancelAll stops every handle registered for the schedule and removes the
// entry. Handles are stopped before the map entry is replaced so a stale
// timer can never fire after a reschedule. Returns the number of handles
// that were still pending.
func (r *TimerRegistry) CancelAll(scheduleID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stopped := 0
	for _, handle := range r.entries[scheduleID] {
		if handle.Stop() {
			stopped++
		}
	}
	delete(r.entries, scheduleID)

	return stopped
}

// CancelAllGlobal stops every registered handle. Used at process shutdown;
// no persistence side effects are needed since state is store-derived.
func (r *TimerRegistry) CancelAllGlobal() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stopped := 0
	for id, handles := range r.entries {
		for _, handle := range handles {
			if handle.Stop() {
				stopped++
			}
		}
		delete(r.entries, id)
	}

	return stopped
}

// Count returns the number of live handles registered for the schedule.
func (r *TimerRegistry) Count(scheduleID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[scheduleID])
}

// Len returns the number of schedules with at least one live handle.
func (r *TimerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
