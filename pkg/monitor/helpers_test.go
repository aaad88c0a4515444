package monitor

import (
	"context"
	"sync"
	"time"

	"emperror.dev/errors"
)

var errSourceDown = errors.New("source down")

// scriptedSource returns its readings in order and repeats the last one once
// the script is exhausted. Reads whose index is set in fail return an error.
type scriptedSource struct {
	mu       sync.Mutex
	readings []Reading
	fail     map[int]bool
	calls    int
}

func (s *scriptedSource) Read(_ context.Context) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if s.fail[i] {
		return Reading{}, errSourceDown
	}
	if i >= len(s.readings) {
		i = len(s.readings) - 1
	}
	return s.readings[i], nil
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stepClock advances by step on every call.
func stepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

// recordingSink stores everything it receives.
type recordingSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
	events    []GCEvent
	resets    int
}

func (r *recordingSink) OnSample(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, s)
}

func (r *recordingSink) OnGCEvent(e GCEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) OnReset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
}

func (r *recordingSink) Snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snapshots...)
}

func (r *recordingSink) Events() []GCEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GCEvent(nil), r.events...)
}

func (r *recordingSink) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}
