package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_StartValidation(t *testing.T) {
	m := New(&scriptedSource{readings: []Reading{{}}})

	err := m.Start(0, 0, &recordingSink{})
	assert.True(t, errors.Is(err, ErrInvalidPeriod))

	err = m.Start(0, time.Second, nil)
	assert.True(t, errors.Is(err, ErrNilSink))

	assert.False(t, m.Running())
}

func TestMonitor_DeliversInOrder(t *testing.T) {
	source := &scriptedSource{
		readings: []Reading{
			{HeapUsed: 10 * mb, GCCount: 1},
			{HeapUsed: 12 * mb, GCCount: 1},
			{HeapUsed: 8 * mb, GCCount: 2},
			{HeapUsed: 9 * mb, GCCount: 2},
		},
	}
	sink := &recordingSink{}
	m := New(source)

	require.NoError(t, m.Start(0, 5*time.Millisecond, sink))
	assert.True(t, m.Running())
	assert.Eventually(t, func() bool { return len(sink.Snapshots()) >= 4 }, time.Second, time.Millisecond)
	require.NoError(t, m.Stop())
	assert.False(t, m.Running())

	snapshots := sink.Snapshots()
	for i := 1; i < len(snapshots); i++ {
		assert.False(t, snapshots[i].Timestamp.Before(snapshots[i-1].Timestamp))
	}
	for _, s := range snapshots {
		assert.GreaterOrEqual(t, s.AllocationRateMBps, 0.0)
	}
	assert.Equal(t, 0.0, snapshots[0].AllocationRateMBps)
	assert.Equal(t, 0.0, snapshots[2].AllocationRateMBps)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].GCCount)
	assert.Equal(t, 1, sink.Resets())
}

func TestMonitor_StartWhileRunningIsNoop(t *testing.T) {
	sink := &recordingSink{}
	m := New(&scriptedSource{readings: []Reading{{}}})

	other := &recordingSink{}
	require.NoError(t, m.Start(0, time.Hour, sink))
	require.NoError(t, m.Start(0, time.Millisecond, other))
	assert.Eventually(t, func() bool { return sink.Resets() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, other.Resets())

	require.NoError(t, m.Stop())
	require.NoError(t, m.Stop())
	assert.False(t, m.Running())
}

func TestMonitor_StopBeforeFirstTick(t *testing.T) {
	sink := &recordingSink{}
	m := New(&scriptedSource{readings: []Reading{{}}})

	require.NoError(t, m.Start(time.Hour, time.Second, sink))
	require.NoError(t, m.Stop())
	assert.Empty(t, sink.Snapshots())
}

func TestMonitor_RestartResetsBaselines(t *testing.T) {
	var count atomic.Uint64
	var heap atomic.Uint64
	source := SourceFunc(func(context.Context) (Reading, error) {
		return Reading{HeapUsed: heap.Load(), GCCount: count.Load()}, nil
	})
	m := New(source)

	first := &recordingSink{}
	count.Store(3)
	heap.Store(10 * mb)
	require.NoError(t, m.Start(0, 5*time.Millisecond, first))
	assert.Eventually(t, func() bool { return len(first.Snapshots()) >= 1 }, time.Second, time.Millisecond)
	require.NoError(t, m.Stop())

	// collections and allocations happening while stopped
	count.Store(40)
	heap.Store(200 * mb)

	second := &recordingSink{}
	require.NoError(t, m.Start(0, time.Hour, second))
	assert.Eventually(t, func() bool { return len(second.Snapshots()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, m.Stop())

	snapshot := second.Snapshots()[0]
	assert.Equal(t, 0.0, snapshot.AllocationRateMBps)
	assert.Equal(t, uint64(40), snapshot.GCCount)
	assert.Empty(t, second.Events())
}

func TestMonitor_SourceFailureSkipsTick(t *testing.T) {
	source := &scriptedSource{
		readings: []Reading{{GCCount: 1}},
		fail:     map[int]bool{0: true, 2: true},
	}
	sink := &recordingSink{}

	var mu sync.Mutex
	var failures []error
	m := New(source, WithErrorHandler(func(err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, err)
	}))

	require.NoError(t, m.Start(0, 2*time.Millisecond, sink))
	assert.Eventually(t, func() bool { return source.Calls() >= 5 }, time.Second, time.Millisecond)
	require.NoError(t, m.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(failures), 2)
	assert.True(t, errors.Is(failures[0], errSourceDown))
	assert.Equal(t, source.Calls()-len(failures), len(sink.Snapshots()))
}

func TestMonitor_ForcedStop(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	sink := SinkFunc(func(Snapshot) {
		if calls.Add(1) == 1 {
			<-release
		}
	})

	m := New(&scriptedSource{readings: []Reading{{}}}, WithGracePeriod(20*time.Millisecond))
	require.NoError(t, m.Start(0, time.Millisecond, sink))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	err := m.Stop()
	assert.True(t, errors.Is(err, ErrStopTimeout))
	assert.False(t, m.Running())

	close(release)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMonitor_ForcedStopCancelsRead(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	source := SourceFunc(func(ctx context.Context) (Reading, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return Reading{}, ctx.Err()
	})

	var handled atomic.Int32
	m := New(source,
		WithGracePeriod(10*time.Millisecond),
		WithErrorHandler(func(error) { handled.Add(1) }),
	)
	require.NoError(t, m.Start(0, time.Second, &recordingSink{}))
	<-started

	assert.True(t, errors.Is(m.Stop(), ErrStopTimeout))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("read was not cancelled")
	}
	// the abandoned worker's failure is not reported
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, int32(0), handled.Load())
}

func TestMonitor_ForcedStopDropsLateReading(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	source := SourceFunc(func(context.Context) (Reading, error) {
		close(started)
		<-release
		return Reading{HeapUsed: mb}, nil
	})

	sink := &recordingSink{}
	m := New(source, WithGracePeriod(10*time.Millisecond))
	require.NoError(t, m.Start(0, time.Hour, sink))
	<-started

	assert.True(t, errors.Is(m.Stop(), ErrStopTimeout))
	close(release)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.Snapshots())
}

func TestMonitor_StopDoesNotBlockStatus(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	first := SinkFunc(func(Snapshot) {
		if calls.Add(1) == 1 {
			<-release
		}
	})

	m := New(&scriptedSource{readings: []Reading{{}}}, WithGracePeriod(time.Second))
	require.NoError(t, m.Start(0, time.Millisecond, first))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()

	// Running answers while Stop is still waiting for the blocked tick
	require.Eventually(t, func() bool { return !m.Running() }, 100*time.Millisecond, time.Millisecond)

	second := &recordingSink{}
	require.NoError(t, m.Start(0, time.Millisecond, second))
	assert.True(t, m.Running())

	// the new worker waits for the old one to finish
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, second.Resets())
	assert.Empty(t, second.Snapshots())

	close(release)
	require.NoError(t, <-stopped)
	assert.Eventually(t, func() bool { return len(second.Snapshots()) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, second.Resets())
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, m.Stop())
}

func TestSinks_FanOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	var plain []Snapshot
	sinks := Sinks{a, SinkFunc(func(s Snapshot) { plain = append(plain, s) }), b}

	sinks.OnReset()
	sinks.OnSample(Snapshot{Reading: Reading{HeapUsed: 1}})
	sinks.OnGCEvent(GCEvent{GCCount: 1})

	for _, r := range []*recordingSink{a, b} {
		assert.Equal(t, 1, r.Resets())
		assert.Len(t, r.Snapshots(), 1)
		assert.Len(t, r.Events(), 1)
	}
	assert.Len(t, plain, 1)
}
