// Package monitor samples memory and GC counters on a fixed schedule, derives
// the allocation rate and GC events, and delivers composed Snapshots to a Sink.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrInvalidPeriod = errors.New("sampling period must be positive")
	ErrNilSink       = errors.New("a sink is required")
	ErrStopTimeout   = errors.New("monitor worker did not stop within the grace period")
)

// Monitor is either Stopped or Running. Start and Stop are the only
// transitions, and both are no-ops when already in the target state.
type Monitor struct {
	source Source
	cfg    *Options

	mu   sync.Mutex
	task *task
	// last is the most recently stopped task. Its worker may still be
	// finishing a tick while Stop waits for it.
	last *task
}

// task is one Running period. Each Start creates a new task, so a worker
// abandoned by a forced Stop never shares state with its successor.
type task struct {
	stop     context.CancelFunc
	kill     context.CancelFunc
	done     chan struct{}
	released chan struct{}
	// prev is the task that was stopping when this one started.
	prev *task

	// mu is held for the whole of every delivery to the sink.
	mu     sync.Mutex
	closed atomic.Bool
}

// deliver runs fn unless the task was abandoned.
func (t *task) deliver(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return
	}
	fn()
}

// abandon suppresses every delivery that has not started yet. When a delivery
// holds the lock it is left to finish on its own.
func (t *task) abandon() {
	if t.mu.TryLock() {
		t.closed.Store(true)
		t.mu.Unlock()
		return
	}
	t.closed.Store(true)
}

func New(source Source, opts ...Option) *Monitor {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Monitor{
		source: source,
		cfg:    options,
	}
}

// Start begins sampling after initialDelay and then every period. Calling Start
// while running does nothing. When a previous worker is still stopping, the
// new one waits for it before touching the sink.
func (m *Monitor) Start(initialDelay, period time.Duration, sink Sink) error {
	if period <= 0 {
		return errors.WithStack(ErrInvalidPeriod)
	}
	if sink == nil {
		return errors.WithStack(ErrNilSink)
	}
	if initialDelay < 0 {
		initialDelay = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.task != nil {
		log.Warn("memory monitoring is already running")
		return nil
	}

	stopCtx, stop := context.WithCancel(context.Background())
	killCtx, kill := context.WithCancel(context.Background())
	t := &task{
		stop:     stop,
		kill:     kill,
		done:     make(chan struct{}),
		released: make(chan struct{}),
		prev:     m.last,
	}
	m.task = t

	go m.run(stopCtx, killCtx, t, t.prev, NewSampler(m.source, m.cfg.Clock), initialDelay, period, sink)

	log.WithFields(log.Fields{
		"initial-delay": initialDelay,
		"period":        period,
	}).Info("memory monitoring started")
	return nil
}

// Stop prevents further ticks and waits up to the grace period for the tick in
// progress. When the grace period elapses the worker is abandoned: its source
// read is cancelled and no delivery starts afterwards. ErrStopTimeout is
// returned in that case, but the monitor is stopped either way.
//
// The monitor reports Stopped as soon as Stop is called; the wait happens
// without holding the monitor lock.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	t := m.task
	if t == nil {
		m.mu.Unlock()
		return nil
	}
	m.task = nil
	m.last = t
	t.stop()
	m.mu.Unlock()

	// a task is released only once its predecessor is, so workers never
	// overlap across quick restarts
	defer func() {
		if t.prev != nil {
			<-t.prev.released
			t.prev = nil
		}
		close(t.released)
	}()
	defer t.kill()

	timer := time.NewTimer(m.cfg.GracePeriod)
	defer timer.Stop()

	select {
	case <-t.done:
		log.Info("memory monitoring stopped")
		return nil

	case <-timer.C:
		t.abandon()
		log.WithField("grace-period", m.cfg.GracePeriod).Warn("monitor worker did not stop in time, forcing it")
		return errors.WithStack(ErrStopTimeout)
	}
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.task != nil
}

func (m *Monitor) run(ctx, readCtx context.Context, t, prev *task, sampler *Sampler, initialDelay, period time.Duration, sink Sink) {
	defer close(t.done)

	if prev != nil {
		select {
		case <-ctx.Done():
			return
		case <-prev.released:
		}
	}

	if rs, ok := sink.(ResetSink); ok {
		t.deliver(rs.OnReset)
	}

	delay := time.NewTimer(initialDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}

	// Fixed rate, anchored at the first tick. A tick that overruns leaves at
	// most one pending tick behind; ticks never run concurrently.
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		m.tick(readCtx, t, sampler, sink)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (m *Monitor) tick(ctx context.Context, t *task, sampler *Sampler, sink Sink) {
	snapshot, event, err := sampler.Sample(ctx)
	if err != nil {
		t.deliver(func() { m.cfg.ErrorHandler(err) })
		return
	}

	t.deliver(func() {
		sink.OnSample(snapshot)
		if event == nil {
			return
		}
		if es, ok := sink.(GCEventSink); ok {
			es.OnGCEvent(*event)
		}
	})
}
