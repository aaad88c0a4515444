package tracer

import (
	"context"
	"sync"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/memwatch/pkg/monitor"
)

var ErrNoTrace = errors.New("no gc trace line received yet")

const bytesPerMB = 1024 * 1024

// Source exposes the state described by the latest gctrace line as a
// monitor.Source. GC time accumulates the stop-the-world phases of every line
// seen since the source was opened.
type Source struct {
	tracer *GCTracer
	done   chan struct{}

	mu        sync.RWMutex
	last      *Trace
	stwMillis float64
}

var _ monitor.Source = (*Source)(nil)

func NewSource(path string, createFifo bool) (*Source, error) {
	t, err := NewGCTracer(path, createFifo)
	if err != nil {
		return nil, err
	}

	s := &Source{
		tracer: t,
		done:   make(chan struct{}),
	}
	go t.Start()
	go s.consume()
	return s, nil
}

func (s *Source) consume() {
	defer close(s.done)

	for trace := range s.tracer.Traces {
		if trace.Err != nil {
			log.WithError(trace.Err).Warn("error reading gc trace")
			continue
		}
		s.observe(trace)
	}
}

func (s *Source) observe(trace *Trace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stwMillis += trace.PauseMillis()
	s.last = trace
}

func (s *Source) Read(_ context.Context) (monitor.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return monitor.Reading{}, errors.WithStack(ErrNoTrace)
	}
	return readingFromTrace(s.last, s.stwMillis), nil
}

// Last returns the most recent trace, if any.
func (s *Source) Last() (Trace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Trace{}, false
	}
	return *s.last, true
}

func (s *Source) Close() error {
	err := s.tracer.Stop()
	<-s.done
	return err
}

// readingFromTrace maps a trace onto a Reading. A cycle that overshoots its
// goal reports the end heap as committed, keeping used <= committed.
func readingFromTrace(t *Trace, stwMillis float64) monitor.Reading {
	nonHeap := (t.StacksMB + t.GlobalsMB) * bytesPerMB
	return monitor.Reading{
		HeapUsed:         t.HeapEndMB * bytesPerMB,
		HeapCommitted:    max(t.HeapGoalMB, t.HeapEndMB) * bytesPerMB,
		HeapMax:          monitor.HeapMaxUnknown,
		NonHeapUsed:      nonHeap,
		NonHeapCommitted: nonHeap,
		GCCount:          t.Cycle,
		GCTimeMillis:     uint64(stwMillis),
	}
}
