package monitor

import (
	"context"
	"time"

	"emperror.dev/errors"
)

// Source reads the current memory and GC counters of the observed process.
type Source interface {
	Read(ctx context.Context) (Reading, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Reading, error)

func (f SourceFunc) Read(ctx context.Context) (Reading, error) {
	return f(ctx)
}

// Sampler composes Snapshots from consecutive readings. It only remembers the
// previous point needed for rate estimation and the GC baseline.
//
// A Sampler is owned by a single goroutine.
type Sampler struct {
	source   Source
	now      func() time.Time
	prev     *Point
	detector GCDetector
}

func NewSampler(source Source, clock func() time.Time) *Sampler {
	if clock == nil {
		clock = time.Now
	}
	return &Sampler{source: source, now: clock}
}

// Sample reads the source and builds the next Snapshot, plus a GCEvent when
// the collection counter advanced. When the source fails nothing is updated.
func (s *Sampler) Sample(ctx context.Context) (Snapshot, *GCEvent, error) {
	reading, err := s.source.Read(ctx)
	if err != nil {
		return Snapshot{}, nil, errors.Wrap(err, "failed to read metrics source")
	}
	at := s.now()

	cur := Point{At: at, HeapUsed: reading.HeapUsed}
	snapshot := Snapshot{
		Reading:            reading,
		Timestamp:          at,
		AllocationRateMBps: AllocationRate(s.prev, cur),
	}
	event := s.detector.Observe(at, reading.GCCount, reading.GCTimeMillis)

	s.prev = &cur
	return snapshot, event, nil
}
