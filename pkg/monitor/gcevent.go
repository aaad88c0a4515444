package monitor

import (
	"fmt"
	"time"
)

// GCEvent records that the cumulative GC counter advanced since the previous
// observation.
type GCEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	GCCount      uint64    `json:"gc_count"`
	GCTimeMillis uint64    `json:"gc_time_millis"`
	// Cycles is how many collections happened since the previous observation.
	Cycles uint64 `json:"cycles"`
}

func (e GCEvent) String() string {
	return fmt.Sprintf("[%s] GC Event: Count=%d, Total Time=%dms",
		e.Timestamp.Format(time.TimeOnly), e.GCCount, e.GCTimeMillis)
}

// GCDetector turns a cumulative GC counter into discrete events. Each increase
// is reported exactly once.
type GCDetector struct {
	last   uint64
	primed bool
}

// Observe compares gcCount with the last observed value. The first call only
// records a baseline, so collections that happened before monitoring started
// are not reported. The baseline always moves to gcCount, including when the
// counter went backwards.
func (d *GCDetector) Observe(at time.Time, gcCount, gcTimeMillis uint64) *GCEvent {
	if !d.primed {
		d.last = gcCount
		d.primed = true
		return nil
	}

	last := d.last
	d.last = gcCount
	if gcCount <= last {
		return nil
	}

	return &GCEvent{
		Timestamp:    at,
		GCCount:      gcCount,
		GCTimeMillis: gcTimeMillis,
		Cycles:       gcCount - last,
	}
}

// Baseline returns the last observed count and whether one was recorded.
func (d *GCDetector) Baseline() (uint64, bool) {
	return d.last, d.primed
}
