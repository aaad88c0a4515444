package statscollector

import (
	"time"

	"github.com/voluzi/memwatch/pkg/monitor"
)

// AddSample records new sample.
func (sc *Collector) AddSample(s monitor.Snapshot) {
	sc.lock.Lock()
	defer sc.lock.Unlock()

	if sc.startedAt.IsZero() {
		sc.startedAt = s.Timestamp
	}
	elapsed := s.Timestamp.Sub(sc.startedAt).Seconds()

	sc.samples.Append(s)
	for metric, w := range sc.series {
		w.Append(Point{
			Timestamp: s.Timestamp,
			Elapsed:   elapsed,
			Value:     project(metric, s),
		})
	}
}

// GetSamples returns all samples within the given time window.
func (sc *Collector) GetSamples(since time.Duration) []monitor.Snapshot {
	cutoff := sc.now().Add(-since)

	sc.lock.RLock()
	defer sc.lock.RUnlock()

	var result []monitor.Snapshot
	for _, s := range sc.samples.Values() {
		if s.Timestamp.After(cutoff) {
			result = append(result, s)
		}
	}
	return result
}

// Latest returns the most recent sample.
func (sc *Collector) Latest() (monitor.Snapshot, bool) {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	return sc.samples.Last()
}

// Series returns the retained points of a metric, oldest first.
func (sc *Collector) Series(metric Metric) []Point {
	sc.lock.RLock()
	defer sc.lock.RUnlock()

	w, ok := sc.series[metric]
	if !ok {
		return nil
	}
	return w.Values()
}

// Events returns the retained GC events, oldest first.
func (sc *Collector) Events() []monitor.GCEvent {
	sc.lock.RLock()
	defer sc.lock.RUnlock()
	return sc.events.Values()
}
