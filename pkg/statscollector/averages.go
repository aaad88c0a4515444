package statscollector

import "time"

// GCActivity summarizes collections between the oldest and newest sample of a
// time window.
type GCActivity struct {
	Cycles      uint64 `json:"cycles"`
	PauseMillis uint64 `json:"pause_millis"`
}

// AverageHeapUsage returns the average heap usage in bytes over the given time
// window.
func (sc *Collector) AverageHeapUsage(since time.Duration) uint64 {
	samples := sc.GetSamples(since)
	if len(samples) == 0 {
		return 0
	}

	var total uint64
	for _, s := range samples {
		total += s.HeapUsed
	}
	return total / uint64(len(samples))
}

// AverageAllocationRate returns the mean allocation rate in MB/s over the given
// time window.
func (sc *Collector) AverageAllocationRate(since time.Duration) float64 {
	samples := sc.GetSamples(since)
	if len(samples) == 0 {
		return 0
	}

	var total float64
	for _, s := range samples {
		total += s.AllocationRateMBps
	}
	return total / float64(len(samples))
}

// GCActivity computes collections and pause time within the given time window.
// Counter decreases between samples are ignored.
func (sc *Collector) GCActivity(since time.Duration) GCActivity {
	samples := sc.GetSamples(since)
	if len(samples) < 2 {
		return GCActivity{}
	}

	var activity GCActivity
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		if cur.GCCount > prev.GCCount {
			activity.Cycles += cur.GCCount - prev.GCCount
		}
		if cur.GCTimeMillis > prev.GCTimeMillis {
			activity.PauseMillis += cur.GCTimeMillis - prev.GCTimeMillis
		}
	}
	return activity
}
