package monitor

import (
	"fmt"
	"math"
	"time"
)

// HeapMaxUnknown marks a heap without an upper bound.
const HeapMaxUnknown uint64 = math.MaxUint64

const bytesPerMB = 1024.0 * 1024.0

// Reading is the raw output of a Source. Cumulative counters (GCCount and
// GCTimeMillis) never decrease during the lifetime of the observed process.
type Reading struct {
	HeapUsed         uint64 `json:"heap_used_bytes"`
	HeapCommitted    uint64 `json:"heap_committed_bytes"`
	HeapMax          uint64 `json:"heap_max_bytes"`
	NonHeapUsed      uint64 `json:"non_heap_used_bytes"`
	NonHeapCommitted uint64 `json:"non_heap_committed_bytes"`
	GCCount          uint64 `json:"gc_count"`
	GCTimeMillis     uint64 `json:"gc_time_millis"`
}

// Snapshot is one tick's fully composed record. It is never mutated after the
// Sampler builds it.
type Snapshot struct {
	Reading
	Timestamp          time.Time `json:"timestamp"`
	AllocationRateMBps float64   `json:"allocation_rate_mbps"`
}

func (s Snapshot) TimestampMillis() int64 {
	return s.Timestamp.UnixMilli()
}

// HeapMaxKnown reports whether the heap has an upper bound.
func (s Snapshot) HeapMaxKnown() bool {
	return s.HeapMax != HeapMaxUnknown
}

func (s Snapshot) HeapUsedMB() float64         { return BytesToMB(s.HeapUsed) }
func (s Snapshot) HeapCommittedMB() float64    { return BytesToMB(s.HeapCommitted) }
func (s Snapshot) NonHeapUsedMB() float64      { return BytesToMB(s.NonHeapUsed) }
func (s Snapshot) NonHeapCommittedMB() float64 { return BytesToMB(s.NonHeapCommitted) }

// HeapMaxMB returns the heap limit in MB, or -1 when the heap is unbounded.
func (s Snapshot) HeapMaxMB() float64 {
	if !s.HeapMaxKnown() {
		return -1
	}
	return BytesToMB(s.HeapMax)
}

func (s Snapshot) String() string {
	heapMax := "unbounded"
	if s.HeapMaxKnown() {
		heapMax = fmt.Sprintf("%.2fMB", s.HeapMaxMB())
	}
	return fmt.Sprintf(
		"Time: %dms | Heap: %.2fMB/%.2fMB (Max %s) | Non-Heap: %.2fMB/%.2fMB | GC: %d (Time: %dms) | Alloc Rate: %.2f MB/s",
		s.TimestampMillis(), s.HeapUsedMB(), s.HeapCommittedMB(), heapMax,
		s.NonHeapUsedMB(), s.NonHeapCommittedMB(), s.GCCount, s.GCTimeMillis, s.AllocationRateMBps,
	)
}

// BytesToMB converts a byte count to binary megabytes.
func BytesToMB(b uint64) float64 {
	return float64(b) / bytesPerMB
}
