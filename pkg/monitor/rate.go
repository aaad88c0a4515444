package monitor

import "time"

// Point is the slice of a sample the allocation rate is computed from.
type Point struct {
	At       time.Time
	HeapUsed uint64
}

// AllocationRate estimates MB allocated per second between prev and cur.
//
// The result is zero when there is no previous point, when no time elapsed
// (or the clock went backwards), and when heap usage did not grow. Memory
// freed by a collection is never counted, so an interval containing a GC
// reports zero instead of a negative or partial value.
func AllocationRate(prev *Point, cur Point) float64 {
	if prev == nil {
		return 0
	}

	elapsed := cur.At.Sub(prev.At)
	if elapsed <= 0 {
		return 0
	}

	if cur.HeapUsed <= prev.HeapUsed {
		return 0
	}

	delta := cur.HeapUsed - prev.HeapUsed
	return BytesToMB(delta) / elapsed.Seconds()
}
