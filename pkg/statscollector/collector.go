package statscollector

import (
	"sync"
	"time"

	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/window"
)

// Metric names a plotted series.
type Metric string

const (
	HeapUsed         Metric = "heap_used"
	HeapCommitted    Metric = "heap_committed"
	NonHeapUsed      Metric = "non_heap_used"
	NonHeapCommitted Metric = "non_heap_committed"
	AllocationRate   Metric = "allocation_rate"
)

// Metrics lists every series kept by a Collector.
var Metrics = []Metric{HeapUsed, HeapCommitted, NonHeapUsed, NonHeapCommitted, AllocationRate}

const DefaultEventCapacity = 100

// Point is one value of a series. Elapsed is measured in seconds from the first
// sample after the last reset, so every series shares the same time axis.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Elapsed   float64   `json:"elapsed"`
	Value     float64   `json:"value"`
}

// Collector keeps the recent history of a monitor's output. Each series has its
// own window and evicts independently.
type Collector struct {
	lock sync.RWMutex

	samples *window.Window[monitor.Snapshot]
	series  map[Metric]*window.Window[Point]
	events  *window.Window[monitor.GCEvent]

	startedAt time.Time
	now       func() time.Time
}

type Option func(*collectorOptions)

type collectorOptions struct {
	seriesCapacity map[Metric]int
	eventCapacity  int
	clock          func() time.Time
}

// WithSeriesCapacity overrides the window size of a single series.
func WithSeriesCapacity(metric Metric, n int) Option {
	return func(o *collectorOptions) {
		o.seriesCapacity[metric] = n
	}
}

// WithEventCapacity sets how many GC events are retained.
func WithEventCapacity(n int) Option {
	return func(o *collectorOptions) {
		o.eventCapacity = n
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *collectorOptions) {
		o.clock = clock
	}
}

// NewCollector creates a new Collector retaining maxSamples snapshots, and as
// many points per series unless overridden.
func NewCollector(maxSamples int, opts ...Option) *Collector {
	o := &collectorOptions{
		seriesCapacity: make(map[Metric]int),
		eventCapacity:  DefaultEventCapacity,
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	series := make(map[Metric]*window.Window[Point], len(Metrics))
	for _, metric := range Metrics {
		capacity, ok := o.seriesCapacity[metric]
		if !ok {
			capacity = maxSamples
		}
		series[metric] = window.New[Point](capacity)
	}

	return &Collector{
		samples: window.New[monitor.Snapshot](maxSamples),
		series:  series,
		events:  window.New[monitor.GCEvent](o.eventCapacity),
		now:     o.clock,
	}
}

var (
	_ monitor.Sink        = (*Collector)(nil)
	_ monitor.GCEventSink = (*Collector)(nil)
	_ monitor.ResetSink   = (*Collector)(nil)
)

func (sc *Collector) OnSample(s monitor.Snapshot) {
	sc.AddSample(s)
}

func (sc *Collector) OnGCEvent(e monitor.GCEvent) {
	sc.lock.Lock()
	defer sc.lock.Unlock()
	sc.events.Append(e)
}

// OnReset drops all history. The monitor calls it when monitoring (re)starts.
func (sc *Collector) OnReset() {
	sc.lock.Lock()
	defer sc.lock.Unlock()

	sc.samples.Clear()
	sc.events.Clear()
	for _, w := range sc.series {
		w.Clear()
	}
	sc.startedAt = time.Time{}
}

func project(metric Metric, s monitor.Snapshot) float64 {
	switch metric {
	case HeapUsed:
		return s.HeapUsedMB()
	case HeapCommitted:
		return s.HeapCommittedMB()
	case NonHeapUsed:
		return s.NonHeapUsedMB()
	case NonHeapCommitted:
		return s.NonHeapCommittedMB()
	case AllocationRate:
		return s.AllocationRateMBps
	}
	return 0
}

// ValidMetric reports whether m names a series kept by the Collector.
func ValidMetric(m Metric) bool {
	for _, metric := range Metrics {
		if metric == m {
			return true
		}
	}
	return false
}
