package memserver

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voluzi/memwatch/pkg/monitor"
)

const namespace = "memwatch"

// Exporter mirrors the latest Snapshot into Prometheus metrics on its own
// registry.
type Exporter struct {
	registry *prometheus.Registry

	heapUsed         prometheus.Gauge
	heapCommitted    prometheus.Gauge
	heapMax          prometheus.Gauge
	nonHeapUsed      prometheus.Gauge
	nonHeapCommitted prometheus.Gauge
	allocationRate   prometheus.Gauge
	gcCount          prometheus.Gauge
	gcTime           prometheus.Gauge
	samples          prometheus.Counter
	gcEvents         prometheus.Counter
}

var (
	_ monitor.Sink        = (*Exporter)(nil)
	_ monitor.GCEventSink = (*Exporter)(nil)
)

func NewExporter() (*Exporter, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	e := &Exporter{
		registry:         prometheus.NewRegistry(),
		heapUsed:         gauge("heap_used_bytes", "Heap memory in use."),
		heapCommitted:    gauge("heap_committed_bytes", "Heap memory obtained from the system."),
		heapMax:          gauge("heap_max_bytes", "Heap limit, or -1 when unbounded."),
		nonHeapUsed:      gauge("non_heap_used_bytes", "Runtime memory outside the heap in use."),
		nonHeapCommitted: gauge("non_heap_committed_bytes", "Runtime memory outside the heap obtained from the system."),
		allocationRate:   gauge("allocation_rate_mbps", "Heap growth between the last two samples in MB/s."),
		gcCount:          gauge("gc_count", "Completed GC cycles reported by the source."),
		gcTime:           gauge("gc_time_seconds", "Cumulative GC time reported by the source."),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples delivered by the monitor.",
		}),
		gcEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_events_total",
			Help:      "GC events detected by the monitor.",
		}),
	}

	for _, c := range []prometheus.Collector{
		e.heapUsed, e.heapCommitted, e.heapMax, e.nonHeapUsed, e.nonHeapCommitted,
		e.allocationRate, e.gcCount, e.gcTime, e.samples, e.gcEvents,
	} {
		if err := e.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Exporter) OnSample(s monitor.Snapshot) {
	e.heapUsed.Set(float64(s.HeapUsed))
	e.heapCommitted.Set(float64(s.HeapCommitted))
	if s.HeapMaxKnown() {
		e.heapMax.Set(float64(s.HeapMax))
	} else {
		e.heapMax.Set(-1)
	}
	e.nonHeapUsed.Set(float64(s.NonHeapUsed))
	e.nonHeapCommitted.Set(float64(s.NonHeapCommitted))
	e.allocationRate.Set(s.AllocationRateMBps)
	e.gcCount.Set(float64(s.GCCount))
	e.gcTime.Set(float64(s.GCTimeMillis) / 1000)
	e.samples.Inc()
}

func (e *Exporter) OnGCEvent(monitor.GCEvent) {
	e.gcEvents.Inc()
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
