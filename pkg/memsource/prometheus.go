package memsource

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"emperror.dev/errors"
	prom "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/voluzi/memwatch/pkg/monitor"
)

const (
	metricHeapAlloc   = "go_memstats_heap_alloc_bytes"
	metricHeapSys     = "go_memstats_heap_sys_bytes"
	metricMemLimit    = "go_gc_gomemlimit_bytes"
	metricSys         = "go_memstats_sys_bytes"
	metricGCDurations = "go_gc_duration_seconds"
)

// non-heap in-use gauges exported by the Go collector of client_golang
var nonHeapMetrics = []string{
	"go_memstats_stack_inuse_bytes",
	"go_memstats_mspan_inuse_bytes",
	"go_memstats_mcache_inuse_bytes",
	"go_memstats_buck_hash_sys_bytes",
	"go_memstats_gc_sys_bytes",
	"go_memstats_other_sys_bytes",
}

// Prometheus scrapes the Go runtime metrics a remote process exposes in the
// Prometheus text format.
type Prometheus struct {
	url    string
	client *http.Client
}

var _ monitor.Source = (*Prometheus)(nil)

func NewPrometheus(metricsURL string, timeout time.Duration) *Prometheus {
	return &Prometheus{
		url:    metricsURL,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Prometheus) Read(ctx context.Context) (monitor.Reading, error) {
	fams, err := p.scrape(ctx)
	if err != nil {
		return monitor.Reading{}, err
	}
	return readingFromFamilies(fams)
}

func (p *Prometheus) scrape(ctx context.Context) (map[string]*prom.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("GET %s: %s: %s", p.url, resp.Status, strings.TrimSpace(string(b)))
	}

	parser := expfmt.TextParser{}
	return parser.TextToMetricFamilies(resp.Body)
}

func readingFromFamilies(fams map[string]*prom.MetricFamily) (monitor.Reading, error) {
	heapAlloc, err := requireValue(fams, metricHeapAlloc)
	if err != nil {
		return monitor.Reading{}, err
	}
	heapSys, err := requireValue(fams, metricHeapSys)
	if err != nil {
		return monitor.Reading{}, err
	}

	gcs := firstMetric(fams[metricGCDurations])
	if gcs == nil || gcs.GetSummary() == nil {
		return monitor.Reading{}, errors.WithDetails(ErrMetricMissing, "metric", metricGCDurations)
	}

	reading := monitor.Reading{
		HeapUsed:      toBytes(heapAlloc),
		HeapCommitted: toBytes(heapSys),
		HeapMax:       monitor.HeapMaxUnknown,
		GCCount:       gcs.GetSummary().GetSampleCount(),
		GCTimeMillis:  uint64(gcs.GetSummary().GetSampleSum() * 1000),
	}

	if limit, ok := value(fams, metricMemLimit); ok && limit > 0 && limit < math.MaxInt64 {
		reading.HeapMax = toBytes(limit)
	}

	for _, name := range nonHeapMetrics {
		if v, ok := value(fams, name); ok {
			reading.NonHeapUsed += toBytes(v)
		}
	}

	if sys, ok := value(fams, metricSys); ok && toBytes(sys) > reading.HeapCommitted {
		reading.NonHeapCommitted = toBytes(sys) - reading.HeapCommitted
	}

	return reading, nil
}

func firstMetric(mf *prom.MetricFamily) *prom.Metric {
	if mf == nil || len(mf.Metric) == 0 {
		return nil
	}
	return mf.Metric[0]
}

func value(fams map[string]*prom.MetricFamily, name string) (float64, bool) {
	m := firstMetric(fams[name])
	if m == nil {
		return 0, false
	}
	switch {
	case m.Gauge != nil:
		return m.GetGauge().GetValue(), true
	case m.Counter != nil:
		return m.GetCounter().GetValue(), true
	case m.Untyped != nil:
		return m.GetUntyped().GetValue(), true
	}
	return 0, false
}

func requireValue(fams map[string]*prom.MetricFamily, name string) (float64, error) {
	v, ok := value(fams, name)
	if !ok {
		return 0, errors.WithDetails(ErrMetricMissing, "metric", name)
	}
	return v, nil
}

func toBytes(v float64) uint64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return uint64(v)
}
