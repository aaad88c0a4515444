package memsource

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"

	"github.com/voluzi/memwatch/pkg/monitor"
)

// Runtime reads the memory statistics of the current process.
type Runtime struct{}

var _ monitor.Source = Runtime{}

func NewRuntime() Runtime {
	return Runtime{}
}

func (Runtime) Read(_ context.Context) (monitor.Reading, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	heapMax := monitor.HeapMaxUnknown
	// a negative input only queries the current limit
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		heapMax = uint64(limit)
	}

	nonHeapCommitted := uint64(0)
	if m.Sys > m.HeapSys {
		nonHeapCommitted = m.Sys - m.HeapSys
	}

	return monitor.Reading{
		HeapUsed:         m.HeapAlloc,
		HeapCommitted:    m.HeapSys,
		HeapMax:          heapMax,
		NonHeapUsed:      m.StackInuse + m.MSpanInuse + m.MCacheInuse + m.BuckHashSys + m.GCSys + m.OtherSys,
		NonHeapCommitted: nonHeapCommitted,
		GCCount:          uint64(m.NumGC),
		GCTimeMillis:     m.PauseTotalNs / 1e6,
	}, nil
}
