package memsource

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/voluzi/memwatch/pkg/monitor"
)

// Mock holds settable memory and GC values.
type Mock struct {
	mu      sync.RWMutex
	reading monitor.Reading
}

var _ monitor.Source = (*Mock)(nil)

// NewMock creates a Mock with 300MiB of heap in use out of 512MiB committed
// and no collections yet.
func NewMock() *Mock {
	return &Mock{
		reading: monitor.Reading{
			HeapUsed:         300 * 1024 * 1024,
			HeapCommitted:    512 * 1024 * 1024,
			HeapMax:          monitor.HeapMaxUnknown,
			NonHeapUsed:      16 * 1024 * 1024,
			NonHeapCommitted: 32 * 1024 * 1024,
		},
	}
}

func (m *Mock) Read(_ context.Context) (monitor.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reading, nil
}

// Set replaces every value at once.
func (m *Mock) Set(r monitor.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading = r
}

// SetHeapUsed sets the heap in use. Committed memory grows with it so that it
// never falls below usage.
func (m *Mock) SetHeapUsed(bytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading.HeapUsed = bytes
	if m.reading.HeapCommitted < bytes {
		m.reading.HeapCommitted = bytes
	}
	log.WithField("heapBytes", bytes).Info("mock heap usage updated")
}

func (m *Mock) SetHeapMax(bytes uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading.HeapMax = bytes
}

// TriggerGC records one collection that paused for pauseMillis.
func (m *Mock) TriggerGC(pauseMillis uint64) monitor.Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reading.GCCount++
	m.reading.GCTimeMillis += pauseMillis
	log.WithFields(log.Fields{
		"gcCount":      m.reading.GCCount,
		"gcTimeMillis": m.reading.GCTimeMillis,
	}).Info("mock gc cycle recorded")
	return m.reading
}
