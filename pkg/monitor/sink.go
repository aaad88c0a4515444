package monitor

// Sink receives one Snapshot per tick, in timestamp order, on the monitor's
// worker goroutine. Implementations must not block for long.
type Sink interface {
	OnSample(Snapshot)
}

// GCEventSink is implemented by sinks that also want GC events. Events are
// delivered right after the Snapshot of the same tick.
type GCEventSink interface {
	OnGCEvent(GCEvent)
}

// ResetSink is implemented by sinks that keep history and need to drop it
// when monitoring is (re)started.
type ResetSink interface {
	OnReset()
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Snapshot)

func (f SinkFunc) OnSample(s Snapshot) {
	f(s)
}

// Sinks fans out to every contained sink in order.
type Sinks []Sink

func (ss Sinks) OnSample(s Snapshot) {
	for _, sink := range ss {
		sink.OnSample(s)
	}
}

func (ss Sinks) OnGCEvent(e GCEvent) {
	for _, sink := range ss {
		if es, ok := sink.(GCEventSink); ok {
			es.OnGCEvent(e)
		}
	}
}

func (ss Sinks) OnReset() {
	for _, sink := range ss {
		if rs, ok := sink.(ResetSink); ok {
			rs.OnReset()
		}
	}
}
