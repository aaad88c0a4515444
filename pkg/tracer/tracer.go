package tracer

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/containerd/fifo"
	"github.com/nxadm/tail"
)

// gc 7 @0.512s 3%: 0.021+1.4+0.010 ms clock, 0.17+0.31/1.2/0.81+0.084 ms cpu, 4->5->2 MB, 5 MB goal, 0 MB stacks, 0 MB globals, 8 P
var gcLine = regexp.MustCompile(`^gc (\d+) @([\d.]+)s (\d+)%: ([\d.]+)\+([\d.]+)\+([\d.]+) ms clock, .*?(\d+)->(\d+)->(\d+) MB, (\d+) MB goal(?:, (\d+) MB stacks)?(?:, (\d+) MB globals)?`)

// GCTracer follows the output of a process started with GODEBUG=gctrace=1.
type GCTracer struct {
	tail   *tail.Tail
	Traces chan *Trace
}

// Trace is one collection as reported by the runtime. Sizes are in MiB.
type Trace struct {
	Cycle        uint64  `json:"cycle"`
	SinceStart   float64 `json:"since_start_seconds"`
	CPUPercent   int     `json:"cpu_percent"`
	SweepTermMs  float64 `json:"sweep_termination_ms"`
	ConcurrentMs float64 `json:"concurrent_mark_ms"`
	MarkTermMs   float64 `json:"mark_termination_ms"`
	HeapStartMB  uint64  `json:"heap_start_mb"`
	HeapEndMB    uint64  `json:"heap_end_mb"`
	HeapLiveMB   uint64  `json:"heap_live_mb"`
	HeapGoalMB   uint64  `json:"heap_goal_mb"`
	StacksMB     uint64  `json:"stacks_mb"`
	GlobalsMB    uint64  `json:"globals_mb"`
	Err          error   `json:"-"`
}

// PauseMillis is the stop-the-world time of the collection.
func (t *Trace) PauseMillis() float64 {
	return t.SweepTermMs + t.MarkTermMs
}

func NewGCTracer(path string, createFifo bool) (*GCTracer, error) {
	if createFifo {
		f, err := fifo.OpenFifo(context.Background(), path, syscall.O_CREAT|syscall.O_RDONLY|syscall.O_NONBLOCK, 0655)
		if err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}

	t, err := tail.TailFile(path, tail.Config{
		ReOpen: true,
		Pipe:   true,
		Follow: true,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return nil, err
	}

	return &GCTracer{
		tail:   t,
		Traces: make(chan *Trace),
	}, nil
}

func (t *GCTracer) Stop() error {
	return t.tail.Stop()
}

// Start forwards every gc line to Traces until the tail is stopped, then
// closes Traces. Other output sharing the stream is ignored.
func (t *GCTracer) Start() {
	defer close(t.Traces)

	for line := range t.tail.Lines {
		if line.Err != nil {
			t.Traces <- &Trace{Err: line.Err}
			continue
		}

		if trace, ok := ParseLine(line.Text); ok {
			t.Traces <- trace
		}
	}
}

// ParseLine parses a single gctrace line.
func ParseLine(text string) (*Trace, bool) {
	m := gcLine.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, false
	}

	trace := &Trace{
		Cycle:        parseUint(m[1]),
		SinceStart:   parseFloat(m[2]),
		CPUPercent:   int(parseUint(m[3])),
		SweepTermMs:  parseFloat(m[4]),
		ConcurrentMs: parseFloat(m[5]),
		MarkTermMs:   parseFloat(m[6]),
		HeapStartMB:  parseUint(m[7]),
		HeapEndMB:    parseUint(m[8]),
		HeapLiveMB:   parseUint(m[9]),
		HeapGoalMB:   parseUint(m[10]),
		StacksMB:     parseUint(m[11]),
		GlobalsMB:    parseUint(m[12]),
	}
	return trace, true
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
