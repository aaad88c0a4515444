package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/window"
)

var sparkTicks = []rune("▁▂▃▄▅▆▇█")

// display prints every sample to a terminal followed by a sparkline of the
// recent allocation rate.
type display struct {
	out   io.Writer
	rates *window.Window[float64]
}

var (
	_ monitor.Sink        = (*display)(nil)
	_ monitor.GCEventSink = (*display)(nil)
	_ monitor.ResetSink   = (*display)(nil)
)

func newDisplay(out io.Writer, width int) *display {
	return &display{out: out, rates: window.New[float64](width)}
}

func (d *display) OnSample(s monitor.Snapshot) {
	d.rates.Append(s.AllocationRateMBps)
	fmt.Fprintln(d.out, s.String())
	fmt.Fprintf(d.out, "  alloc %s\n", sparkline(d.rates.Values()))
}

func (d *display) OnGCEvent(e monitor.GCEvent) {
	fmt.Fprintln(d.out, e.String())
}

func (d *display) OnReset() {
	d.rates.Clear()
}

// sparkline scales values to the highest one. An all-zero series renders at
// the lowest tick.
func sparkline(values []float64) string {
	var peak float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}

	var b strings.Builder
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(sparkTicks)-1))
		}
		b.WriteRune(sparkTicks[idx])
	}
	return b.String()
}
