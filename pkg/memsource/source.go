// Package memsource provides the metric sources a monitor can sample: the
// current process, a remote process's Prometheus endpoint, a gctrace log and a
// settable mock.
package memsource

import (
	"time"

	"emperror.dev/errors"

	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/tracer"
)

var (
	ErrUnsupportedKind = errors.New("unsupported metric source kind")
	ErrMetricMissing   = errors.New("metric missing from exposition")
)

type Kind string

const (
	KindRuntime    Kind = "runtime"
	KindPrometheus Kind = "prometheus"
	KindGCTrace    Kind = "gctrace"
	KindMock       Kind = "mock"
)

func (k Kind) Valid() bool {
	switch k {
	case KindRuntime, KindPrometheus, KindGCTrace, KindMock:
		return true
	}
	return false
}

// Closer is implemented by sources that hold resources, like an open trace.
type Closer interface {
	Close() error
}

func defaultOptions() *Options {
	return &Options{
		MetricsURL:    "http://127.0.0.1:8080/metrics",
		ScrapeTimeout: 5 * time.Second,
		TracePath:     "/tmp/gctrace.fifo",
	}
}

type Options struct {
	MetricsURL    string
	ScrapeTimeout time.Duration
	TracePath     string
	CreateFifo    bool
}

type Option func(*Options)

func WithMetricsURL(url string) Option {
	return func(opts *Options) {
		opts.MetricsURL = url
	}
}

func WithScrapeTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.ScrapeTimeout = d
	}
}

func WithTracePath(path string) Option {
	return func(opts *Options) {
		opts.TracePath = path
	}
}

func WithCreateFifo(create bool) Option {
	return func(opts *Options) {
		opts.CreateFifo = create
	}
}

// New builds the source for kind. Sources implementing Closer must be closed
// by the caller.
func New(kind Kind, opts ...Option) (monitor.Source, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	switch kind {
	case KindRuntime:
		return NewRuntime(), nil
	case KindPrometheus:
		return NewPrometheus(options.MetricsURL, options.ScrapeTimeout), nil
	case KindGCTrace:
		src, err := tracer.NewSource(options.TracePath, options.CreateFifo)
		if err != nil {
			return nil, errors.WrapIfWithDetails(err, "failed to open gc trace", "path", options.TracePath)
		}
		return src, nil
	case KindMock:
		return NewMock(), nil
	default:
		return nil, errors.WithDetails(ErrUnsupportedKind, "kind", string(kind))
	}
}
