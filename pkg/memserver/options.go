package memserver

import (
	"time"

	"github.com/voluzi/memwatch/pkg/monitor"
	"github.com/voluzi/memwatch/pkg/statscollector"
)

const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8000
	DefaultPeriod        = time.Second
	DefaultMaxSamples    = 3600
	DefaultProcessTTL    = time.Minute
	DefaultShutdownAfter = 5 * time.Second
)

func defaultOptions() *Options {
	return &Options{
		Host:          DefaultHost,
		Port:          DefaultPort,
		InitialDelay:  0,
		Period:        DefaultPeriod,
		MaxSamples:    DefaultMaxSamples,
		EventCapacity: statscollector.DefaultEventCapacity,
		GracePeriod:   monitor.DefaultGracePeriod,
		ProcessTTL:    DefaultProcessTTL,
		AutoStart:     true,
	}
}

type Options struct {
	Host          string
	Port          int
	InitialDelay  time.Duration
	Period        time.Duration
	MaxSamples    int
	EventCapacity int
	GracePeriod   time.Duration
	ProcessName   string
	ProcessTTL    time.Duration
	MockMode      bool
	AutoStart     bool
}

type Option func(*Options)

func WithHost(s string) Option {
	return func(opts *Options) {
		opts.Host = s
	}
}

func WithPort(v int) Option {
	return func(opts *Options) {
		opts.Port = v
	}
}

// WithSchedule sets the delay before the first sample and the sampling period.
func WithSchedule(initialDelay, period time.Duration) Option {
	return func(opts *Options) {
		opts.InitialDelay = initialDelay
		opts.Period = period
	}
}

// WithMaxSamples sets how many samples are retained for queries.
func WithMaxSamples(n int) Option {
	return func(opts *Options) {
		opts.MaxSamples = n
	}
}

func WithEventCapacity(n int) Option {
	return func(opts *Options) {
		opts.EventCapacity = n
	}
}

func WithGracePeriod(d time.Duration) Option {
	return func(opts *Options) {
		opts.GracePeriod = d
	}
}

// WithProcessName selects the process reported by /stats/process. When empty
// the server reports on itself.
func WithProcessName(name string) Option {
	return func(opts *Options) {
		opts.ProcessName = name
	}
}

func WithProcessTTL(d time.Duration) Option {
	return func(opts *Options) {
		opts.ProcessTTL = d
	}
}

// WithMockMode enables the /mock endpoints. They only work with a mock source.
func WithMockMode(enabled bool) Option {
	return func(opts *Options) {
		opts.MockMode = enabled
	}
}

// WithAutoStart controls whether monitoring begins when the server starts.
func WithAutoStart(enabled bool) Option {
	return func(opts *Options) {
		opts.AutoStart = enabled
	}
}
