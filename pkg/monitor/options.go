package monitor

import (
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultGracePeriod = 5 * time.Second
)

type Options struct {
	GracePeriod  time.Duration
	Clock        func() time.Time
	ErrorHandler func(error)
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		GracePeriod: DefaultGracePeriod,
		Clock:       time.Now,
		ErrorHandler: func(err error) {
			log.WithError(err).Error("skipping tick")
		},
	}
}

// WithGracePeriod sets how long Stop waits for an in-flight tick.
func WithGracePeriod(d time.Duration) Option {
	return func(opts *Options) {
		opts.GracePeriod = d
	}
}

func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithErrorHandler receives source read failures. Ticks that fail are skipped.
func WithErrorHandler(fn func(error)) Option {
	return func(opts *Options) {
		opts.ErrorHandler = fn
	}
}
