package archive

import (
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/klauspost/pgzip"
)

const (
	DefaultBufferSize     = "4MB"
	DefaultReportPeriod   = time.Second
	DefaultConcurrentJobs = 10
)

// Options configures uploads and deletions.
type Options struct {
	BufferSize       datasize.ByteSize
	ReportPeriod     time.Duration
	ConcurrentJobs   int
	CompressionLevel int
}

func defaultOptions() *Options {
	return &Options{
		BufferSize:       datasize.MustParseString(DefaultBufferSize),
		ReportPeriod:     DefaultReportPeriod,
		ConcurrentJobs:   DefaultConcurrentJobs,
		CompressionLevel: pgzip.BestSpeed,
	}
}

type Option func(*Options)

// WithBufferSize sets the copy buffer used while uploading.
func WithBufferSize(size datasize.ByteSize) Option {
	return func(o *Options) {
		o.BufferSize = size
	}
}

// WithReportPeriod sets how often progress is logged.
func WithReportPeriod(period time.Duration) Option {
	return func(o *Options) {
		o.ReportPeriod = period
	}
}

// WithConcurrentJobs sets the number of concurrent delete workers.
func WithConcurrentJobs(jobs int) Option {
	return func(o *Options) {
		o.ConcurrentJobs = jobs
	}
}

func WithCompressionLevel(level int) Option {
	return func(o *Options) {
		o.CompressionLevel = level
	}
}
