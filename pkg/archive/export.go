package archive

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"emperror.dev/errors"
	"github.com/c2h5oh/datasize"
	log "github.com/sirupsen/logrus"
)

// Export compresses d and uploads it to store under name. It returns the
// compressed size.
func Export(ctx context.Context, store Store, name string, d *Dump, opts ...Option) (datasize.ByteSize, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if d.ExportedAt.IsZero() {
		d.ExportedAt = time.Now()
	}

	log.WithFields(map[string]interface{}{
		"provider": store.Provider(),
		"name":     name,
		"samples":  len(d.Samples),
		"events":   len(d.Events),
	}).Info("start compressing and uploading")

	// compress => upload
	pr, pw := io.Pipe()
	go func() {
		if err := compressDump(d, pw, options.CompressionLevel); err != nil {
			pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()

	var uploaded atomic.Uint64
	progressCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go reportProgress(progressCtx, &uploaded, options.ReportPeriod)

	err := store.Upload(ctx, name, newReaderWithBytesCounter(pr, &uploaded), options)
	if err != nil {
		_ = pr.CloseWithError(err)
		return 0, errors.WrapIfWithDetails(err, "upload failed", "name", name)
	}

	size := datasize.ByteSize(uploaded.Load())
	log.WithFields(map[string]interface{}{
		"name": name,
		"size": size.HumanReadable(),
	}).Info("upload successful")
	return size, nil
}

func reportProgress(ctx context.Context, uploaded *atomic.Uint64, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := uploaded.Load(); n != last {
				log.WithField("uploaded", datasize.ByteSize(n).HumanReadable()).Info("compressing and uploading")
				last = n
			}
		}
	}
}

// Delete removes every dump whose name starts with prefix.
func Delete(ctx context.Context, store Store, prefix string, opts ...Option) (int, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return store.Delete(ctx, prefix, options)
}
