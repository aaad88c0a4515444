// Package archive writes retained samples and GC events as compressed dumps to
// a local directory or to Google Cloud Storage.
package archive

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"emperror.dev/errors"

	"github.com/voluzi/memwatch/pkg/monitor"
)

// Extension is appended to every dump name.
const Extension = ".json.gz"

type Provider string

const (
	File Provider = "file"
	GCS  Provider = "gcs"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// Dump is the content of one archive.
type Dump struct {
	ExportedAt time.Time          `json:"exported_at"`
	Source     string             `json:"source,omitempty"`
	Samples    []monitor.Snapshot `json:"samples"`
	Events     []monitor.GCEvent  `json:"events"`
}

// Store is where dumps end up.
type Store interface {
	Provider() Provider
	Upload(ctx context.Context, name string, r io.Reader, opts *Options) error
	Delete(ctx context.Context, prefix string, opts *Options) (int, error)
	Close() error
}

// FromTarget returns the store for target. A gs://bucket/prefix URL selects
// GCS, anything else is a local directory (file:// optional).
func FromTarget(ctx context.Context, target string) (Store, error) {
	if !strings.Contains(target, "://") {
		return NewFileStore(target)
	}

	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.WrapIfWithDetails(err, "invalid archive target", "target", target)
	}

	switch u.Scheme {
	case "gs":
		return NewGCSStore(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file":
		return NewFileStore(u.Path)
	default:
		return nil, errors.WithDetails(ErrUnsupportedProvider, "scheme", u.Scheme)
	}
}

func objectName(prefix, name string) string {
	if !strings.HasSuffix(name, Extension) {
		name += Extension
	}
	if prefix == "" {
		return name
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(prefix, "/"), name)
}
