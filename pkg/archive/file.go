package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// FileStore keeps dumps in a local directory.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIfWithDetails(err, "cannot create archive directory", "dir", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Provider() Provider {
	return File
}

// Upload writes to a temporary file and renames it into place.
func (s *FileStore) Upload(ctx context.Context, name string, r io.Reader, opts *Options) error {
	path := filepath.Join(s.dir, objectName("", name))

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return errors.WrapIf(err, "cannot create temporary file")
	}
	defer os.Remove(tmp.Name())

	buf := make([]byte, opts.BufferSize.Bytes())
	if _, err := io.CopyBuffer(tmp, contextReader{ctx: ctx, r: r}, buf); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) Delete(ctx context.Context, prefix string, opts *Options) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, prefix+"*"+Extension))
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		log.Warnf("no dumps found with prefix: %s", prefix)
		return 0, nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(opts.ConcurrentJobs)
	for _, path := range matches {
		path := path
		g.Go(func() error {
			log.WithField("path", path).Debug("deleting dump")
			return errors.WrapIfWithDetails(os.Remove(path), "failed to delete dump", "path", path)
		})
	}
	return len(matches), g.Wait()
}

func (s *FileStore) Close() error {
	return nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
