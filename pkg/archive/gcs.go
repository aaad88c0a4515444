package archive

import (
	"context"
	"io"
	"path"

	"cloud.google.com/go/storage"
	"emperror.dev/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps dumps in a Google Cloud Storage bucket, below an optional
// prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Store = (*GCSStore)(nil)

func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.WrapIf(err, "failed to create gcs client")
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *GCSStore) Provider() Provider {
	return GCS
}

func (s *GCSStore) Upload(ctx context.Context, name string, r io.Reader, opts *Options) error {
	obj := objectName(s.prefix, name)
	log.WithField("target", "gs://"+path.Join(s.bucket, obj)).Debug("uploading dump")

	w := s.client.Bucket(s.bucket).Object(obj).NewWriter(ctx)
	w.ContentType = "application/gzip"
	w.ChunkSize = int(opts.BufferSize.Bytes())

	buf := make([]byte, opts.BufferSize.Bytes())
	if _, err := io.CopyBuffer(w, r, buf); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *GCSStore) Delete(ctx context.Context, prefix string, opts *Options) (int, error) {
	query := &storage.Query{Prefix: path.Join(s.prefix, prefix)}

	var names []string
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, errors.WrapIf(err, "failed to list objects")
		}
		names = append(names, attrs.Name)
	}

	if len(names) == 0 {
		log.Warnf("no objects found with prefix: %s", query.Prefix)
		return 0, nil
	}

	log.WithFields(map[string]interface{}{
		"bucket":  s.bucket,
		"prefix":  query.Prefix,
		"objects": len(names),
	}).Info("deleting dumps")

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.ConcurrentJobs)
	for _, name := range names {
		name := name
		g.Go(func() error {
			if err := s.client.Bucket(s.bucket).Object(name).Delete(gCtx); err != nil {
				return errors.WrapIfWithDetails(err, "failed to delete object", "object", name)
			}
			return nil
		})
	}
	return len(names), g.Wait()
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
