package storage

import (
	"context"
	stderrors "errors"
	"io"
	"sort"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
)

// GCSStore is a Store backed by one Cloud Storage bucket
type GCSStore struct {
	bucket       string
	client       *gcs.Client
	bucketHandle *gcs.BucketHandle
	logger       *zap.Logger
}

// NewGCSStore creates a Cloud Storage client for bucket
func NewGCSStore(ctx context.Context, bucket string, opts Options) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if opts.GCSCredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.GCSCredentialsFile))
	}

	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create GCS client")
	}

	return &GCSStore{
		bucket:       bucket,
		client:       client,
		bucketHandle: client.Bucket(bucket),
		logger:       logger.With(zap.String("component", "gcs_store"), zap.String("bucket", bucket)),
	}, nil
}

// Open streams an object
func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucketHandle.Object(key).NewReader(ctx)
	if err != nil {
		if stderrors.Is(err, gcs.ErrObjectNotExist) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "object not found").WithDetail("uri", s.URI(key))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read GCS object").WithDetail("uri", s.URI(key))
	}
	return r, nil
}

// Put writes an object
func (s *GCSStore) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	writer := s.bucketHandle.Object(key).NewWriter(ctx)
	writer.Metadata = metadata

	if _, err := io.Copy(writer, body); err != nil {
		writer.Close()
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to write GCS object").WithDetail("uri", s.URI(key))
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to finalize GCS object").WithDetail("uri", s.URI(key))
	}
	return nil
}

// List iterates every object under prefix
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucketHandle.Objects(ctx, &gcs.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list GCS objects").
				WithDetail("uri", s.URI(prefix))
		}
		keys = append(keys, attrs.Name)
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirectories returns the synthetic directories one level below prefix
func (s *GCSStore) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	var dirs []string
	it := s.bucketHandle.Objects(ctx, &gcs.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list GCS prefixes").
				WithDetail("uri", s.URI(prefix))
		}
		if attrs.Prefix != "" {
			dirs = append(dirs, attrs.Prefix)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// DeletePrefix deletes every object under prefix
func (s *GCSStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		if err := s.bucketHandle.Object(key).Delete(ctx); err != nil && !stderrors.Is(err, gcs.ErrObjectNotExist) {
			return i, errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete GCS object").
				WithDetail("uri", s.URI(key))
		}
	}
	s.logger.Debug("deleted GCS prefix", zap.String("prefix", prefix), zap.Int("objects", len(keys)))
	return len(keys), nil
}

// URI renders gs://bucket/key
func (s *GCSStore) URI(key string) string {
	return Location{Scheme: GCS, Bucket: s.bucket, Key: key}.String()
}

// Close closes the client
func (s *GCSStore) Close() error {
	if err := s.client.Close(); err != nil {
		s.logger.Error("failed to close GCS client", zap.Error(err))
		return err
	}
	return nil
}
