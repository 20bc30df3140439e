package storage

import (
	"context"
	stderrors "errors"
	"io"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
)

const (
	defaultUploadPartSize = 5 * 1024 * 1024 // 5MB
	defaultMaxConcurrency = 10
	// S3 DeleteObjects accepts at most 1000 keys per call
	deleteBatchSize = 1000
)

// S3Store is a Store backed by one S3 bucket
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
	logger   *zap.Logger
}

// NewS3Store creates the S3 client and checks bucket access
func NewS3Store(ctx context.Context, bucket string, opts Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(cfg)
	return newS3StoreWithClient(ctx, bucket, client, opts)
}

func newS3StoreWithClient(ctx context.Context, bucket string, client *s3.Client, opts Options) (*S3Store, error) {
	partSize := opts.UploadPartSize
	if partSize < defaultUploadPartSize {
		partSize = defaultUploadPartSize
	}
	concurrency := opts.UploadConcurrency
	if concurrency <= 0 {
		concurrency = defaultMaxConcurrency
	}

	s := &S3Store{
		bucket: bucket,
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
			u.Concurrency = concurrency
		}),
		logger: logger.With(zap.String("component", "s3_store"), zap.String("bucket", bucket)),
	}

	// Test bucket access with HeadBucket
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to access S3 bucket").
			WithDetail("bucket", bucket)
	}
	return s, nil
}

// Open streams an object body
func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if stderrors.As(err, &nsk) {
			return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "object not found").WithDetail("uri", s.URI(key))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to get S3 object").WithDetail("uri", s.URI(key))
	}
	return out.Body, nil
}

// Put uploads an object with the multipart uploader
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, metadata map[string]string) error {
	start := time.Now()
	result, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: metadata,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to upload to S3").WithDetail("uri", s.URI(key))
	}

	s.logger.Debug("object uploaded to S3",
		zap.String("location", result.Location),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// List pages through every key under prefix
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list S3 objects").
				WithDetail("uri", s.URI(prefix))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListDirectories returns the common prefixes one level below prefix
func (s *S3Store) ListDirectories(ctx context.Context, prefix string) ([]string, error) {
	var dirs []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to list S3 prefixes").
				WithDetail("uri", s.URI(prefix))
		}
		for _, cp := range page.CommonPrefixes {
			dirs = append(dirs, aws.ToString(cp.Prefix))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// DeletePrefix removes every key under prefix in batches
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, errors.Wrap(err, errors.ErrorTypeConnection, "failed to delete S3 objects").
				WithDetail("uri", s.URI(prefix))
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted, errors.Newf(errors.ErrorTypeConnection, "failed to delete %s: %s",
				aws.ToString(first.Key), aws.ToString(first.Message))
		}
		deleted += len(ids)
	}

	s.logger.Debug("deleted S3 prefix", zap.String("prefix", prefix), zap.Int("objects", deleted))
	return deleted, nil
}

// URI renders s3://bucket/key
func (s *S3Store) URI(key string) string {
	return Location{Scheme: S3, Bucket: s.bucket, Key: key}.String()
}

// Close is a no-op; the SDK client holds no resources that need release
func (s *S3Store) Close() error { return nil }
