package publish

import (
	"context"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// BigQueryOptions names the destination table
type BigQueryOptions struct {
	Project         string
	Dataset         string
	Table           string
	CredentialsFile string
}

// BigQueryResult describes one load job
type BigQueryResult struct {
	JobID      string
	OutputRows int64
	InputBytes int64
}

// ParquetSourceURI turns a gs:// dataset prefix into the wildcard URI of its
// part files
func ParquetSourceURI(datasetURI string) (string, error) {
	loc, err := storage.ParseURI(datasetURI)
	if err != nil {
		return "", err
	}
	if loc.Scheme != storage.GCS {
		return "", errors.Newf(errors.ErrorTypeConfig, "BigQuery loads need a gs:// curated location, got %q", datasetURI)
	}
	return strings.TrimSuffix(datasetURI, "/") + "/*.parquet", nil
}

// PublishBigQuery replaces the destination table with the Parquet files of
// a gs:// dataset
func PublishBigQuery(ctx context.Context, opts BigQueryOptions, datasetURI string) (*BigQueryResult, error) {
	if opts.Project == "" || opts.Dataset == "" || opts.Table == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "bigquery project, dataset and table are required")
	}
	src, err := ParquetSourceURI(datasetURI)
	if err != nil {
		return nil, err
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, opts.Project, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create BigQuery client")
	}
	defer client.Close()

	log := logger.With(zap.String("component", "publish_bigquery"),
		zap.String("table", opts.Project+"."+opts.Dataset+"."+opts.Table))

	ref := bigquery.NewGCSReference(src)
	ref.SourceFormat = bigquery.Parquet
	loader := client.Dataset(opts.Dataset).Table(opts.Table).LoaderFrom(ref)
	loader.WriteDisposition = bigquery.WriteTruncate
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.Labels = map[string]string{"source": "tractfeatures"}

	log.Info("submitting BigQuery load job", zap.String("source", src))
	job, err := loader.Run(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to submit BigQuery load job")
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "load job failed or timed out").WithDetail("job_id", job.ID())
	}
	if err := status.Err(); err != nil {
		for i, jobErr := range status.Errors {
			log.Error("load job error detail",
				zap.Int("error_index", i),
				zap.String("message", jobErr.Message),
				zap.String("reason", jobErr.Reason),
				zap.String("location", jobErr.Location))
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "BigQuery load job failed").WithDetail("job_id", job.ID())
	}

	res := &BigQueryResult{JobID: job.ID()}
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			res.OutputRows = stats.OutputRows
			res.InputBytes = stats.InputFileBytes
		}
	}
	log.Info("published to bigquery", zap.String("job_id", res.JobID), zap.Int64("rows", res.OutputRows))
	return res, nil
}
