// Package metrics defines the Prometheus metrics recorded by tractfeatures
// jobs. Jobs are short-lived, so metrics are pushed to a Pushgateway at exit
// rather than scraped.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("convert")
//	rows, err := convert.Run(ctx, job)
//	metrics.JobDuration.WithLabelValues("convert", metrics.Status(err)).Observe(timer.Stop().Seconds())
//	metrics.RowsWritten.WithLabelValues("convert", job.Dest).Add(float64(rows))
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

const namespace = "tractfeatures"

var (
	// JobDuration tracks job wall time in seconds.
	// Labels: job (convert/points/curate/...), status (success/failure)
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"job", "status"},
	)

	// RowsWritten counts rows written to datasets.
	// Labels: job, dataset (destination URI)
	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to datasets",
		},
		[]string{"job", "dataset"},
	)

	// ChunksWritten counts part files appended by the converter
	ChunksWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Part files appended by chunked conversion",
		},
		[]string{"dataset"},
	)

	// ValuesCoerced counts cells nulled because they did not match the inferred type
	ValuesCoerced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_coerced_total",
			Help:      "Values that failed to parse as their column type",
		},
		[]string{"dataset"},
	)

	// ColumnsWidened counts column types promoted after the first chunk
	ColumnsWidened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "columns_widened_total",
			Help:      "Column types promoted when a later chunk did not fit",
		},
		[]string{"dataset"},
	)

	// PointsJoined counts points by join outcome.
	// Labels: feature, outcome (matched/unmatched/skipped)
	PointsJoined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_joined_total",
			Help:      "Points processed by the spatial join",
		},
		[]string{"feature", "outcome"},
	)

	// FeaturesMerged counts feature directories seen by dynamic curation.
	// Labels: outcome (merged/skipped)
	FeaturesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "features_merged_total",
			Help:      "Feature datasets merged into the curated table",
		},
		[]string{"outcome"},
	)

	// ResidentMemory tracks process RSS in bytes
	ResidentMemory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resident_memory_bytes",
			Help:      "Process resident set size in bytes",
		},
		[]string{"job"},
	)
)

// Status maps an error to the status label value
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Timer measures elapsed time from creation
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// Name returns the timer name
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. It can be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// Push sends every registered metric to a Pushgateway under the job name
func Push(ctx context.Context, url, job string) error {
	return PushFrom(ctx, prometheus.DefaultGatherer, url, job)
}

// PushFrom pushes the metrics of one gatherer
func PushFrom(ctx context.Context, g prometheus.Gatherer, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(g).PushContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to push metrics").WithDetail("url", url)
	}
	return nil
}
