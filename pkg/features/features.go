// Package features builds per-tract point count features: every point of an
// input layer is assigned to the census tract that contains it and the
// counts are written to the clean zone as tract_<feature>_count.
package features

import (
	"context"

	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/geo"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/metrics"
	"github.com/wjdataeng/tractfeatures/pkg/observability"
	"github.com/wjdataeng/tractfeatures/pkg/spatial"
)

// SchoolsFeature is the feature key of the schools layer
const SchoolsFeature = "schools"

// Options selects the points input of one feature
type Options struct {
	Path    string
	Feature string
	Lon     string
	Lat     string
}

// Result summarizes one feature build
type Result struct {
	Feature   string `json:"feature"`
	Dest      string `json:"dest"`
	Tracts    int    `json:"tracts"`
	Matched   int    `json:"matched"`
	Unmatched int    `json:"unmatched"`
	Skipped   int    `json:"skipped"`
}

// Builder joins point layers onto the configured tracts
type Builder struct {
	cfg      *config.Config
	datasets *dataset.Client
	tracer   *observability.JobTracer
	logger   *zap.Logger
}

// NewBuilder creates a feature builder
func NewBuilder(cfg *config.Config, datasets *dataset.Client) *Builder {
	return &Builder{
		cfg:      cfg,
		datasets: datasets,
		tracer:   observability.NewJobTracer("points"),
		logger:   logger.With(zap.String("component", "features")),
	}
}

// BuildPointsFeature counts the points of opts.Path per tract and overwrites
// the feature dataset
func (b *Builder) BuildPointsFeature(ctx context.Context, opts Options) (*Result, error) {
	if err := config.ValidateFeatureKey(opts.Feature); err != nil {
		return nil, err
	}
	if opts.Path == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "points path is required")
	}
	resolver := b.datasets.Resolver()

	var tracts *geo.TractSet
	err := b.tracer.TraceStage(ctx, "load_tracts", func(ctx context.Context) error {
		var err error
		tracts, err = geo.LoadTracts(ctx, resolver, b.cfg.Paths.Tracts)
		return err
	})
	if err != nil {
		return nil, err
	}
	idx, err := spatial.NewIndex(tracts)
	if err != nil {
		return nil, err
	}

	var points *geo.PointSet
	err = b.tracer.TraceStage(ctx, "load_points", func(ctx context.Context) error {
		var err error
		points, err = geo.LoadPoints(ctx, resolver, opts.Path, geo.PointOptions{Lon: opts.Lon, Lat: opts.Lat})
		if err != nil {
			return err
		}
		return geo.TransformPoints(points.Points, points.CRS, idx.CRS())
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to load points").WithDetail("path", opts.Path)
	}

	var counts *spatial.Counts
	_ = b.tracer.TraceStage(ctx, "join", func(context.Context) error {
		counts = spatial.CountByTract(idx, points.Points, opts.Feature)
		return nil
	})
	metrics.PointsJoined.WithLabelValues(opts.Feature, "matched").Add(float64(counts.Matched))
	metrics.PointsJoined.WithLabelValues(opts.Feature, "unmatched").Add(float64(counts.Unmatched))
	metrics.PointsJoined.WithLabelValues(opts.Feature, "skipped").Add(float64(points.Skipped))
	if counts.Unmatched > 0 {
		b.logger.Info("points outside every tract were dropped",
			zap.String("feature", opts.Feature), zap.Int("unmatched", counts.Unmatched))
	}

	dest := b.cfg.FeatureURI(opts.Feature)
	err = b.tracer.TraceStage(ctx, "write", func(ctx context.Context) error {
		_, err := b.datasets.Write(ctx, dest, counts.Frame, dataset.ModeOverwrite)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.RowsWritten.WithLabelValues("points", dest).Add(float64(counts.Frame.NumRows()))

	b.logger.Info("wrote feature",
		zap.String("feature", opts.Feature),
		zap.String("dest", dest),
		zap.Int("tracts", idx.Len()),
		zap.Int("matched", counts.Matched))

	return &Result{
		Feature:   opts.Feature,
		Dest:      dest,
		Tracts:    idx.Len(),
		Matched:   counts.Matched,
		Unmatched: counts.Unmatched,
		Skipped:   points.Skipped,
	}, nil
}

// BuildSchoolsFeature counts the configured Baltimore City schools layer
func (b *Builder) BuildSchoolsFeature(ctx context.Context) (*Result, error) {
	return b.BuildPointsFeature(ctx, Options{Path: b.cfg.Paths.Schools, Feature: SchoolsFeature})
}
