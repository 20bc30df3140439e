// Package curate assembles the curated tract features table: one row per
// tract with one numeric column per feature, ready for Athena, Postgres or
// BigQuery.
package curate

import (
	"bytes"
	"context"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/geo"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/metrics"
	"github.com/wjdataeng/tractfeatures/pkg/observability"
)

// MsgNoFeatureDirs is returned when the features root is empty
const MsgNoFeatureDirs = "No feature directories found. Upload features to clean/features/*/ first."

const (
	schoolsDataset = "tract_schools_count"
	schoolsColumn  = "schools_count"
	// written by early versions of the points job
	legacyPointsColumn = "points_count"
)

// FeatureSummary records how one feature directory was merged
type FeatureSummary struct {
	Name       string `json:"name"`
	Picked     string `json:"picked"`
	As         string `json:"as"`
	RowsBefore int    `json:"rows_before"`
	RowsAfter  int    `json:"rows_after"`
	NonNull    int    `json:"nonnull"`
}

// Skipped is a feature directory left out of the curated table
type Skipped struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Summary describes one curate run
type Summary struct {
	Dest     string           `json:"dest"`
	Tracts   int              `json:"tracts"`
	Columns  []string         `json:"columns"`
	Features []FeatureSummary `json:"features"`
	Skipped  []Skipped        `json:"skipped,omitempty"`
}

// Curator reads clean feature datasets and writes the curated table
type Curator struct {
	cfg      *config.Config
	datasets *dataset.Client
	tracer   *observability.JobTracer
	logger   *zap.Logger
}

// NewCurator creates a curator
func NewCurator(cfg *config.Config, datasets *dataset.Client) *Curator {
	return &Curator{
		cfg:      cfg,
		datasets: datasets,
		tracer:   observability.NewJobTracer("curate"),
		logger:   logger.With(zap.String("component", "curate")),
	}
}

func (c *Curator) baseFrame(ctx context.Context) (*frame.Frame, error) {
	tracts, err := geo.LoadTracts(ctx, c.datasets.Resolver(), c.cfg.Paths.Tracts)
	if err != nil {
		return nil, err
	}
	c.logger.Info("loaded tracts", zap.Int("tracts", len(tracts.Tracts)))
	return frame.New(frame.Strings(geo.TractIDProperty, tracts.IDs()...))
}

// Curate merges the schools feature onto every tract and overwrites the
// curated table
func (c *Curator) Curate(ctx context.Context) (*Summary, error) {
	ctx, span := c.tracer.StartSpan(ctx, "static")
	defer span.End()

	base, err := c.baseFrame(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	src := c.cfg.CleanURI("features/" + schoolsDataset + "/")
	counts, err := c.datasets.Read(ctx, src)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to read schools feature").WithDetail("uri", src)
	}
	c.logger.Info("loaded school count records", zap.Int("rows", counts.NumRows()))

	counts, err = NormalizeIDColumn(counts.Drop(GeometryColumn))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if counts.Has(legacyPointsColumn) {
		if counts.Has(schoolsColumn) {
			counts = counts.Drop(legacyPointsColumn)
		} else if counts, err = counts.Rename(map[string]string{legacyPointsColumn: schoolsColumn}); err != nil {
			return nil, err
		}
	}

	merged, err := frame.LeftMerge(base, counts, geo.TractIDProperty)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if merged.Has(schoolsColumn) {
		if err := fillZero(merged, schoolsColumn); err != nil {
			return nil, err
		}
	}

	summary := &Summary{Dest: c.cfg.CuratedTableURI(), Tracts: merged.NumRows(), Columns: merged.Names()}
	if err := c.write(ctx, merged); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return summary, nil
}

// CurateDynamic merges every feature dataset under the clean features root.
// Feature directories that cannot be read or interpreted are skipped.
func (c *Curator) CurateDynamic(ctx context.Context) (*Summary, error) {
	ctx, span := c.tracer.StartSpan(ctx, "dynamic")
	defer span.End()

	root := c.cfg.FeaturesURI()
	c.logger.Info("listing feature directories", zap.String("root", root))
	dirs, err := c.datasets.ListDirs(ctx, root)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(dirs) == 0 {
		err := errors.New(errors.ErrorTypeNotFound, MsgNoFeatureDirs).WithDetail("root", root)
		span.RecordError(err)
		return nil, err
	}
	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = d.Name
	}
	c.logger.Info("found features", zap.Strings("features", names))

	merged, err := c.baseFrame(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	summary := &Summary{Dest: c.cfg.CuratedTableURI()}
	for _, dir := range dirs {
		fs, next, err := c.mergeFeature(ctx, merged, dir)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("skipping feature", zap.String("feature", dir.Name), zap.Error(err))
			metrics.FeaturesMerged.WithLabelValues("skipped").Inc()
			summary.Skipped = append(summary.Skipped, Skipped{Name: dir.Name, Reason: err.Error()})
			continue
		}
		merged = next
		metrics.FeaturesMerged.WithLabelValues("merged").Inc()
		summary.Features = append(summary.Features, *fs)
		c.logger.Info("merged feature",
			zap.String("feature", fs.Name),
			zap.String("picked", fs.Picked),
			zap.String("column", fs.As),
			zap.Int("nonnull", fs.NonNull))
	}

	for _, name := range merged.Names() {
		if FillsWithZero(name) {
			if err := fillZero(merged, name); err != nil {
				return nil, err
			}
		}
	}

	summary.Tracts = merged.NumRows()
	summary.Columns = merged.Names()
	if err := c.write(ctx, merged); err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, fs := range summary.Features {
		c.logger.Info("feature merge summary",
			zap.String("name", fs.Name),
			zap.String("picked", fs.Picked),
			zap.String("as", fs.As),
			zap.Int("rows_before", fs.RowsBefore),
			zap.Int("rows_after", fs.RowsAfter),
			zap.Int("nonnull", fs.NonNull))
	}
	span.SetAttribute("features", len(summary.Features))
	span.SetAttribute("skipped", len(summary.Skipped))
	return summary, nil
}

func (c *Curator) mergeFeature(ctx context.Context, merged *frame.Frame, dir dataset.Dir) (*FeatureSummary, *frame.Frame, error) {
	f, err := c.datasets.Read(ctx, dir.URI)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.TypeOf(err), "failed to read parquet")
	}
	f, err = NormalizeIDColumn(f)
	if err != nil {
		return nil, nil, err
	}
	f = f.Drop(GeometryColumn)

	picked, err := PickValueColumn(f)
	if err != nil {
		return nil, nil, err
	}
	col, _ := f.Column(picked)
	values := col.ToFloat()
	values.Name = dir.Name
	ids, _ := f.Column(geo.TractIDProperty)

	small, err := frame.New(ids, values)
	if err != nil {
		return nil, nil, err
	}
	next, err := frame.LeftMerge(merged, small, geo.TractIDProperty)
	if err != nil {
		return nil, nil, err
	}
	return &FeatureSummary{
		Name:       dir.Name,
		Picked:     picked,
		As:         dir.Name,
		RowsBefore: merged.NumRows(),
		RowsAfter:  next.NumRows(),
		NonNull:    values.Len() - values.NullCount(),
	}, next, nil
}

func (c *Curator) write(ctx context.Context, f *frame.Frame) error {
	dest := c.cfg.CuratedTableURI()
	if _, err := c.datasets.Write(ctx, dest, f, dataset.ModeOverwrite); err != nil {
		return err
	}
	metrics.RowsWritten.WithLabelValues("curate", dest).Add(float64(f.NumRows()))
	c.logger.Info("saved curated dataset", zap.String("dest", dest), zap.Int("rows", f.NumRows()), zap.Int("columns", f.NumCols()))
	return nil
}

// fillZero replaces nulls with 0 and stores the column as float64
func fillZero(f *frame.Frame, name string) error {
	col, _ := f.Column(name)
	if err := f.SetColumn(col.ToFloat()); err != nil {
		return err
	}
	return f.FillNull(name, 0)
}

// WriteSummary stores the summary as indented JSON at uri
func (c *Curator) WriteSummary(ctx context.Context, uri string, s *Summary) error {
	body, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode summary")
	}
	store, key, err := c.datasets.Resolver().Resolve(ctx, uri)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, key, bytes.NewReader(body), map[string]string{"content-type": "application/json"}); err != nil {
		return err
	}
	c.logger.Info("wrote merge summary", zap.String("path", uri))
	return nil
}
