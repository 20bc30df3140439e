// Package convert turns large delimited text files into Parquet datasets by
// appending one part file per chunk of rows.
package convert

import (
	"context"
	"io"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/csvsource"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/metrics"
	"github.com/wjdataeng/tractfeatures/pkg/observability"
)

// Options configures one conversion
type Options struct {
	// ChunkSize is the number of rows per part file
	ChunkSize int
	// Separator is the field delimiter, "," when empty
	Separator string
	// Replace clears the destination before the first chunk
	Replace bool
}

// Result summarizes one conversion
type Result struct {
	Source   string        `json:"source"`
	Dest     string        `json:"dest"`
	Rows     int64         `json:"rows"`
	Chunks   int           `json:"chunks"`
	Coerced  int64         `json:"coerced"`
	Widened  int           `json:"widened"`
	Schema   string        `json:"schema"`
	Duration time.Duration `json:"duration"`
}

// Converter runs conversions against a dataset client
type Converter struct {
	datasets *dataset.Client
	monitor  *metrics.ResourceMonitor
	tracer   *observability.JobTracer
	printer  *message.Printer
	logger   *zap.Logger
}

// NewConverter creates a converter
func NewConverter(datasets *dataset.Client) *Converter {
	log := logger.With(zap.String("component", "convert"))
	monitor, err := metrics.NewResourceMonitor()
	if err != nil {
		log.Warn("process memory will not be reported", zap.Error(err))
	}
	return &Converter{
		datasets: datasets,
		monitor:  monitor,
		tracer:   observability.NewJobTracer("convert"),
		printer:  message.NewPrinter(language.English),
		logger:   log,
	}
}

// ConvertCSVDataset reads src in chunks and appends each chunk to the dest
// dataset. The dest row count grows by exactly the number of source rows.
func (c *Converter) ConvertCSVDataset(ctx context.Context, src, dest string, opts Options) (*Result, error) {
	sep, err := separator(opts.Separator)
	if err != nil {
		return nil, err
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = config.DefaultChunkSize
	}

	start := time.Now()
	ctx, span := c.tracer.StartSpan(ctx, "dataset")
	span.SetAttribute("source", src)
	span.SetAttribute("dest", dest)
	defer span.End()

	r, err := csvsource.Open(ctx, c.datasets.Resolver(), src, csvsource.Options{
		Separator: sep,
		ChunkSize: opts.ChunkSize,
		Logger:    c.logger.With(zap.String("source", src)),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer r.Close()

	result := &Result{Source: src, Dest: dest}
	mode := dataset.ModeAppend
	if opts.Replace {
		mode = dataset.ModeOverwrite
	}

	for {
		chunk, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			span.RecordError(err)
			return result, errors.Wrap(err, errors.TypeOf(err), "failed to read chunk").
				WithDetail("source", src).WithDetail("chunk", result.Chunks+1)
		}
		if chunk.NumRows() == 0 {
			continue
		}

		if _, err := c.datasets.Write(ctx, dest, chunk, mode); err != nil {
			span.RecordError(err)
			return result, errors.Wrap(err, errors.TypeOf(err), "failed to append chunk").
				WithDetail("dest", dest).WithDetail("chunk", result.Chunks+1)
		}
		mode = dataset.ModeAppend

		result.Chunks++
		result.Rows += int64(chunk.NumRows())
		metrics.ChunksWritten.WithLabelValues(dest).Inc()
		metrics.RowsWritten.WithLabelValues("convert", dest).Add(float64(chunk.NumRows()))

		fields := []zap.Field{zap.Int("chunk", result.Chunks), zap.Int("rows", chunk.NumRows())}
		if c.monitor != nil {
			if rss, err := c.monitor.RSS("convert"); err == nil {
				fields = append(fields, zap.Float64("rss_mb", metrics.HumanBytes(rss)))
			}
		}
		c.logger.Info(c.printer.Sprintf("[%s] appended chunk %d rows=%d", dest, result.Chunks, chunk.NumRows()), fields...)
	}

	if result.Rows == 0 {
		c.logger.Warn("source has no data rows", zap.String("source", src))
	}
	result.Coerced = r.Coerced()
	if result.Coerced > 0 {
		metrics.ValuesCoerced.WithLabelValues(dest).Add(float64(result.Coerced))
	}
	result.Widened = r.Widened()
	if result.Widened > 0 {
		metrics.ColumnsWidened.WithLabelValues(dest).Add(float64(result.Widened))
	}
	if s := r.Schema(); s != nil {
		result.Schema = s.String()
	}
	result.Duration = time.Since(start)
	span.SetAttribute("rows", result.Rows)
	span.SetAttribute("chunks", result.Chunks)
	span.RecordError(nil)
	return result, nil
}

// RunJobs converts each configured job in order, resolving relative sources
// against the raw zone and relative destinations against the clean zone.
// The first failure stops the run.
func (c *Converter) RunJobs(ctx context.Context, cfg *config.Config, jobs []config.ConvertJob, replace bool) ([]*Result, error) {
	results := make([]*Result, 0, len(jobs))
	for _, job := range jobs {
		src, dest := cfg.RawURI(job.Source), cfg.CleanURI(job.Dest)
		res, err := c.ConvertCSVDataset(ctx, src, dest, Options{
			ChunkSize: cfg.Convert.ChunkSize,
			Separator: job.Separator,
			Replace:   replace,
		})
		if err != nil {
			return results, err
		}
		c.logger.Info("converted dataset",
			zap.String("source", res.Source),
			zap.String("dest", res.Dest),
			zap.Int64("rows", res.Rows),
			zap.Int("chunks", res.Chunks),
			zap.Duration("duration", res.Duration))
		results = append(results, res)
	}
	return results, nil
}

func separator(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, errors.Newf(errors.ErrorTypeValidation, "invalid separator %q", s)
	}
	return r, nil
}
