package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/convert"
	"github.com/wjdataeng/tractfeatures/pkg/curate"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/features"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/publish"
	"github.com/wjdataeng/tractfeatures/pkg/tracts"
)

func newConvertCommand(a *app) *cobra.Command {
	var (
		replace bool
		source  string
		dest    string
		sep     string
	)

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert raw CSV files to chunked Parquet datasets",
		Long: `Convert reads each raw delimited file in chunks and appends one Parquet
part per chunk to its clean dataset. Without --source the configured jobs
run in order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "convert", func(ctx context.Context) error {
				conv := convert.NewConverter(a.datasets)
				if source == "" {
					_, err := conv.RunJobs(ctx, a.cfg, a.cfg.Convert.Jobs, replace)
					return err
				}
				if dest == "" {
					return errors.New(errors.ErrorTypeValidation, "--dest is required with --source")
				}
				res, err := conv.ConvertCSVDataset(ctx, a.cfg.RawURI(source), a.cfg.CleanURI(dest), convert.Options{
					ChunkSize: a.cfg.Convert.ChunkSize,
					Separator: sep,
					Replace:   replace,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: %d rows in %d chunks\n", res.Source, res.Dest, res.Rows, res.Chunks)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Clear each destination before writing instead of appending")
	cmd.Flags().StringVar(&source, "source", "", "Single source file, relative to the raw zone or a full URI")
	cmd.Flags().StringVar(&dest, "dest", "", "Destination dataset for --source, relative to the clean zone or a full URI")
	cmd.Flags().StringVar(&sep, "sep", "", "Field separator for --source (default \",\")")
	return cmd
}

func newPointsCommand(a *app) *cobra.Command {
	var opts features.Options

	cmd := &cobra.Command{
		Use:   "points",
		Short: "Count a point layer per tract",
		Long: `Points joins a point layer (GeoJSON, GeoPackage, GeoParquet or CSV with
coordinate columns) to the Baltimore City tracts and writes the per-tract
count to clean/features/tract_<feature>_count/. Tracts without points get 0.`,
		Example: `  tractfeatures points --path data_raw/banks.csv --feature banks
  tractfeatures points --path s3://dataeng-landing-wj/raw/clinics.gpkg --feature clinics
  tractfeatures points --path stops.csv --feature bus_stops --lon stop_lon --lat stop_lat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "points", func(ctx context.Context) error {
				ctx = context.WithValue(ctx, logger.FeatureKey, opts.Feature)
				res, err := features.NewBuilder(a.cfg, a.datasets).BuildPointsFeature(ctx, opts)
				if err != nil {
					return err
				}
				printFeature(cmd, res)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.Path, "path", "", "Point layer path or URI")
	cmd.Flags().StringVar(&opts.Feature, "feature", "", "Feature key, e.g. banks")
	cmd.Flags().StringVar(&opts.Lon, "lon", "", "Longitude column for CSV input")
	cmd.Flags().StringVar(&opts.Lat, "lat", "", "Latitude column for CSV input")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("feature")
	return cmd
}

func newSchoolsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schools",
		Short: "Count Baltimore City schools per tract",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "schools", func(ctx context.Context) error {
				ctx = context.WithValue(ctx, logger.FeatureKey, features.SchoolsFeature)
				res, err := features.NewBuilder(a.cfg, a.datasets).BuildSchoolsFeature(ctx)
				if err != nil {
					return err
				}
				printFeature(cmd, res)
				return nil
			})
		},
	}
}

func printFeature(cmd *cobra.Command, res *features.Result) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tracts, %d points matched, %d unmatched, %d skipped -> %s\n",
		res.Feature, res.Tracts, res.Matched, res.Unmatched, res.Skipped, res.Dest)
}

func newCurateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "curate",
		Short: "Build the curated table from the schools feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "curate", func(ctx context.Context) error {
				s, err := curate.NewCurator(a.cfg, a.datasets).Curate(ctx)
				if err != nil {
					return err
				}
				printSummary(cmd, s)
				return nil
			})
		},
	}
}

func newCurateDynamicCommand(a *app) *cobra.Command {
	var summary string

	cmd := &cobra.Command{
		Use:   "curate-dynamic",
		Short: "Merge every feature dataset into the curated table",
		Long: `Curate-dynamic discovers every directory under clean/features/, detects
its tract id and value columns and left-merges the values onto the full
tract list. Features that cannot be interpreted are skipped and reported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "curate-dynamic", func(ctx context.Context) error {
				c := curate.NewCurator(a.cfg, a.datasets)
				s, err := c.CurateDynamic(ctx)
				if err != nil {
					return err
				}
				if summary != "" {
					if err := c.WriteSummary(ctx, summary, s); err != nil {
						return err
					}
				}
				printSummary(cmd, s)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&summary, "summary", "", "Also write the run summary as JSON to this path or URI")
	return cmd
}

func printSummary(cmd *cobra.Command, s *curate.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "wrote %d tracts x %d columns -> %s\n", s.Tracts, len(s.Columns), s.Dest)
	for _, f := range s.Features {
		fmt.Fprintf(out, "  merged %s (%s, %d non-null)\n", f.Name, f.Picked, f.NonNull)
	}
	for _, sk := range s.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", sk.Name, sk.Reason)
	}
}

func newTractsCommand(a *app) *cobra.Command {
	var mirror bool

	cmd := &cobra.Command{
		Use:   "tracts",
		Short: "Standardize the Baltimore City tract layer",
		Long: `Tracts filters the TIGER tract layer to the configured county prefix and
writes it with a single tract_id property. With --mirror the raw shape
files are also uploaded to the raw zone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "tracts", func(ctx context.Context) error {
				res, err := tracts.Standardize(ctx, a.resolver, a.cfg.Paths.TractsRaw, a.cfg.Paths.Tracts, a.cfg.Tracts.CountyPrefix)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "kept %d of %d tracts -> %s\n", res.Kept, res.Read, res.Dest)

				if !mirror && !a.cfg.Tracts.Mirror {
					return nil
				}
				uploaded, err := tracts.Mirror(ctx, a.resolver, a.cfg)
				if err != nil {
					return err
				}
				for _, uri := range uploaded {
					fmt.Fprintf(cmd.OutOrStdout(), "mirrored %s\n", uri)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&mirror, "mirror", false, "Upload the raw shape files to the raw zone")
	return cmd
}

func newPublishCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Load the curated table into the configured warehouses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, "publish", func(ctx context.Context) error {
				p := a.cfg.Publish
				toPostgres := p.PostgresDSN != ""
				toBigQuery := p.BigQueryProject != "" && p.BigQueryDataset != ""
				if !toPostgres && !toBigQuery {
					return errors.New(errors.ErrorTypeConfig, "no publish target configured").
						WithDetail("hint", "set publish.postgres_dsn or publish.bigquery_project and publish.bigquery_dataset")
				}

				src := a.cfg.CuratedTableURI()
				out := cmd.OutOrStdout()
				if toPostgres {
					f, err := a.datasets.Read(ctx, src)
					if err != nil {
						return err
					}
					res, err := publish.PublishPostgres(ctx, p.PostgresDSN, p.PostgresTable, f)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "postgres: %d rows -> %s\n", res.Rows, res.Table)
				}
				if toBigQuery {
					res, err := publish.PublishBigQuery(ctx, publish.BigQueryOptions{
						Project:         p.BigQueryProject,
						Dataset:         p.BigQueryDataset,
						Table:           p.BigQueryTable,
						CredentialsFile: a.cfg.Storage.GCSCredentialsFile,
					}, src)
					if err != nil {
						return err
					}
					logger.Get().Debug("bigquery load finished", zap.String("job_id", res.JobID))
					fmt.Fprintf(out, "bigquery: %d rows -> %s.%s.%s\n", res.OutputRows, p.BigQueryProject, p.BigQueryDataset, p.BigQueryTable)
				}
				return nil
			})
		},
	}
}

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return config.Dump(cmd.OutOrStdout(), a.cfg)
		},
	}
}
