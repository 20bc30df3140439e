// Package config holds the project-wide paths and constants for the tract
// feature jobs: local shape files, object store zones, conversion jobs and
// publish targets.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then TRACTFEATURES_* environment variables. The YAML file may reference
// environment variables as ${NAME}.
//
// Example usage:
//
//	cfg, err := config.Load("tractfeatures.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dest := cfg.FeatureURI("banks") // s3://dataeng-landing-wj/clean/features/tract_banks_count/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// DefaultBucket is the landing bucket every zone derives from.
const DefaultBucket = "dataeng-landing-wj"

// DefaultChunkSize is the number of rows converted per appended part file.
const DefaultChunkSize = 250_000

// BaltimoreCityPrefix is the state+county FIPS prefix of Baltimore City tracts.
const BaltimoreCityPrefix = "24510"

var featureKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Config is the single configuration structure shared by every subcommand.
type Config struct {
	// Root is the project root. Local shape paths are resolved against it.
	Root string `yaml:"root" json:"root" mapstructure:"root"`

	Storage       StorageConfig       `yaml:"storage" json:"storage" mapstructure:"storage"`
	Paths         PathsConfig         `yaml:"paths" json:"paths" mapstructure:"paths"`
	Convert       ConvertConfig       `yaml:"convert" json:"convert" mapstructure:"convert"`
	Tracts        TractsConfig        `yaml:"tracts" json:"tracts" mapstructure:"tracts"`
	Publish       PublishConfig       `yaml:"publish" json:"publish" mapstructure:"publish"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// StorageConfig describes the object store zones.
type StorageConfig struct {
	// Bucket is used to derive any zone left empty
	Bucket string `yaml:"bucket" json:"bucket" mapstructure:"bucket"`
	// Base overrides the zone root, e.g. gs://bucket or /tmp/lake
	Base    string `yaml:"base" json:"base" mapstructure:"base"`
	Raw     string `yaml:"raw" json:"raw" mapstructure:"raw"`
	Clean   string `yaml:"clean" json:"clean" mapstructure:"clean"`
	Curated string `yaml:"curated" json:"curated" mapstructure:"curated"`
	// Region for the S3 client; empty uses the SDK default chain
	Region string `yaml:"region" json:"region" mapstructure:"region"`
	// GCSCredentialsFile is an optional service account key for gs:// URIs
	GCSCredentialsFile string `yaml:"gcs_credentials_file" json:"gcs_credentials_file" mapstructure:"gcs_credentials_file"`
	// UploadPartSizeMB and UploadConcurrency tune the S3 multipart uploader
	UploadPartSizeMB  int64 `yaml:"upload_part_size_mb" json:"upload_part_size_mb" mapstructure:"upload_part_size_mb"`
	UploadConcurrency int   `yaml:"upload_concurrency" json:"upload_concurrency" mapstructure:"upload_concurrency"`
	// Compression is the parquet codec: snappy, gzip, zstd or none
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
}

// PathsConfig lists local shape inputs and standardized outputs.
type PathsConfig struct {
	RawShapes  string `yaml:"raw_shapes" json:"raw_shapes" mapstructure:"raw_shapes"`
	ProjShapes string `yaml:"proj_shapes" json:"proj_shapes" mapstructure:"proj_shapes"`
	TractsRaw  string `yaml:"tracts_raw" json:"tracts_raw" mapstructure:"tracts_raw"`
	CSAsRaw    string `yaml:"csas_raw" json:"csas_raw" mapstructure:"csas_raw"`
	Tracts     string `yaml:"tracts" json:"tracts" mapstructure:"tracts"`
	Schools    string `yaml:"schools" json:"schools" mapstructure:"schools"`
}

// ConvertConfig configures the raw to clean conversion.
type ConvertConfig struct {
	ChunkSize int          `yaml:"chunk_size" json:"chunk_size" mapstructure:"chunk_size"`
	Jobs      []ConvertJob `yaml:"jobs" json:"jobs" mapstructure:"jobs"`
}

// ConvertJob is one source file and its destination dataset. Relative
// values are resolved against the raw and clean zones.
type ConvertJob struct {
	Source    string `yaml:"source" json:"source" mapstructure:"source"`
	Dest      string `yaml:"dest" json:"dest" mapstructure:"dest"`
	Separator string `yaml:"separator,omitempty" json:"separator,omitempty" mapstructure:"separator"`
}

// TractsConfig configures tract standardization.
type TractsConfig struct {
	CountyPrefix string `yaml:"county_prefix" json:"county_prefix" mapstructure:"county_prefix"`
	// Mirror uploads the raw shapes to <raw>/shapes/ when set
	Mirror bool `yaml:"mirror" json:"mirror" mapstructure:"mirror"`
}

// PublishConfig lists the optional warehouse targets.
type PublishConfig struct {
	PostgresDSN     string `yaml:"postgres_dsn" json:"postgres_dsn" mapstructure:"postgres_dsn"`
	PostgresTable   string `yaml:"postgres_table" json:"postgres_table" mapstructure:"postgres_table"`
	BigQueryProject string `yaml:"bigquery_project" json:"bigquery_project" mapstructure:"bigquery_project"`
	BigQueryDataset string `yaml:"bigquery_dataset" json:"bigquery_dataset" mapstructure:"bigquery_dataset"`
	BigQueryTable   string `yaml:"bigquery_table" json:"bigquery_table" mapstructure:"bigquery_table"`
}

// ObservabilityConfig controls logging, tracing and metrics push.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format" mapstructure:"log_format"`
	// Tracing enables the stdout span exporter
	Tracing           bool    `yaml:"tracing" json:"tracing" mapstructure:"tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
	// PushgatewayURL, when set, receives job metrics on exit
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url" mapstructure:"pushgateway_url"`
}

// DetectRoot returns the project root for a working directory. Running from
// a notebooks/ directory resolves to its parent.
func DetectRoot(cwd string) string {
	if filepath.Base(cwd) == "notebooks" {
		return filepath.Dir(cwd)
	}
	return cwd
}

// DefaultConvertJobs returns the raw ASEC/CBP/ZBP conversions.
func DefaultConvertJobs() []ConvertJob {
	return []ConvertJob{
		{Source: "pppub24.csv", Dest: "asec/pppub24/"},
		{Source: "asec_csv_repwgt_2024.csv", Dest: "asec/repwgt/"},
		{Source: "cbp23co.txt", Dest: "cbp/23co/", Separator: ","},
		{Source: "cbp23msa.txt", Dest: "cbp/23msa/", Separator: ","},
		{Source: "zbp23detail.txt", Dest: "zbp/23detail/", Separator: ","},
	}
}

// New returns a Config with defaults for the given project root.
func New(root string) *Config {
	cfg := &Config{
		Root: root,
		Storage: StorageConfig{
			Bucket:            DefaultBucket,
			UploadPartSizeMB:  10,
			UploadConcurrency: 5,
			Compression:       "snappy",
		},
		Convert: ConvertConfig{
			ChunkSize: DefaultChunkSize,
			Jobs:      DefaultConvertJobs(),
		},
		Tracts: TractsConfig{
			CountyPrefix: BaltimoreCityPrefix,
		},
		Publish: PublishConfig{
			PostgresTable: "tract_features",
			BigQueryTable: "tract_features",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "console",
			TracingSampleRate: 1.0,
		},
	}
	cfg.resolve()
	return cfg
}

// resolve fills derived paths and zones that were left empty.
func (c *Config) resolve() {
	if c.Root == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.Root = DetectRoot(cwd)
		}
	}
	if c.Paths.RawShapes == "" {
		c.Paths.RawShapes = filepath.Join(c.Root, "data_raw", "shapes")
	}
	if c.Paths.ProjShapes == "" {
		c.Paths.ProjShapes = filepath.Join(c.Root, "shapes")
	}
	if c.Paths.TractsRaw == "" {
		c.Paths.TractsRaw = filepath.Join(c.Paths.RawShapes, "2020_Census_Tracts_(Census_TIGER).geojson")
	}
	if c.Paths.CSAsRaw == "" {
		c.Paths.CSAsRaw = filepath.Join(c.Paths.RawShapes, "Community_Statistical_Areas_(CSAs)__Reference_Boundaries.geojson")
	}
	if c.Paths.Tracts == "" {
		c.Paths.Tracts = filepath.Join(c.Paths.ProjShapes, "baltimore_tracts_2020.geojson")
	}
	if c.Paths.Schools == "" {
		c.Paths.Schools = filepath.Join(c.Paths.RawShapes, "Baltimore_City_Schools.geojson")
	}

	base := strings.TrimSuffix(c.Storage.Base, "/")
	if base == "" && c.Storage.Bucket != "" {
		base = "s3://" + c.Storage.Bucket
	}
	if c.Storage.Raw == "" && base != "" {
		c.Storage.Raw = base + "/raw"
	}
	if c.Storage.Clean == "" && base != "" {
		c.Storage.Clean = base + "/clean"
	}
	if c.Storage.Curated == "" && base != "" {
		c.Storage.Curated = base + "/curated"
	}
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Storage.Raw == "" || c.Storage.Clean == "" || c.Storage.Curated == "" {
		return errors.New(errors.ErrorTypeConfig, "storage zones are required (set storage.bucket or storage.base)")
	}
	if c.Paths.CSAsRaw == "" {
		c.Paths.CSAsRaw = filepath.Join(c.Paths.RawShapes, "Community_Statistical_Areas_(CSAs)__Reference_Boundaries.geojson")
	}
	if c.Paths.Tracts == "" {
		return errors.New(errors.ErrorTypeConfig, "paths.tracts is required")
	}
	if c.Convert.ChunkSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "convert.chunk_size must be positive").
			WithDetail("chunk_size", c.Convert.ChunkSize)
	}
	for i, job := range c.Convert.Jobs {
		if job.Source == "" || job.Dest == "" {
			return errors.Newf(errors.ErrorTypeConfig, "convert.jobs[%d] needs source and dest", i)
		}
	}
	switch c.Storage.Compression {
	case "", "snappy", "gzip", "zstd", "none":
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", c.Storage.Compression)
	}
	if r := c.Observability.TracingSampleRate; r < 0 || r > 1 {
		return errors.New(errors.ErrorTypeConfig, "observability.tracing_sample_rate must be within [0, 1]")
	}
	return nil
}

// RawURI joins a relative object key onto the raw zone. Absolute URIs and
// paths are returned unchanged.
func (c *Config) RawURI(rel string) string { return joinZone(c.Storage.Raw, rel) }

// CleanURI joins a relative object key onto the clean zone.
func (c *Config) CleanURI(rel string) string { return joinZone(c.Storage.Clean, rel) }

// CuratedURI joins a relative object key onto the curated zone.
func (c *Config) CuratedURI(rel string) string { return joinZone(c.Storage.Curated, rel) }

// ShapeMirrorURI is the raw zone copy of a local shape file.
func (c *Config) ShapeMirrorURI(localPath string) string {
	return c.RawURI("shapes/" + filepath.Base(localPath))
}

// FeaturesURI is the directory holding one dataset per feature.
func (c *Config) FeaturesURI() string { return c.CleanURI("features/") }

// FeatureURI is the dataset for a point feature key.
func (c *Config) FeatureURI(key string) string {
	return c.CleanURI(fmt.Sprintf("features/tract_%s_count/", key))
}

// CuratedTableURI is the curated tract features dataset.
func (c *Config) CuratedTableURI() string { return c.CuratedURI("tract_features/") }

// ValidateFeatureKey checks that a feature key makes a usable column and folder name.
func ValidateFeatureKey(key string) error {
	if !featureKeyPattern.MatchString(key) {
		return errors.Newf(errors.ErrorTypeValidation, "invalid feature key %q: use lowercase letters, digits and underscores", key)
	}
	return nil
}

func joinZone(zone, rel string) string {
	if rel == "" {
		return zone
	}
	if strings.Contains(rel, "://") || filepath.IsAbs(rel) {
		return rel
	}
	return strings.TrimSuffix(zone, "/") + "/" + strings.TrimPrefix(rel, "/")
}
