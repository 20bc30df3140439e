package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

func TestNewDefaults(t *testing.T) {
	cfg := New("/data/proj")

	assert.Equal(t, "s3://dataeng-landing-wj/raw", cfg.Storage.Raw)
	assert.Equal(t, "s3://dataeng-landing-wj/curated", cfg.Storage.Curated)
	assert.Equal(t, DefaultChunkSize, cfg.Convert.ChunkSize)
	assert.Len(t, cfg.Convert.Jobs, 5)
	assert.Equal(t, filepath.Join("/data/proj", "data_raw", "shapes", "Baltimore_City_Schools.geojson"), cfg.Paths.Schools)
	assert.Equal(t, filepath.Join("/data/proj", "data_raw", "shapes", "2020_Census_Tracts_(Census_TIGER).geojson"), cfg.Paths.TractsRaw)
	assert.Equal(t, "s3://dataeng-landing-wj/raw/shapes/2020_Census_Tracts_(Census_TIGER).geojson",
		cfg.ShapeMirrorURI(cfg.Paths.TractsRaw))
	require.NoError(t, cfg.Validate())
}

func TestZoneJoin(t *testing.T) {
	cfg := New("/p")
	cfg.Storage.Clean = "gs://lake/clean/"

	tests := []struct {
		name string
		rel  string
		want string
	}{
		{"relative", "cbp/23co/", "gs://lake/clean/cbp/23co/"},
		{"trailing zone slash", "features/", "gs://lake/clean/features/"},
		{"absolute uri", "s3://other/x/", "s3://other/x/"},
		{"absolute path", "/tmp/out/", "/tmp/out/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.CleanURI(tt.rel))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Convert.ChunkSize = 0 }},
		{"missing zone", func(c *Config) { c.Storage.Curated = "" }},
		{"bad codec", func(c *Config) { c.Storage.Compression = "brotli" }},
		{"job without dest", func(c *Config) { c.Convert.Jobs = []ConvertJob{{Source: "a.csv"}} }},
		{"sample rate", func(c *Config) { c.Observability.TracingSampleRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New("/p")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestValidateFeatureKey(t *testing.T) {
	for _, key := range []string{"banks", "clinics", "bus_stops2"} {
		assert.NoError(t, ValidateFeatureKey(key), key)
	}
	for _, key := range []string{"", "Banks", "2banks", "bus-stops", "../x"} {
		assert.Error(t, ValidateFeatureKey(key), key)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tractfeatures.yaml")
	content := `
root: /srv/tracts
storage:
  base: ${TF_TEST_BASE}
convert:
  chunk_size: 1000
  jobs:
    - source: small.csv
      dest: small/
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("TF_TEST_BASE", "gs://lake")
	t.Setenv("TRACTFEATURES_OBSERVABILITY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/tracts", cfg.Root)
	assert.Equal(t, "gs://lake/clean", cfg.Storage.Clean)
	assert.Equal(t, 1000, cfg.Convert.ChunkSize)
	require.Len(t, cfg.Convert.Jobs, 1)
	assert.Equal(t, "small.csv", cfg.Convert.Jobs[0].Source)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
	assert.Equal(t, "/srv/tracts/shapes/baltimore_tracts_2020.geojson", cfg.Paths.Tracts)
	assert.Equal(t, BaltimoreCityPrefix, cfg.Tracts.CountyPrefix)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, New("/p")))
	assert.Contains(t, buf.String(), "bucket: dataeng-landing-wj")
	assert.Contains(t, buf.String(), "chunk_size: 250000")
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TF_BUCKET", "my-bucket")
	assert.Equal(t, "bucket: my-bucket", substituteEnvVars("bucket: ${TF_BUCKET}"))
	assert.Equal(t, "bucket: ", substituteEnvVars("bucket: ${TF_UNSET_VAR_X}"))
}
