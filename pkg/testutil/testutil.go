// Package testutil provides fixtures for tests that run jobs against a
// local lake: a rooted filesystem store standing in for the landing bucket,
// a project layout with shape files and a test logger.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// LakeBucket is the bucket name tests use for s3:// URIs
const LakeBucket = "lake"

// TractsGeoJSON holds three adjacent tracts, west to east
const TractsGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"tract_id":"24510010100"},
  "geometry":{"type":"Polygon","coordinates":[[[-76.62,39.28],[-76.60,39.28],[-76.60,39.30],[-76.62,39.30],[-76.62,39.28]]]}},
 {"type":"Feature","properties":{"tract_id":"24510010200"},
  "geometry":{"type":"Polygon","coordinates":[[[-76.60,39.28],[-76.58,39.28],[-76.58,39.30],[-76.60,39.30],[-76.60,39.28]]]}},
 {"type":"Feature","properties":{"tract_id":"24510010300"},
  "geometry":{"type":"Polygon","coordinates":[[[-76.58,39.28],[-76.56,39.28],[-76.56,39.30],[-76.58,39.30],[-76.58,39.28]]]}}
]}`

// SchoolsGeoJSON has two schools in the first tract, one in the third and
// one outside the city
const SchoolsGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"name":"A"},"geometry":{"type":"Point","coordinates":[-76.61,39.29]}},
 {"type":"Feature","properties":{"name":"B"},"geometry":{"type":"Point","coordinates":[-76.615,39.285]}},
 {"type":"Feature","properties":{"name":"C"},"geometry":{"type":"Point","coordinates":[-76.57,39.29]}},
 {"type":"Feature","properties":{"name":"D"},"geometry":{"type":"Point","coordinates":[-77.0,39.0]}}
]}`

// TestLogger installs a zaptest logger as the global logger until the test
// completes. Components pick it up when constructed after this call.
func TestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	l := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	prev := logger.Get()
	logger.Set(l)
	t.Cleanup(func() { logger.Set(prev) })
	return l
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Project is a configured project root with its zones on a local lake
type Project struct {
	Root     string
	Lake     string
	Config   *config.Config
	Resolver *storage.Resolver
	Datasets *dataset.Client
}

// NewProject creates a project under a temp dir. Zones live at
// s3://lake/{raw,clean,curated}, backed by <root>/lake. The tract and
// school layers are written to their default local paths.
func NewProject(t *testing.T) *Project {
	t.Helper()
	root := t.TempDir()
	cfg := config.New(root)
	cfg.Storage.Raw = "s3://" + LakeBucket + "/raw"
	cfg.Storage.Clean = "s3://" + LakeBucket + "/clean"
	cfg.Storage.Curated = "s3://" + LakeBucket + "/curated"

	WriteFile(t, cfg.Paths.Tracts, TractsGeoJSON)
	WriteFile(t, cfg.Paths.Schools, SchoolsGeoJSON)

	lake := filepath.Join(root, LakeBucket)
	r := storage.NewResolver(storage.Options{})
	r.Register(storage.S3, LakeBucket, storage.NewLocalStoreAt(lake))
	t.Cleanup(func() { _ = r.Close() })

	return &Project{
		Root:     root,
		Lake:     lake,
		Config:   cfg,
		Resolver: r,
		Datasets: dataset.New(r, nil),
	}
}

// LakePath returns the local file behind an s3://lake key
func (p *Project) LakePath(key string) string {
	return filepath.Join(p.Lake, filepath.FromSlash(key))
}

// WriteFile creates path and its parent directories
func WriteFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}
