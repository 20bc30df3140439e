package curate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

const tracts = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"tract_id":"24510010100"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
 {"type":"Feature","properties":{"tract_id":"24510010200"},"geometry":{"type":"Polygon","coordinates":[[[1,0],[2,0],[2,1],[1,0]]]}},
 {"type":"Feature","properties":{"tract_id":"24510010300"},"geometry":{"type":"Polygon","coordinates":[[[2,0],[3,0],[3,1],[2,0]]]}}
]}`

type fixture struct {
	cfg      *config.Config
	datasets *dataset.Client
	curator  *Curator
	lake     string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.New(root)
	cfg.Storage.Clean = "s3://lake/clean"
	cfg.Storage.Curated = "s3://lake/curated"
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Paths.Tracts), 0o755))
	require.NoError(t, os.WriteFile(cfg.Paths.Tracts, []byte(tracts), 0o600))

	lake := filepath.Join(root, "lake")
	r := storage.NewResolver(storage.Options{})
	r.Register(storage.S3, "lake", storage.NewLocalStoreAt(lake))
	t.Cleanup(func() { _ = r.Close() })
	ds := dataset.New(r, nil)
	return &fixture{cfg: cfg, datasets: ds, curator: NewCurator(cfg, ds), lake: lake}
}

func (fx *fixture) feature(t *testing.T, name string, f *frame.Frame) {
	t.Helper()
	_, err := fx.datasets.Write(context.Background(), fx.cfg.CleanURI("features/"+name+"/"), f, dataset.ModeOverwrite)
	require.NoError(t, err)
}

func floats(t *testing.T, f *frame.Frame, name string) []interface{} {
	t.Helper()
	col, ok := f.Column(name)
	require.True(t, ok, name)
	out := make([]interface{}, col.Len())
	for i := range out {
		out[i] = col.Value(i)
	}
	return out
}

func TestCurateStatic(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)
	fx.feature(t, "tract_schools_count", frame.MustNew(
		frame.Strings("tract_id", "24510010300", "24510010100"),
		frame.Int64s("points_count", 4, 1)))

	summary, err := fx.curator.Curate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Tracts)
	assert.Equal(t, []string{"tract_id", "schools_count"}, summary.Columns)

	out, err := fx.datasets.Read(ctx, fx.cfg.CuratedTableURI())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{1.0, 0.0, 4.0}, floats(t, out, "schools_count"))
}

func TestCurateStaticMissingFeature(t *testing.T) {
	fx := setup(t)
	_, err := fx.curator.Curate(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestCurateDynamic(t *testing.T) {
	ctx := context.Background()
	fx := setup(t)

	fx.feature(t, "tract_schools_count", frame.MustNew(
		frame.Strings("tract_id", "24510010100", "24510010300"),
		frame.Int64s("schools_count", 2, 1)))
	fx.feature(t, "tract_median_income", frame.MustNew(
		frame.Float64s("GEOID", 24510010200, 24510010200, 24510099999),
		frame.Float64s("Shape_Area", 1, 1, 1),
		frame.Strings("median_income", "51000", "52000", "n/a")))
	fx.feature(t, "tract_labels", frame.MustNew(
		frame.Strings("tract_id", "24510010100"),
		frame.Strings("label", "downtown")))
	fx.feature(t, "tract_orphan", frame.MustNew(frame.Int64s("households", 10)))
	require.NoError(t, os.MkdirAll(filepath.Join(fx.lake, "clean", "features", "tract_empty"), 0o755))

	summary, err := fx.curator.CurateDynamic(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Tracts)
	assert.Equal(t, []string{"tract_id", "tract_median_income", "tract_schools_count"}, summary.Columns)
	require.Len(t, summary.Features, 2)
	assert.Equal(t, FeatureSummary{
		Name: "tract_median_income", Picked: "median_income", As: "tract_median_income",
		RowsBefore: 3, RowsAfter: 3, NonNull: 2,
	}, summary.Features[0])
	assert.Equal(t, "schools_count", summary.Features[1].Picked)

	var skipped []string
	for _, s := range summary.Skipped {
		skipped = append(skipped, s.Name)
	}
	assert.Equal(t, []string{"tract_empty", "tract_labels", "tract_orphan"}, skipped)

	out, err := fx.datasets.Read(ctx, fx.cfg.CuratedTableURI())
	require.NoError(t, err)
	require.Equal(t, 3, out.NumRows(), "merging never changes the base row count")
	assert.Equal(t, []interface{}{2.0, 0.0, 1.0}, floats(t, out, "tract_schools_count"))
	assert.Equal(t, []interface{}{nil, 51000.0, nil}, floats(t, out, "tract_median_income"),
		"first duplicate key wins and non-count columns keep nulls")
}

func TestCurateDynamicNoFeatures(t *testing.T) {
	fx := setup(t)
	_, err := fx.curator.CurateDynamic(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), MsgNoFeatureDirs)
}

func TestWriteSummary(t *testing.T) {
	fx := setup(t)
	path := filepath.Join(t.TempDir(), "summary.json")
	in := &Summary{Dest: "s3://lake/curated/tract_features/", Tracts: 3,
		Features: []FeatureSummary{{Name: "tract_schools_count", Picked: "schools_count", As: "tract_schools_count"}}}
	require.NoError(t, fx.curator.WriteSummary(context.Background(), path, in))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"picked": "schools_count"`))

	var out Summary
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Features, out.Features)
}
