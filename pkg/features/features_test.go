package features

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wjdataeng/tractfeatures/pkg/config"
	"github.com/wjdataeng/tractfeatures/pkg/dataset"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/testutil"
)

func setup(t *testing.T) (*Builder, *dataset.Client, *config.Config) {
	t.Helper()
	testutil.TestLogger(t)
	p := testutil.NewProject(t)
	return NewBuilder(p.Config, p.Datasets), p.Datasets, p.Config
}

func TestBuildSchoolsFeature(t *testing.T) {
	ctx := context.Background()
	b, ds, cfg := setup(t)

	res, err := b.BuildSchoolsFeature(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3://lake/clean/features/tract_schools_count/", res.Dest)
	assert.Equal(t, 3, res.Tracts)
	assert.Equal(t, 3, res.Matched)
	assert.Equal(t, 1, res.Unmatched)

	f, err := ds.Read(ctx, cfg.FeatureURI("schools"))
	require.NoError(t, err)
	require.Equal(t, 3, f.NumRows(), "every tract has a row")
	col, ok := f.Column("schools_count")
	require.True(t, ok)
	assert.Equal(t, []int64{2, 0, 1}, []int64{col.IntAt(0), col.IntAt(1), col.IntAt(2)})
}

func TestBuildPointsFeatureFromCSV(t *testing.T) {
	ctx := context.Background()
	b, ds, cfg := setup(t)

	csvPath := filepath.Join(t.TempDir(), "banks.csv")
	body := "bank,X_COORD,Y_COORD\nM&T,-76.59,39.29\nPNC,-76.595,39.281\nWells,,39.29\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(body), 0o600))

	_, err := b.BuildPointsFeature(ctx, Options{Path: csvPath, Feature: "banks"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not find lon/lat columns. Provide --lon --lat.")

	res, err := b.BuildPointsFeature(ctx, Options{Path: csvPath, Feature: "banks", Lon: "X_COORD", Lat: "Y_COORD"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 1, res.Skipped)

	// a rerun replaces the previous output
	_, err = b.BuildPointsFeature(ctx, Options{Path: csvPath, Feature: "banks", Lon: "X_COORD", Lat: "Y_COORD"})
	require.NoError(t, err)
	parts, err := ds.Parts(ctx, cfg.FeatureURI("banks"))
	require.NoError(t, err)
	assert.Len(t, parts, 1)
}

func TestBuildPointsFeatureValidation(t *testing.T) {
	b, _, _ := setup(t)
	_, err := b.BuildPointsFeature(context.Background(), Options{Path: "x.csv", Feature: "Bad-Key"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = b.BuildPointsFeature(context.Background(), Options{Feature: "banks"})
	assert.Error(t, err)
}
