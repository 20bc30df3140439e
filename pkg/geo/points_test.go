package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
)

func TestFramePointsDetection(t *testing.T) {
	tests := []struct {
		name    string
		frame   *frame.Frame
		opts    PointOptions
		want    []Point
		skipped int
	}{
		{
			name: "lon lat",
			frame: frame.MustNew(
				frame.Float64s("lon", -76.6, -76.5),
				frame.Float64s("lat", 39.3, 39.2)),
			want: []Point{{-76.6, 39.3}, {-76.5, 39.2}},
		},
		{
			name: "longitude before x",
			frame: frame.MustNew(
				frame.Float64s("x", 1),
				frame.Float64s("longitude", -76.6),
				frame.Float64s("y", 2),
				frame.Float64s("latitude", 39.3)),
			want: []Point{{-76.6, 39.3}},
		},
		{
			name: "explicit columns",
			frame: frame.MustNew(
				frame.Strings("X_COORD", "-76.6", "bad"),
				frame.Strings("Y_COORD", "39.3", "39.1")),
			opts:    PointOptions{Lon: "X_COORD", Lat: "Y_COORD"},
			want:    []Point{{-76.6, 39.3}},
			skipped: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := FramePoints(tt.frame, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ps.Points)
			assert.Equal(t, tt.skipped, ps.Skipped)
			assert.Equal(t, WGS84, ps.CRS)
		})
	}
}

func TestFramePointsMissingColumns(t *testing.T) {
	f := frame.MustNew(frame.Float64s("Longitude", -76.6), frame.Float64s("Latitude", 39.3))
	_, err := FramePoints(f, PointOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.Contains(t, err.Error(), MsgNoCoordinateColumns)

	_, err = FramePoints(f, PointOptions{Lon: "Longitude", Lat: "lat_dd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat_dd")
}

func TestLoadCSVPoints(t *testing.T) {
	r := newResolver(t)
	put(t, r, "s3://lake/raw/banks.csv", []byte("name,lat,lon\nM&T,39.29,-76.61\nPNC,,-76.60\nTruist,39.31,-76.59\n"))

	ps, err := LoadPoints(context.Background(), r, "s3://lake/raw/banks.csv", PointOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Point{{-76.61, 39.29}, {-76.59, 39.31}}, ps.Points)
	assert.Equal(t, 1, ps.Skipped)
}

func TestLayerPointsRejectsPolygons(t *testing.T) {
	layer := &Layer{CRS: WGS84, Features: []Feature{
		{Geometry: geom.NewMultiPoint(geom.XY).MustSetCoords([]geom.Coord{{1, 2}, {3, 4}})},
		{Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})},
	}}
	_, err := layerPoints(layer)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	layer.Features = layer.Features[:1]
	ps, err := layerPoints(layer)
	require.NoError(t, err)
	assert.Equal(t, []Point{{1, 2}, {3, 4}}, ps.Points)
}
