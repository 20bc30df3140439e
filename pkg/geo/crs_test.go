package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

func TestParseCRS(t *testing.T) {
	tests := []struct {
		in   string
		want CRS
	}{
		{"EPSG:4326", WGS84},
		{"epsg:4269", NAD83},
		{"urn:ogc:def:crs:EPSG::3857", WebMercator},
		{"urn:ogc:def:crs:EPSG:6.18:4269", NAD83},
		{"http://www.opengis.net/def/crs/EPSG/0/3857", WebMercator},
		{"urn:ogc:def:crs:OGC:1.3:CRS84", WGS84},
		{"OGC:CRS84", WGS84},
		{"ESRI:102100", 102100},
		{" 4152 ", 4152},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCRS(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "WGS 84", "EPSG:abc"} {
		_, err := ParseCRS(bad)
		assert.Error(t, err, bad)
	}
}

func TestCRSEquivalence(t *testing.T) {
	assert.True(t, NAD83.Equivalent(WGS84))
	assert.True(t, WebMercator.Equivalent(CRS(900913)))
	assert.False(t, WGS84.Equivalent(WebMercator))
	assert.False(t, CRS(2248).Supported())
	assert.Equal(t, "EPSG:4269", NAD83.String())
}

func TestMercatorRoundTrip(t *testing.T) {
	points := []Point{{X: -76.6122, Y: 39.2904}, {X: 0, Y: 0}}
	require.NoError(t, TransformPoints(points, WGS84, WebMercator))
	assert.InDelta(t, -8528431.09, points[0].X, 0.01)
	assert.InDelta(t, 4763354.66, points[0].Y, 0.01)
	assert.InDelta(t, 0, points[1].X, 1e-9)

	require.NoError(t, TransformPoints(points, WebMercator, NAD83))
	assert.InDelta(t, -76.6122, points[0].X, 1e-9)
	assert.InDelta(t, 39.2904, points[0].Y, 1e-9)
}

func TestTransformGeometry(t *testing.T) {
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}})
	require.NoError(t, TransformGeometry(p, WGS84, WebMercator))
	assert.InDelta(t, 111319.49, p.Coords()[0][1].X(), 0.01)

	err := TransformGeometry(p, WebMercator, CRS(2248))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapability))
}
