package geo

import (
	"context"
	"math"
	"strings"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/csvsource"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/logger"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// Column names tried in order when a CSV has no explicit lon/lat
var (
	LonKeys = []string{"lon", "lng", "longitude", "x"}
	LatKeys = []string{"lat", "latitude", "y"}
)

// MsgNoCoordinateColumns is the error message when lon/lat detection fails
const MsgNoCoordinateColumns = "Could not find lon/lat columns. Provide --lon --lat."

// PointOptions selects the coordinate columns of a CSV
type PointOptions struct {
	Lon string
	Lat string
}

// PointSet is a list of points in one reference system
type PointSet struct {
	Points []Point
	CRS    CRS
	// Skipped counts rows or features without usable coordinates
	Skipped int
}

// LoadPoints reads points from a CSV with coordinate columns or from any
// supported geometry file
func LoadPoints(ctx context.Context, resolver *storage.Resolver, uri string, opts PointOptions) (*PointSet, error) {
	format, err := DetectFormat(uri)
	if err != nil {
		return nil, err
	}

	var ps *PointSet
	if format == FormatCSV {
		ps, err = loadCSVPoints(ctx, resolver, uri, opts)
	} else {
		var layer *Layer
		layer, err = ReadLayer(ctx, resolver, uri)
		if err == nil {
			ps, err = layerPoints(layer)
		}
	}
	if err != nil {
		return nil, err
	}

	if ps.Skipped > 0 {
		logger.Get().Warn("skipped points without usable coordinates",
			zap.String("path", uri), zap.Int("skipped", ps.Skipped), zap.Int("kept", len(ps.Points)))
	}
	return ps, nil
}

func loadCSVPoints(ctx context.Context, resolver *storage.Resolver, uri string, opts PointOptions) (*PointSet, error) {
	r, err := csvsource.Open(ctx, resolver, uri, csvsource.Options{})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	return FramePoints(f, opts)
}

// FramePoints builds points from a frame's coordinate columns. Explicit
// column names win over detection; detection is exact and case-sensitive.
func FramePoints(f *frame.Frame, opts PointOptions) (*PointSet, error) {
	lonName, latName := opts.Lon, opts.Lat
	if lonName == "" {
		lonName = firstPresent(f, LonKeys)
	}
	if latName == "" {
		latName = firstPresent(f, LatKeys)
	}
	if lonName == "" || latName == "" {
		return nil, errors.New(errors.ErrorTypeValidation, MsgNoCoordinateColumns).WithDetail("columns", strings.Join(f.Names(), ", "))
	}

	lon, ok := f.Column(lonName)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "lon column %q not found", lonName)
	}
	lat, ok := f.Column(latName)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeValidation, "lat column %q not found", latName)
	}

	ps := &PointSet{CRS: WGS84, Points: make([]Point, 0, f.NumRows())}
	for i := 0; i < f.NumRows(); i++ {
		x, okX := lon.Number(i)
		y, okY := lat.Number(i)
		if !okX || !okY || math.IsInf(x, 0) || math.IsInf(y, 0) {
			ps.Skipped++
			continue
		}
		ps.Points = append(ps.Points, Point{X: x, Y: y})
	}
	return ps, nil
}

func firstPresent(f *frame.Frame, keys []string) string {
	for _, k := range keys {
		if f.Has(k) {
			return k
		}
	}
	return ""
}

func layerPoints(layer *Layer) (*PointSet, error) {
	ps := &PointSet{CRS: layer.CRS, Points: make([]Point, 0, len(layer.Features))}
	for i, f := range layer.Features {
		switch g := f.Geometry.(type) {
		case nil:
			ps.Skipped++
		case *geom.Point:
			if g.Empty() || math.IsNaN(g.X()) || math.IsNaN(g.Y()) {
				ps.Skipped++
				continue
			}
			ps.Points = append(ps.Points, Point{X: g.X(), Y: g.Y()})
		case *geom.MultiPoint:
			for j := 0; j < g.NumPoints(); j++ {
				p := g.Point(j)
				if p.Empty() {
					continue
				}
				ps.Points = append(ps.Points, Point{X: p.X(), Y: p.Y()})
			}
		default:
			return nil, errors.Newf(errors.ErrorTypeValidation, "feature %d is a %T, expected points", i, f.Geometry)
		}
	}
	return ps, nil
}
