// Package spatial assigns points to census tracts and aggregates them into
// per-tract counts.
package spatial

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/geo"
)

// polygon is one exterior ring with its holes, as flat coordinates
type polygon struct {
	layout geom.Layout
	rings  [][]float64
	minX   float64
	minY   float64
	maxX   float64
	maxY   float64
}

type entry struct {
	id       string
	polygons []polygon
}

// Index holds tract polygons in layer order
type Index struct {
	entries []entry
	crs     geo.CRS
}

// NewIndex builds an index over a tract set
func NewIndex(ts *geo.TractSet) (*Index, error) {
	idx := &Index{entries: make([]entry, 0, len(ts.Tracts)), crs: ts.CRS}
	for _, t := range ts.Tracts {
		e := entry{id: t.ID}
		switch g := t.Geometry.(type) {
		case *geom.Polygon:
			e.polygons = appendPolygon(e.polygons, g)
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				e.polygons = appendPolygon(e.polygons, g.Polygon(i))
			}
		default:
			return nil, errors.Newf(errors.ErrorTypeData, "tract %s geometry is %T, expected a polygon", t.ID, t.Geometry)
		}
		idx.entries = append(idx.entries, e)
	}
	return idx, nil
}

func appendPolygon(dst []polygon, p *geom.Polygon) []polygon {
	if p.Empty() {
		return dst
	}
	b := p.Bounds()
	out := polygon{
		layout: p.Layout(),
		minX:   b.Min(0),
		minY:   b.Min(1),
		maxX:   b.Max(0),
		maxY:   b.Max(1),
	}
	for i := 0; i < p.NumLinearRings(); i++ {
		out.rings = append(out.rings, p.LinearRing(i).FlatCoords())
	}
	return append(dst, out)
}

// Len returns the number of tracts
func (idx *Index) Len() int { return len(idx.entries) }

// CRS returns the reference system of the tract coordinates
func (idx *Index) CRS() geo.CRS { return idx.crs }

// IDs returns tract ids in index order
func (idx *Index) IDs() []string {
	ids := make([]string, len(idx.entries))
	for i, e := range idx.entries {
		ids[i] = e.id
	}
	return ids
}

// Locate returns the position of the first tract containing p, or -1
func (idx *Index) Locate(p geo.Point) int {
	for i := range idx.entries {
		for j := range idx.entries[i].polygons {
			if idx.entries[i].polygons[j].within(p) {
				return i
			}
		}
	}
	return -1
}

// within is true when p is strictly inside the exterior ring and outside
// every hole. Points on any boundary are not within.
func (pg *polygon) within(p geo.Point) bool {
	if p.X < pg.minX || p.X > pg.maxX || p.Y < pg.minY || p.Y > pg.maxY {
		return false
	}
	c := geom.Coord{p.X, p.Y}
	if xy.LocatePointInRing(pg.layout, c, pg.rings[0]) != location.Interior {
		return false
	}
	for _, hole := range pg.rings[1:] {
		if xy.LocatePointInRing(pg.layout, c, hole) != location.Exterior {
			return false
		}
	}
	return true
}
