package geo

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// TractIDProperty is the standardized tract identifier property
const TractIDProperty = "tract_id"

// Tract is one census tract polygon
type Tract struct {
	ID       string
	Geometry geom.T
}

// TractSet is the tract layer in its reference system
type TractSet struct {
	Tracts []Tract
	CRS    CRS
}

// IDs returns the tract ids in layer order
func (ts *TractSet) IDs() []string {
	ids := make([]string, len(ts.Tracts))
	for i, t := range ts.Tracts {
		ids[i] = t.ID
	}
	return ids
}

// LoadTracts reads a standardized tract layer. Every feature needs a
// tract_id property and a Polygon or MultiPolygon geometry.
func LoadTracts(ctx context.Context, resolver *storage.Resolver, uri string) (*TractSet, error) {
	layer, err := ReadLayer(ctx, resolver, uri)
	if err != nil {
		return nil, err
	}
	ts, err := LayerTracts(layer, TractIDProperty)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "invalid tract layer").WithDetail("path", uri)
	}
	return ts, nil
}

// LayerTracts converts a layer into tracts keyed by idProperty
func LayerTracts(layer *Layer, idProperty string) (*TractSet, error) {
	ts := &TractSet{CRS: layer.CRS, Tracts: make([]Tract, 0, len(layer.Features))}
	seen := make(map[string]int, len(layer.Features))
	for i, f := range layer.Features {
		id, ok := FormatID(f.Properties[idProperty])
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "feature %d has no %s property", i, idProperty)
		}
		if first, dup := seen[id]; dup {
			return nil, errors.Newf(errors.ErrorTypeData, "tract %s appears in features %d and %d", id, first, i).
				WithDetail("property", idProperty)
		}
		seen[id] = i
		switch f.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			return nil, errors.Newf(errors.ErrorTypeData, "tract %s geometry is %T, expected a polygon", id, f.Geometry)
		}
		ts.Tracts = append(ts.Tracts, Tract{ID: id, Geometry: f.Geometry})
	}
	return ts, nil
}

// FormatID renders an identifier property as text. Integral numbers print
// without a fractional part.
func FormatID(v interface{}) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		if math.IsNaN(id) {
			return "", false
		}
		if id == math.Trunc(id) {
			return strconv.FormatInt(int64(id), 10), true
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(id, 10), true
	case int:
		return strconv.Itoa(id), true
	}
	return "", false
}

// WriteGeoJSON encodes a layer and stores it at uri
func WriteGeoJSON(ctx context.Context, resolver *storage.Resolver, uri string, layer *Layer) error {
	body, err := EncodeGeoJSON(layer)
	if err != nil {
		return err
	}
	store, key, err := resolver.Resolve(ctx, uri)
	if err != nil {
		return err
	}
	return store.Put(ctx, key, bytes.NewReader(body), map[string]string{"content-type": "application/geo+json"})
}
