package geo

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// crsMember is the legacy GeoJSON 2008 "crs" member
type crsMember struct {
	CRS *geojson.CRS `json:"crs"`
}

func decodeGeoJSON(data []byte, uri string) (*Layer, error) {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid GeoJSON feature collection").WithDetail("path", uri)
	}

	crs := WGS84
	var member crsMember
	if err := json.Unmarshal(data, &member); err == nil && member.CRS != nil {
		name, _ := member.CRS.Properties["name"].(string)
		parsed, err := ParseCRS(name)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid GeoJSON crs member").WithDetail("path", uri)
		}
		crs = parsed
	}

	layer := &Layer{CRS: crs, Features: make([]Feature, 0, len(fc.Features))}
	for _, f := range fc.Features {
		layer.Features = append(layer.Features, Feature{Geometry: f.Geometry, Properties: f.Properties})
	}
	return layer, nil
}

// EncodeGeoJSON renders a layer as a FeatureCollection. Non-WGS84 layers
// carry a legacy crs member.
func EncodeGeoJSON(layer *Layer) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(layer.Features))}
	for _, f := range layer.Features {
		fc.Features = append(fc.Features, &geojson.Feature{Geometry: f.Geometry, Properties: f.Properties})
	}
	body, err := json.Marshal(&fc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode GeoJSON")
	}
	if layer.CRS == 0 || layer.CRS == WGS84 {
		return body, nil
	}

	member, err := json.Marshal(crsMember{CRS: &geojson.CRS{
		Type:       "name",
		Properties: map[string]interface{}{"name": "urn:ogc:def:crs:EPSG::" + strconv.Itoa(int(layer.CRS))},
	}})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode crs member")
	}
	// splice {"crs":...} into the collection object
	out := make([]byte, 0, len(body)+len(member))
	out = append(out, bytes.TrimSuffix(member, []byte("}"))...)
	out = append(out, ',')
	out = append(out, bytes.TrimPrefix(body, []byte("{"))...)
	return out, nil
}
