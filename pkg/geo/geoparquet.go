package geo

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/formats/columnar"
)

// geoMetadata is the GeoParquet "geo" file metadata entry
type geoMetadata struct {
	Version       string                       `json:"version"`
	PrimaryColumn string                       `json:"primary_column"`
	Columns       map[string]geoColumnMetadata `json:"columns"`
}

type geoColumnMetadata struct {
	Encoding string `json:"encoding"`
	// CRS is PROJJSON; absent means OGC:CRS84
	CRS json.RawMessage `json:"crs,omitempty"`
}

type projJSON struct {
	ID *struct {
		Authority string      `json:"authority"`
		Code      interface{} `json:"code"`
	} `json:"id"`
}

func decodeGeoParquet(data []byte, uri string) (*Layer, error) {
	file, err := columnar.ReadFile(bytes.NewReader(data), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid Parquet file").WithDetail("path", uri)
	}

	meta := geoMetadata{PrimaryColumn: "geometry"}
	if raw, ok := file.Metadata["geo"]; ok {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid GeoParquet metadata").WithDetail("path", uri)
		}
	}

	col, ok := file.Frame.Column(meta.PrimaryColumn)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "GeoParquet geometry column %q not found", meta.PrimaryColumn).
			WithDetail("path", uri)
	}

	layer := &Layer{CRS: WGS84}
	if cm, ok := meta.Columns[meta.PrimaryColumn]; ok {
		if cm.Encoding != "" && !strings.EqualFold(cm.Encoding, "WKB") {
			return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported GeoParquet encoding %q", cm.Encoding).
				WithDetail("path", uri)
		}
		if crs, err := parseProjJSON(cm.CRS); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid GeoParquet crs").WithDetail("path", uri)
		} else if crs != 0 {
			layer.CRS = crs
		}
	}

	props := file.Frame.Drop(meta.PrimaryColumn)
	layer.Features = make([]Feature, file.Frame.NumRows())
	for i := range layer.Features {
		f := Feature{Properties: make(map[string]interface{}, props.NumCols())}
		for _, c := range props.Columns() {
			f.Properties[c.Name] = c.Value(i)
		}
		if !col.IsNull(i) {
			g, err := wkb.Unmarshal([]byte(col.StringAt(i)))
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid WKB geometry").
					WithDetail("path", uri).WithDetail("row", i)
			}
			f.Geometry = g
		}
		layer.Features[i] = f
	}
	return layer, nil
}

// parseProjJSON returns 0 when raw is absent or null
func parseProjJSON(raw json.RawMessage) (CRS, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	// some writers store the CRS as a plain string
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseCRS(s)
	}
	var pj projJSON
	if err := json.Unmarshal(raw, &pj); err != nil {
		return 0, err
	}
	if pj.ID == nil {
		return 0, errors.New(errors.ErrorTypeCapability, "PROJJSON crs without an id")
	}
	var code string
	switch v := pj.ID.Code.(type) {
	case string:
		code = v
	case float64:
		code = strconv.FormatInt(int64(v), 10)
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "unexpected PROJJSON code %v", v)
	}
	return ParseCRS(pj.ID.Authority + ":" + code)
}
