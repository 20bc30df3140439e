package geo

import (
	"context"
	"database/sql"
	"io"
	"os"
	"strings"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// gpkgEnvelopeSizes maps the header envelope indicator to its byte length
var gpkgEnvelopeSizes = map[byte]int{0: 0, 1: 32, 2: 48, 3: 48, 4: 64}

// readGeoPackage reads the first features table of a GeoPackage. SQLite
// needs a file on disk, so remote objects are downloaded first.
func readGeoPackage(ctx context.Context, resolver *storage.Resolver, uri string) (*Layer, error) {
	loc, err := storage.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	path := loc.Key
	if loc.Scheme != storage.Local {
		tmp, err := download(ctx, resolver, uri)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		path = tmp
	} else if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "GeoPackage not found").WithDetail("path", uri)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open GeoPackage").WithDetail("path", uri)
	}
	defer db.Close()

	layer, err := queryGeoPackage(ctx, db)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), "failed to read GeoPackage").WithDetail("path", uri)
	}
	return layer, nil
}

func queryGeoPackage(ctx context.Context, db *sql.DB) (*Layer, error) {
	var table string
	err := db.QueryRowContext(ctx,
		`SELECT table_name FROM gpkg_contents WHERE data_type = 'features' ORDER BY rowid LIMIT 1`).Scan(&table)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.ErrorTypeData, "GeoPackage has no features table")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "not a GeoPackage")
	}

	var geomCol string
	var srsID int
	err = db.QueryRowContext(ctx,
		`SELECT column_name, srs_id FROM gpkg_geometry_columns WHERE table_name = ?`, table).Scan(&geomCol, &srsID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "missing gpkg_geometry_columns entry").WithDetail("table", table)
	}

	layer := &Layer{CRS: WGS84}
	if srsID > 0 {
		layer.CRS = CRS(srsID)
		var org string
		var code int
		err := db.QueryRowContext(ctx,
			`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`, srsID).Scan(&org, &code)
		if err == nil && strings.EqualFold(org, "EPSG") {
			layer.CRS = CRS(code)
		}
	}

	rows, err := db.QueryContext(ctx, `SELECT * FROM "`+strings.ReplaceAll(table, `"`, `""`)+`"`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to query features").WithDetail("table", table)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to read columns")
	}

	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to scan feature")
		}
		f := Feature{Properties: make(map[string]interface{}, len(cols)-1)}
		for i, name := range cols {
			if name == geomCol {
				blob, _ := values[i].([]byte)
				g, err := decodeGeoPackageBinary(blob)
				if err != nil {
					return nil, err
				}
				f.Geometry = g
				continue
			}
			if b, ok := values[i].([]byte); ok {
				f.Properties[name] = string(b)
			} else {
				f.Properties[name] = values[i]
			}
		}
		layer.Features = append(layer.Features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to iterate features")
	}
	return layer, nil
}

// decodeGeoPackageBinary strips the GeoPackage binary header and decodes the
// WKB body. Empty geometries decode to nil.
func decodeGeoPackageBinary(blob []byte) (geom.T, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, errors.New(errors.ErrorTypeData, "invalid GeoPackage geometry header")
	}
	flags := blob[3]
	if flags&0x10 != 0 {
		return nil, nil
	}
	size, ok := gpkgEnvelopeSizes[(flags>>1)&0x07]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeData, "invalid GeoPackage envelope indicator %d", (flags>>1)&0x07)
	}
	if len(blob) < 8+size {
		return nil, errors.New(errors.ErrorTypeData, "truncated GeoPackage geometry")
	}
	g, err := wkb.Unmarshal(blob[8+size:])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid WKB geometry")
	}
	return g, nil
}

func download(ctx context.Context, resolver *storage.Resolver, uri string) (string, error) {
	body, err := resolver.Open(ctx, uri)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "tractfeatures-*.gpkg")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to create temporary file")
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to download GeoPackage").WithDetail("path", uri)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to write GeoPackage")
	}
	return tmp.Name(), nil
}
