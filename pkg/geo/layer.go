// Package geo reads point and polygon layers from GeoJSON, GeoPackage,
// GeoParquet and CSV files and converts coordinates between the supported
// reference systems.
package geo

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/wjdataeng/tractfeatures/pkg/compression"
	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/storage"
)

// Format is a supported geodata file format
type Format string

const (
	FormatCSV        Format = "csv"
	FormatGeoJSON    Format = "geojson"
	FormatGeoPackage Format = "gpkg"
	FormatGeoParquet Format = "geoparquet"
)

// Feature is one geometry with its attributes
type Feature struct {
	Geometry   geom.T
	Properties map[string]interface{}
}

// Layer is a feature collection in one reference system
type Layer struct {
	Features []Feature
	CRS      CRS
}

// Point is an x/y coordinate pair, longitude/latitude in geographic systems
type Point struct {
	X, Y float64
}

// DetectFormat maps a path to its format, ignoring a compression extension
func DetectFormat(uri string) (Format, error) {
	_, name := compression.Detect(uri)
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".geojson", ".json":
		return FormatGeoJSON, nil
	case ".gpkg":
		return FormatGeoPackage, nil
	case ".parquet", ".geoparquet":
		return FormatGeoParquet, nil
	}
	return "", errors.Newf(errors.ErrorTypeCapability, "unsupported geodata format %q", path.Ext(name)).
		WithDetail("path", uri).
		WithDetail("supported", ".csv, .geojson, .json, .gpkg, .parquet")
}

// ReadLayer reads a geometry-bearing file. A layer without a declared CRS is
// EPSG:4326.
func ReadLayer(ctx context.Context, resolver *storage.Resolver, uri string) (*Layer, error) {
	format, err := DetectFormat(uri)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatGeoPackage:
		return readGeoPackage(ctx, resolver, uri)
	case FormatCSV:
		return nil, errors.New(errors.ErrorTypeValidation, "CSV files carry no geometry; load them as points").
			WithDetail("path", uri)
	}

	data, err := readAll(ctx, resolver, uri)
	if err != nil {
		return nil, err
	}
	if format == FormatGeoParquet {
		return decodeGeoParquet(data, uri)
	}
	return decodeGeoJSON(data, uri)
}

func readAll(ctx context.Context, resolver *storage.Resolver, uri string) ([]byte, error) {
	body, err := resolver.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	algo, _ := compression.Detect(uri)
	r, err := compression.NewReader(body, algo)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to decompress").WithDetail("path", uri)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read file").WithDetail("path", uri)
	}
	return data, nil
}
