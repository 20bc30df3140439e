package geo

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// CRS is an EPSG coordinate reference system code
type CRS int

const (
	// WGS84 is geographic longitude/latitude
	WGS84 CRS = 4326
	// NAD83 is the TIGER/Line datum
	NAD83 CRS = 4269
	// WebMercator is spherical mercator in metres
	WebMercator CRS = 3857
)

// earthRadius is the WGS84 semi-major axis used by spherical mercator
const earthRadius = 6378137.0

// maxMercatorLat keeps tan() finite at the poles
const maxMercatorLat = 85.05112877980659

type crsKind int

const (
	kindUnsupported crsKind = iota
	kindGeographic
	kindMercator
)

// NAD83 and NAD83(HARN) differ from WGS84 by about a metre, far below tract scale
var crsKinds = map[CRS]crsKind{
	4326:   kindGeographic,
	4269:   kindGeographic,
	4152:   kindGeographic,
	3857:   kindMercator,
	900913: kindMercator,
	102100: kindMercator,
}

var crsCodePattern = regexp.MustCompile(`(?i)(?:EPSG|ESRI)[:/]+(?:[\d.]*[:/])?(\d+)$`)

// ParseCRS reads "EPSG:4326", "urn:ogc:def:crs:EPSG::3857",
// "urn:ogc:def:crs:OGC:1.3:CRS84" or a bare code
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New(errors.ErrorTypeValidation, "empty CRS")
	}
	if strings.HasSuffix(strings.ToUpper(s), "CRS84") {
		return WGS84, nil
	}
	code := s
	if m := crsCodePattern.FindStringSubmatch(s); m != nil {
		code = m[1]
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, errors.Newf(errors.ErrorTypeValidation, "unrecognized CRS %q", s)
	}
	return CRS(n), nil
}

// String renders EPSG:<code>
func (c CRS) String() string { return "EPSG:" + strconv.Itoa(int(c)) }

// Supported reports whether coordinates in c can be transformed
func (c CRS) Supported() bool { return crsKinds[c] != kindUnsupported }

// Equivalent reports whether two systems share coordinates without transformation
func (c CRS) Equivalent(other CRS) bool {
	return c == other || (crsKinds[c] != kindUnsupported && crsKinds[c] == crsKinds[other])
}

// Transformer converts x/y pairs between two systems
type Transformer func(x, y float64) (float64, float64)

// NewTransformer returns the conversion from one system to another
func NewTransformer(from, to CRS) (Transformer, error) {
	if !from.Supported() || !to.Supported() {
		return nil, errors.Newf(errors.ErrorTypeCapability, "unsupported CRS transform %s -> %s", from, to).
			WithDetail("supported", "EPSG:4326, EPSG:4269, EPSG:4152, EPSG:3857")
	}
	switch {
	case from.Equivalent(to):
		return func(x, y float64) (float64, float64) { return x, y }, nil
	case crsKinds[from] == kindGeographic:
		return toMercator, nil
	default:
		return fromMercator, nil
	}
}

func toMercator(lon, lat float64) (float64, float64) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	x := earthRadius * lon * math.Pi / 180
	y := earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y
}

func fromMercator(x, y float64) (float64, float64) {
	lon := x / earthRadius * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// TransformPoints converts points in place
func TransformPoints(points []Point, from, to CRS) error {
	tf, err := NewTransformer(from, to)
	if err != nil {
		return err
	}
	if from.Equivalent(to) {
		return nil
	}
	for i := range points {
		points[i].X, points[i].Y = tf(points[i].X, points[i].Y)
	}
	return nil
}

// TransformGeometry converts every coordinate of g in place
func TransformGeometry(g geom.T, from, to CRS) error {
	tf, err := NewTransformer(from, to)
	if err != nil {
		return err
	}
	if from.Equivalent(to) || g == nil {
		return nil
	}
	flat, stride := g.FlatCoords(), g.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = tf(flat[i], flat[i+1])
	}
	return nil
}
