package curate

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/geo"
)

// GeometryColumn is dropped from feature tables before merging
const GeometryColumn = "geometry"

// MsgNoIDColumn is returned when no identifier column can be found
const MsgNoIDColumn = "No tract id column found in feature DataFrame."

// Exact identifier names, checked in order before the case-folded aliases
var idCandidates = []string{"tract_id", "TRACT_ID", "GEOID", "GEOID20", "GEOID10", "tractid"}

var (
	idLike        = set("tractid", "tract_id", "geoid", "geoid10", "geoid20", "name", "objectid")
	nonValueHints = set("shape_area", "shape_length", "geometry")

	valueSuffix = regexp.MustCompile(`(?i)(count|rate|score|index|value)$`)
	fillSuffix  = regexp.MustCompile(`(?i)(count|total|num|n)$`)
)

var folder = cases.Fold()

func set(keys ...string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}

// IDColumn returns the column NormalizeIDColumn would use
func IDColumn(f *frame.Frame) (string, error) {
	for _, name := range idCandidates {
		if f.Has(name) {
			return name, nil
		}
	}
	for _, name := range f.Names() {
		if idLike[folder.String(name)] {
			return name, nil
		}
	}
	return "", errors.New(errors.ErrorTypeSchema, MsgNoIDColumn).WithDetail("columns", strings.Join(f.Names(), ", "))
}

// NormalizeIDColumn renames the identifier column to tract_id and renders it
// as trimmed text. Integral numeric ids keep their integer form.
func NormalizeIDColumn(f *frame.Frame) (*frame.Frame, error) {
	name, err := IDColumn(f)
	if err != nil {
		return nil, err
	}
	col, _ := f.Column(name)
	ids := col.ToString()
	ids.Name = geo.TractIDProperty

	out, err := f.Rename(map[string]string{name: geo.TractIDProperty})
	if err != nil {
		return nil, err
	}
	if err := out.SetColumn(ids); err != nil {
		return nil, err
	}
	return out, nil
}

// PickValueColumn chooses the numeric value column of a feature table. A
// column named like a measure wins over an earlier unlabeled numeric one.
func PickValueColumn(f *frame.Frame) (string, error) {
	for _, c := range f.Columns() {
		if c.Name != GeometryColumn && valueSuffix.MatchString(c.Name) && c.HasNumber() {
			return c.Name, nil
		}
	}
	for _, c := range f.Columns() {
		lower := strings.ToLower(c.Name)
		if idLike[lower] || nonValueHints[lower] {
			continue
		}
		if c.HasNumber() {
			return c.Name, nil
		}
	}
	return "", errors.New(errors.ErrorTypeSchema,
		"Could not pick a numeric value column from: "+strings.Join(f.Names(), ", "))
}

// FillsWithZero reports whether nulls in a merged column mean zero
func FillsWithZero(name string) bool {
	return name != geo.TractIDProperty && fillSuffix.MatchString(name)
}
