// Package schema infers column types for delimited text and coerces raw
// cell values to them.
package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wjdataeng/tractfeatures/pkg/frame"
)

// nullTokens are the cell values read as missing
var nullTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-NaN": {}, "-nan": {}, "<NA>": {},
	"N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNull reports whether a raw cell is a missing value
func IsNull(s string) bool {
	_, ok := nullTokens[strings.TrimSpace(s)]
	return ok
}

// Field is one inferred column
type Field struct {
	Name     string     `json:"name"`
	Type     frame.Type `json:"type"`
	Format   string     `json:"format,omitempty"`
	Nullable bool       `json:"nullable"`
}

// Schema is an ordered list of fields
type Schema struct {
	Fields []Field `json:"fields"`
}

// Names returns the field names in order
func (s *Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// String renders name:type pairs for logs
func (s *Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Name + ":" + f.Type.String()
	}
	return strings.Join(parts, ",")
}

// InferredType is the inference result for one column
type InferredType struct {
	Type         frame.Type    `json:"type"`
	Format       string        `json:"format,omitempty"`
	Confidence   float64       `json:"confidence"`
	Nullable     bool          `json:"nullable"`
	Cardinality  int           `json:"cardinality"`
	NumericStats *NumericStats `json:"numeric_stats,omitempty"`
	StringStats  *StringStats  `json:"string_stats,omitempty"`
}

// NumericStats holds statistics for numeric columns
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// StringStats holds statistics for text columns
type StringStats struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// TypeInferenceEngine detects column types from raw text samples
type TypeInferenceEngine struct {
	logger *zap.Logger

	datePatterns      []*regexp.Regexp
	timestampPatterns []*regexp.Regexp
	uuidPattern       *regexp.Regexp

	confidenceThreshold float64
}

// NewTypeInferenceEngine creates a new type inference engine. Every non-null
// sample must parse as the chosen type unless a lower threshold is set.
func NewTypeInferenceEngine(logger *zap.Logger) *TypeInferenceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := &TypeInferenceEngine{
		logger:              logger,
		confidenceThreshold: 1.0,
	}
	engine.initializePatterns()
	return engine
}

// WithConfidenceThreshold sets the share of samples that must agree on a
// non-string type
func (e *TypeInferenceEngine) WithConfidenceThreshold(t float64) *TypeInferenceEngine {
	e.confidenceThreshold = t
	return e
}

// InferSchema infers a schema from header names and sample rows. Rows shorter
// than the header contribute nulls.
func (e *TypeInferenceEngine) InferSchema(header []string, rows [][]string) (*Schema, error) {
	if len(header) == 0 {
		return nil, fmt.Errorf("no columns to infer")
	}

	schema := &Schema{Fields: make([]Field, len(header))}
	values := make([]string, len(rows))
	for i, name := range header {
		for j, row := range rows {
			if i < len(row) {
				values[j] = row[i]
			} else {
				values[j] = ""
			}
		}
		inferred := e.InferType(name, values)
		schema.Fields[i] = Field{
			Name:     name,
			Type:     inferred.Type,
			Format:   inferred.Format,
			Nullable: inferred.Nullable,
		}
	}

	e.logger.Debug("inferred schema",
		zap.Int("columns", len(header)),
		zap.Int("samples", len(rows)),
		zap.String("schema", schema.String()))
	return schema, nil
}

// InferType infers the type of one column from its raw values
func (e *TypeInferenceEngine) InferType(fieldName string, values []string) *InferredType {
	typeCounts := make(map[frame.Type]int)
	nonNull := make([]string, 0, len(values))
	nullCount := 0

	for _, v := range values {
		if IsNull(v) {
			nullCount++
			continue
		}
		v = strings.TrimSpace(v)
		nonNull = append(nonNull, v)
		typeCounts[e.detectValueType(v)]++
	}

	if len(nonNull) == 0 {
		// all-null columns stay text so later chunks can carry anything
		return &InferredType{Type: frame.String, Nullable: true}
	}

	// integers widen to floats
	if typeCounts[frame.Float64] > 0 {
		typeCounts[frame.Float64] += typeCounts[frame.Int64]
		delete(typeCounts, frame.Int64)
	}

	dominant := frame.String
	maxCount := 0
	for _, typ := range []frame.Type{frame.Bool, frame.Int64, frame.Float64, frame.String} {
		if typeCounts[typ] > maxCount {
			maxCount = typeCounts[typ]
			dominant = typ
		}
	}

	confidence := float64(maxCount) / float64(len(nonNull))
	if confidence < e.confidenceThreshold {
		dominant = frame.String
	}

	inferred := &InferredType{
		Type:        dominant,
		Confidence:  confidence,
		Nullable:    nullCount > 0,
		Cardinality: cardinality(nonNull),
	}
	e.addTypeStatistics(inferred, nonNull)
	if dominant == frame.String {
		e.detectStringFormat(inferred, nonNull)
	}

	if confidence < 1 {
		e.logger.Debug("mixed column types",
			zap.String("field", fieldName),
			zap.String("type", dominant.String()),
			zap.Float64("confidence", confidence))
	}
	return inferred
}

// detectValueType detects the type of a single non-null value
func (e *TypeInferenceEngine) detectValueType(v string) frame.Type {
	if isBoolean(v) {
		return frame.Bool
	}
	if isInteger(v) {
		return frame.Int64
	}
	if isFloat(v) {
		return frame.Float64
	}
	return frame.String
}

func (e *TypeInferenceEngine) detectStringFormat(inferred *InferredType, values []string) {
	formatCounts := make(map[string]int)
	for _, v := range values {
		if format := e.detectFormat(v); format != "" {
			formatCounts[format]++
		}
	}

	threshold := int(float64(len(values)) * 0.8)
	maxCount := 0
	for format, count := range formatCounts {
		if count > maxCount && count >= threshold {
			maxCount = count
			inferred.Format = format
		}
	}
}

func (e *TypeInferenceEngine) detectFormat(value string) string {
	for _, pattern := range e.timestampPatterns {
		if pattern.MatchString(value) {
			return "timestamp"
		}
	}
	for _, pattern := range e.datePatterns {
		if pattern.MatchString(value) {
			return "date"
		}
	}
	if e.uuidPattern.MatchString(value) {
		return "uuid"
	}
	if hasLeadingZero(value) && isDigits(value) {
		return "code"
	}
	return ""
}

func (e *TypeInferenceEngine) addTypeStatistics(inferred *InferredType, values []string) {
	switch inferred.Type {
	case frame.Int64, frame.Float64:
		stats := &NumericStats{}
		sum, n := 0.0, 0
		for _, v := range values {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			if n == 0 || f < stats.Min {
				stats.Min = f
			}
			if n == 0 || f > stats.Max {
				stats.Max = f
			}
			sum += f
			n++
		}
		if n > 0 {
			stats.Mean = sum / float64(n)
			inferred.NumericStats = stats
		}
	case frame.String:
		stats := &StringStats{MinLength: len(values[0])}
		total := 0
		for _, v := range values {
			if len(v) < stats.MinLength {
				stats.MinLength = len(v)
			}
			if len(v) > stats.MaxLength {
				stats.MaxLength = len(v)
			}
			total += len(v)
		}
		stats.AvgLength = float64(total) / float64(len(values))
		inferred.StringStats = stats
	}
}

func (e *TypeInferenceEngine) initializePatterns() {
	e.datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), // YYYY-MM-DD
		regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`), // MM/DD/YYYY
		regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`), // YYYY/MM/DD
	}
	e.timestampPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`), // ISO 8601
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`), // SQL timestamp
	}
	e.uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
}

// 0/1 stay integers
func isBoolean(s string) bool {
	return strings.EqualFold(s, "true") || strings.EqualFold(s, "false")
}

func isInteger(s string) bool {
	if hasLeadingZero(s) {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	if hasLeadingZero(s) && !strings.ContainsAny(s, ".eE") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil && !strings.EqualFold(s, "inf") && !strings.EqualFold(s, "infinity") &&
		!strings.EqualFold(s, "+inf") && !strings.EqualFold(s, "-inf")
}

// hasLeadingZero matches codes such as FIPS "001" or GEOID "0400100"
func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func cardinality(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
