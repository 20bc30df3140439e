package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wjdataeng/tractfeatures/pkg/frame"
)

func TestInferType(t *testing.T) {
	e := NewTypeInferenceEngine(zaptest.NewLogger(t))

	tests := []struct {
		name   string
		values []string
		want   frame.Type
		format string
	}{
		{"integers", []string{"1", "22", "-3"}, frame.Int64, ""},
		{"zero one stays integer", []string{"0", "1", "1", "0"}, frame.Int64, ""},
		{"floats", []string{"1.5", "2", "3e2"}, frame.Float64, ""},
		{"booleans", []string{"true", "FALSE", "True"}, frame.Bool, ""},
		{"mixed fips codes", []string{"001", "510", "005"}, frame.String, "code"},
		{"all fips codes", []string{"001", "003", "005"}, frame.String, "code"},
		{"geoid", []string{"24510010100", "24510010200"}, frame.Int64, ""},
		{"text", []string{"Baltimore", "1"}, frame.String, ""},
		{"dates", []string{"2024-01-02", "2024-03-04"}, frame.String, "date"},
		{"nulls ignored", []string{"", "NA", "7", "null"}, frame.Int64, ""},
		{"all null", []string{"", "NaN"}, frame.String, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.InferType(tt.name, tt.values)
			assert.Equal(t, tt.want, got.Type)
			assert.Equal(t, tt.format, got.Format)
		})
	}
}

func TestInferTypeStats(t *testing.T) {
	e := NewTypeInferenceEngine(nil)
	got := e.InferType("EMP", []string{"10", "", "30"})
	require.NotNil(t, got.NumericStats)
	assert.True(t, got.Nullable)
	assert.Equal(t, 2, got.Cardinality)
	assert.Equal(t, 10.0, got.NumericStats.Min)
	assert.Equal(t, 30.0, got.NumericStats.Max)
	assert.Equal(t, 20.0, got.NumericStats.Mean)
}

func TestConfidenceThreshold(t *testing.T) {
	values := []string{"1", "2", "3", "4", "x"}
	strict := NewTypeInferenceEngine(nil)
	assert.Equal(t, frame.String, strict.InferType("v", values).Type)

	loose := NewTypeInferenceEngine(nil).WithConfidenceThreshold(0.75)
	assert.Equal(t, frame.Int64, loose.InferType("v", values).Type)
}

func TestInferSchema(t *testing.T) {
	e := NewTypeInferenceEngine(nil)
	s, err := e.InferSchema(
		[]string{"fipstate", "fipscty", "emp", "name"},
		[][]string{
			{"24", "005", "1200", "Baltimore County"},
			{"24", "510", "5000.5"},
		})
	require.NoError(t, err)
	assert.Equal(t, "fipstate:int64,fipscty:string,emp:float64,name:string", s.String())
	assert.True(t, s.Fields[3].Nullable)

	_, err = e.InferSchema(nil, nil)
	assert.Error(t, err)
}

func TestFieldAppend(t *testing.T) {
	f := Field{Name: "emp", Type: frame.Int64}
	col := frame.NewColumn("emp", frame.Int64, 4)

	assert.True(t, f.Append(col, "12"))
	assert.True(t, f.Append(col, "NA"))
	assert.False(t, f.Append(col, "twelve"))
	assert.False(t, f.Append(col, "1.5"))
	assert.False(t, f.Append(col, "007"), "leading zeros are not truncated")

	assert.Equal(t, 5, col.Len())
	assert.Equal(t, int64(12), col.IntAt(0))
	assert.Equal(t, 4, col.NullCount())

	b := Field{Name: "flag", Type: frame.Bool}
	bc := frame.NewColumn("flag", frame.Bool, 2)
	assert.True(t, b.Append(bc, "TRUE"))
	assert.False(t, b.Append(bc, "1"))
	assert.True(t, bc.BoolAt(0))
}

func TestSchemaWiden(t *testing.T) {
	tests := []struct {
		name    string
		typ     frame.Type
		records [][]string
		want    frame.Type
		changes int
	}{
		{"fits", frame.Int64, [][]string{{"1"}, {"NA"}, {"-3"}}, frame.Int64, 0},
		{"fraction", frame.Int64, [][]string{{"1"}, {"2.5"}}, frame.Float64, 1},
		{"leading zero", frame.Int64, [][]string{{"007"}}, frame.String, 1},
		{"fraction then text", frame.Int64, [][]string{{"2.5"}, {"abc"}}, frame.String, 2},
		{"text in float", frame.Float64, [][]string{{"1.5"}, {"x"}}, frame.String, 1},
		{"bool", frame.Bool, [][]string{{"true"}, {"1"}}, frame.String, 1},
		{"string never widens", frame.String, [][]string{{"anything"}}, frame.String, 0},
		{"short record", frame.Int64, [][]string{{}}, frame.Int64, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Schema{Fields: []Field{{Name: "v", Type: tt.typ, Format: "x"}}}
			changes := s.Widen(tt.records)
			assert.Len(t, changes, tt.changes)
			assert.Equal(t, tt.want, s.Fields[0].Type)
			if tt.changes > 0 {
				assert.Equal(t, tt.typ, changes[0].From)
				assert.Equal(t, "v", changes[0].Name)
				assert.Empty(t, s.Fields[0].Format)
			}
		})
	}
}
