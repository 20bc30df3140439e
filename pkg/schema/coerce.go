package schema

import (
	"strconv"
	"strings"

	"github.com/wjdataeng/tractfeatures/pkg/frame"
)

// NewColumns allocates one empty column per field
func (s *Schema) NewColumns(capacity int) []*frame.Column {
	cols := make([]*frame.Column, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = frame.NewColumn(f.Name, f.Type, capacity)
	}
	return cols
}

// Widening is one column promoted because a later value did not fit its type
type Widening struct {
	Name  string
	From  frame.Type
	To    frame.Type
	Value string
}

// Fits reports whether raw parses as the field type. Nulls fit every type.
func (f Field) Fits(raw string) bool {
	if IsNull(raw) {
		return true
	}
	v := strings.TrimSpace(raw)
	switch f.Type {
	case frame.Int64:
		return isInteger(v)
	case frame.Float64:
		return isInteger(v) || isFloat(v)
	case frame.Bool:
		return isBoolean(v)
	}
	return true
}

// Widen promotes fields until every value in records fits: int64 becomes
// float64 when the value is numeric, any other mismatch becomes string.
// Earlier chunks keep their narrower type and are reconciled by frame.Concat.
func (s *Schema) Widen(records [][]string) []Widening {
	var changes []Widening
	for i := range s.Fields {
		f := &s.Fields[i]
		for _, rec := range records {
			if f.Type == frame.String {
				break
			}
			if i >= len(rec) || f.Fits(rec[i]) {
				continue
			}
			to := frame.String
			if f.Type == frame.Int64 && (Field{Type: frame.Float64}).Fits(rec[i]) {
				to = frame.Float64
			}
			changes = append(changes, Widening{Name: f.Name, From: f.Type, To: to, Value: rec[i]})
			f.Type = to
			f.Format = ""
		}
	}
	return changes
}

// Append parses raw as the field type and appends it to col. It returns false
// when a non-null value could not be parsed and was stored as null. Integers
// with leading zeros do not parse, so codes are never truncated.
func (f Field) Append(col *frame.Column, raw string) bool {
	if IsNull(raw) {
		col.AppendNull()
		return true
	}

	switch f.Type {
	case frame.Int64:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || hasLeadingZero(strings.TrimSpace(raw)) {
			col.AppendNull()
			return false
		}
		col.AppendInt(v)
	case frame.Float64:
		v, ok := frame.ParseNumber(raw)
		if !ok {
			col.AppendNull()
			return false
		}
		col.AppendFloat(v)
	case frame.Bool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "true":
			col.AppendBool(true)
		case "false":
			col.AppendBool(false)
		default:
			col.AppendNull()
			return false
		}
	default:
		col.AppendString(raw)
	}
	return true
}
