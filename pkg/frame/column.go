// Package frame provides the in-memory columnar table every job reads,
// transforms and writes. A Frame is an ordered set of equally long, typed,
// nullable columns.
package frame

import (
	"math"
	"strconv"
	"strings"
)

// Type is the logical type of a column
type Type int

const (
	// String holds UTF-8 text
	String Type = iota
	// Int64 holds signed 64-bit integers
	Int64
	// Float64 holds IEEE 754 doubles
	Float64
	// Bool holds booleans
	Bool
)

// String returns the type name used in logs and schemas
func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Column is a named, typed, nullable vector. Only the slice matching Type is populated.
type Column struct {
	Name string
	Type Type

	strs   []string
	ints   []int64
	floats []float64
	bools  []bool
	valid  []bool
}

// NewColumn returns an empty column with room for capacity values
func NewColumn(name string, typ Type, capacity int) *Column {
	c := &Column{Name: name, Type: typ, valid: make([]bool, 0, capacity)}
	switch typ {
	case String:
		c.strs = make([]string, 0, capacity)
	case Int64:
		c.ints = make([]int64, 0, capacity)
	case Float64:
		c.floats = make([]float64, 0, capacity)
	case Bool:
		c.bools = make([]bool, 0, capacity)
	}
	return c
}

// Strings builds a non-null string column
func Strings(name string, vals ...string) *Column {
	c := NewColumn(name, String, len(vals))
	for _, v := range vals {
		c.AppendString(v)
	}
	return c
}

// Int64s builds a non-null integer column
func Int64s(name string, vals ...int64) *Column {
	c := NewColumn(name, Int64, len(vals))
	for _, v := range vals {
		c.AppendInt(v)
	}
	return c
}

// Float64s builds a float column. NaN values are stored as null.
func Float64s(name string, vals ...float64) *Column {
	c := NewColumn(name, Float64, len(vals))
	for _, v := range vals {
		if math.IsNaN(v) {
			c.AppendNull()
			continue
		}
		c.AppendFloat(v)
	}
	return c
}

// Bools builds a non-null boolean column
func Bools(name string, vals ...bool) *Column {
	c := NewColumn(name, Bool, len(vals))
	for _, v := range vals {
		c.AppendBool(v)
	}
	return c
}

// Len returns the number of values
func (c *Column) Len() int { return len(c.valid) }

// IsNull reports whether row i is null
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// NullCount returns the number of null values
func (c *Column) NullCount() int {
	n := 0
	for _, ok := range c.valid {
		if !ok {
			n++
		}
	}
	return n
}

// AppendString appends to a String column
func (c *Column) AppendString(v string) {
	c.strs = append(c.strs, v)
	c.valid = append(c.valid, true)
}

// AppendInt appends to an Int64 column
func (c *Column) AppendInt(v int64) {
	c.ints = append(c.ints, v)
	c.valid = append(c.valid, true)
}

// AppendFloat appends to a Float64 column
func (c *Column) AppendFloat(v float64) {
	c.floats = append(c.floats, v)
	c.valid = append(c.valid, true)
}

// AppendBool appends to a Bool column
func (c *Column) AppendBool(v bool) {
	c.bools = append(c.bools, v)
	c.valid = append(c.valid, true)
}

// AppendNull appends a null of the column's type
func (c *Column) AppendNull() {
	switch c.Type {
	case String:
		c.strs = append(c.strs, "")
	case Int64:
		c.ints = append(c.ints, 0)
	case Float64:
		c.floats = append(c.floats, 0)
	case Bool:
		c.bools = append(c.bools, false)
	}
	c.valid = append(c.valid, false)
}

// appendFrom copies row i of src, which must have the same type
func (c *Column) appendFrom(src *Column, i int) {
	if src == nil || i < 0 || src.IsNull(i) {
		c.AppendNull()
		return
	}
	switch c.Type {
	case String:
		c.AppendString(src.strs[i])
	case Int64:
		c.AppendInt(src.ints[i])
	case Float64:
		c.AppendFloat(src.floats[i])
	case Bool:
		c.AppendBool(src.bools[i])
	}
}

// StringAt returns the raw string of a String column
func (c *Column) StringAt(i int) string { return c.strs[i] }

// IntAt returns the raw value of an Int64 column
func (c *Column) IntAt(i int) int64 { return c.ints[i] }

// FloatAt returns the raw value of a Float64 column
func (c *Column) FloatAt(i int) float64 { return c.floats[i] }

// BoolAt returns the raw value of a Bool column
func (c *Column) BoolAt(i int) bool { return c.bools[i] }

// Value returns row i as string, int64, float64 or bool, or nil when null
func (c *Column) Value(i int) interface{} {
	if c.IsNull(i) {
		return nil
	}
	switch c.Type {
	case String:
		return c.strs[i]
	case Int64:
		return c.ints[i]
	case Float64:
		return c.floats[i]
	case Bool:
		return c.bools[i]
	}
	return nil
}

// Format renders row i as text. Integral floats render without a decimal
// part so numeric tract ids keep their GEOID form.
func (c *Column) Format(i int) (string, bool) {
	if c.IsNull(i) {
		return "", false
	}
	switch c.Type {
	case String:
		return c.strs[i], true
	case Int64:
		return strconv.FormatInt(c.ints[i], 10), true
	case Float64:
		return FormatFloat(c.floats[i]), true
	case Bool:
		return strconv.FormatBool(c.bools[i]), true
	}
	return "", false
}

// Number coerces row i to a float. Strings that do not parse are not numbers.
func (c *Column) Number(i int) (float64, bool) {
	if c.IsNull(i) {
		return 0, false
	}
	switch c.Type {
	case Int64:
		return float64(c.ints[i]), true
	case Float64:
		return c.floats[i], true
	case Bool:
		if c.bools[i] {
			return 1, true
		}
		return 0, true
	case String:
		return ParseNumber(c.strs[i])
	}
	return 0, false
}

// HasNumber reports whether any row coerces to a number
func (c *Column) HasNumber() bool {
	for i := 0; i < c.Len(); i++ {
		if _, ok := c.Number(i); ok {
			return true
		}
	}
	return false
}

// ToFloat returns a Float64 copy of the column; values that do not coerce become null.
func (c *Column) ToFloat() *Column {
	out := NewColumn(c.Name, Float64, c.Len())
	for i := 0; i < c.Len(); i++ {
		if v, ok := c.Number(i); ok && !math.IsNaN(v) {
			out.AppendFloat(v)
		} else {
			out.AppendNull()
		}
	}
	return out
}

// ToString returns a String copy of the column with values trimmed of surrounding space
func (c *Column) ToString() *Column {
	out := NewColumn(c.Name, String, c.Len())
	for i := 0; i < c.Len(); i++ {
		if s, ok := c.Format(i); ok {
			out.AppendString(strings.TrimSpace(s))
		} else {
			out.AppendNull()
		}
	}
	return out
}

// ParseNumber parses a decimal or float literal. Empty strings and NaN are not numbers.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// FormatFloat renders integral values without a fractional part
func FormatFloat(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e18 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
