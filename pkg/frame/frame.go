package frame

import (
	"strings"

	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// Frame is an ordered collection of equally long columns with unique names
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New assembles a frame, checking lengths and name uniqueness
func New(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		if err := f.add(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// MustNew is New that panics, for literals in tests and examples
func MustNew(cols ...*Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Frame) add(c *Column) error {
	if _, dup := f.index[c.Name]; dup {
		return errors.Newf(errors.ErrorTypeSchema, "duplicate column %q", c.Name)
	}
	if len(f.cols) > 0 && c.Len() != f.rows {
		return errors.Newf(errors.ErrorTypeSchema, "column %q has %d rows, frame has %d", c.Name, c.Len(), f.rows)
	}
	if len(f.cols) == 0 {
		f.rows = c.Len()
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// NumRows returns the row count
func (f *Frame) NumRows() int { return f.rows }

// NumCols returns the column count
func (f *Frame) NumCols() int { return len(f.cols) }

// Columns returns the columns in order. The slice must not be modified.
func (f *Frame) Columns() []*Column { return f.cols }

// Names returns the column names in order
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the frame has a column with this exact name
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns a column by exact name
func (f *Frame) Column(name string) (*Column, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// AddColumn appends a column
func (f *Frame) AddColumn(c *Column) error { return f.add(c) }

// SetColumn replaces the column with the same name, or appends it
func (f *Frame) SetColumn(c *Column) error {
	i, ok := f.index[c.Name]
	if !ok {
		return f.add(c)
	}
	if c.Len() != f.rows {
		return errors.Newf(errors.ErrorTypeSchema, "column %q has %d rows, frame has %d", c.Name, c.Len(), f.rows)
	}
	f.cols[i] = c
	return nil
}

// Select returns a frame with only the named columns, in the given order
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := make([]*Column, 0, len(names))
	for _, n := range names {
		c, ok := f.Column(n)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeSchema, "column %q not found", n).
				WithDetail("columns", f.Names())
		}
		out = append(out, c)
	}
	return New(out...)
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	skip := make(map[string]bool, len(names))
	for _, n := range names {
		skip[n] = true
	}
	out := &Frame{index: make(map[string]int), rows: f.rows}
	for _, c := range f.cols {
		if !skip[c.Name] {
			out.index[c.Name] = len(out.cols)
			out.cols = append(out.cols, c)
		}
	}
	return out
}

// Rename returns a frame with columns renamed per mapping
func (f *Frame) Rename(mapping map[string]string) (*Frame, error) {
	out := make([]*Column, len(f.cols))
	for i, c := range f.cols {
		if to, ok := mapping[c.Name]; ok && to != c.Name {
			renamed := *c
			renamed.Name = to
			out[i] = &renamed
			continue
		}
		out[i] = c
	}
	return New(out...)
}

// FillNull replaces nulls in a numeric column with v. The column keeps its type.
func (f *Frame) FillNull(name string, v float64) error {
	c, ok := f.Column(name)
	if !ok {
		return errors.Newf(errors.ErrorTypeSchema, "column %q not found", name)
	}
	filled := NewColumn(c.Name, c.Type, c.Len())
	for i := 0; i < c.Len(); i++ {
		if !c.IsNull(i) {
			filled.appendFrom(c, i)
			continue
		}
		switch c.Type {
		case Int64:
			filled.AppendInt(int64(v))
		case Float64:
			filled.AppendFloat(v)
		case String:
			filled.AppendString(FormatFloat(v))
		case Bool:
			filled.AppendBool(v != 0)
		}
	}
	return f.SetColumn(filled)
}

// Concat stacks frames vertically. Columns are matched by name in first-seen
// order; a column missing from a frame is null for its rows. Mixed integer
// and float columns become float; any other type mix becomes string.
func Concat(frames ...*Frame) (*Frame, error) {
	var order []string
	types := make(map[string]Type)
	total := 0
	for _, fr := range frames {
		total += fr.NumRows()
		for _, c := range fr.cols {
			prev, seen := types[c.Name]
			if !seen {
				order = append(order, c.Name)
				types[c.Name] = c.Type
				continue
			}
			types[c.Name] = promote(prev, c.Type)
		}
	}

	out := make([]*Column, len(order))
	for j, name := range order {
		col := NewColumn(name, types[name], total)
		for _, fr := range frames {
			src, ok := fr.Column(name)
			if ok && src.Type != col.Type {
				src = convert(src, col.Type)
			}
			for i := 0; i < fr.NumRows(); i++ {
				if !ok {
					col.AppendNull()
					continue
				}
				col.appendFrom(src, i)
			}
		}
		out[j] = col
	}
	return New(out...)
}

func promote(a, b Type) Type {
	switch {
	case a == b:
		return a
	case (a == Int64 && b == Float64) || (a == Float64 && b == Int64):
		return Float64
	default:
		return String
	}
}

func convert(c *Column, to Type) *Column {
	switch to {
	case Float64:
		return c.ToFloat()
	case String:
		return c.ToString()
	}
	return c
}

// String renders a small frame as an aligned text table, for logs and examples
func (f *Frame) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(f.Names(), "\t"))
	for i := 0; i < f.rows; i++ {
		b.WriteByte('\n')
		for j, c := range f.cols {
			if j > 0 {
				b.WriteByte('\t')
			}
			if s, ok := c.Format(i); ok {
				b.WriteString(s)
			} else {
				b.WriteString("<null>")
			}
		}
	}
	return b.String()
}
