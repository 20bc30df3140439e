package frame

import (
	"github.com/wjdataeng/tractfeatures/pkg/errors"
)

// LeftMerge joins right onto left by the key column. Every left row is kept
// exactly once, so the result has left.NumRows() rows. Keys are compared by
// their text form. When right repeats a key, its first row wins. Non-key
// columns present on both sides get the suffixes _x and _y.
func LeftMerge(left, right *Frame, on string) (*Frame, error) {
	lk, ok := left.Column(on)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSchema, "left frame has no key column %q", on).
			WithDetail("columns", left.Names())
	}
	rk, ok := right.Column(on)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeSchema, "right frame has no key column %q", on).
			WithDetail("columns", right.Names())
	}

	lookup := make(map[string]int, right.NumRows())
	for i := 0; i < right.NumRows(); i++ {
		key, ok := rk.Format(i)
		if !ok {
			continue
		}
		if _, seen := lookup[key]; !seen {
			lookup[key] = i
		}
	}

	match := make([]int, left.NumRows())
	for i := range match {
		match[i] = -1
		if key, ok := lk.Format(i); ok {
			if j, found := lookup[key]; found {
				match[i] = j
			}
		}
	}

	out := make([]*Column, 0, left.NumCols()+right.NumCols()-1)
	for _, c := range left.cols {
		name := c.Name
		if name != on && right.Has(name) {
			renamed := *c
			renamed.Name = name + "_x"
			out = append(out, &renamed)
			continue
		}
		out = append(out, c)
	}
	for _, c := range right.cols {
		if c.Name == on {
			continue
		}
		name := c.Name
		if left.Has(name) {
			name += "_y"
		}
		col := NewColumn(name, c.Type, left.NumRows())
		for _, j := range match {
			col.appendFrom(c, j)
		}
		out = append(out, col)
	}
	return New(out...)
}
