package spatial

import (
	"github.com/wjdataeng/tractfeatures/pkg/frame"
	"github.com/wjdataeng/tractfeatures/pkg/geo"
)

// Match is the tract assigned to one point. Tract is the index position
// of the tract, or -1 when no tract contains the point.
type Match struct {
	TractID string
	Tract   int
	OK      bool
}

// Join assigns each point to the first tract, in index order, that contains it
func Join(idx *Index, points []geo.Point) []Match {
	out := make([]Match, len(points))
	for i, p := range points {
		out[i] = Match{Tract: -1}
		if t := idx.Locate(p); t >= 0 {
			out[i] = Match{TractID: idx.entries[t].id, Tract: t, OK: true}
		}
	}
	return out
}

// Counts is the per-tract aggregation of a point set
type Counts struct {
	Frame     *frame.Frame
	Matched   int
	Unmatched int
}

// CountColumn names the count column of a feature
func CountColumn(feature string) string { return feature + "_count" }

// CountByTract counts points per tract. Every tract gets a row, in index
// order, with zero when no point falls inside it.
func CountByTract(idx *Index, points []geo.Point, feature string) *Counts {
	counts := make([]int64, idx.Len())
	res := &Counts{}
	for _, m := range Join(idx, points) {
		if !m.OK {
			res.Unmatched++
			continue
		}
		counts[m.Tract]++
		res.Matched++
	}
	res.Frame = frame.MustNew(
		frame.Strings(geo.TractIDProperty, idx.IDs()...),
		frame.Int64s(CountColumn(feature), counts...),
	)
	return res
}
