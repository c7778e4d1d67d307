package geoproc

import (
	"math"

	"git.fiblab.net/sim/ptal/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Match is a point joined to its nearest line.
type Match struct {
	Feature  *layer.Feature
	Line     int
	Distance float64
}

// JoinByNearest joins each point feature to its single nearest line within maxDistance.
// Points without a line in range are discarded.
func JoinByNearest(points []*layer.Feature, lines []orb.LineString, maxDistance float64) []Match {
	bounds := make([]orb.Bound, len(lines))
	for i, ls := range lines {
		bounds[i] = ls.Bound().Pad(maxDistance)
	}
	ret := make([]Match, 0, len(points))
	for _, f := range points {
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		best, bestDistance := -1, math.Inf(0)
		for i, ls := range lines {
			if !bounds[i].Contains(p) {
				continue
			}
			if d := planar.DistanceFrom(ls, p); d < bestDistance {
				best, bestDistance = i, d
			}
		}
		if best < 0 || bestDistance > maxDistance {
			continue
		}
		ret = append(ret, Match{Feature: f, Line: best, Distance: bestDistance})
	}
	return ret
}

// ExtractByLocation returns the point features intersecting g, within tolerance.
func ExtractByLocation(points []*layer.Feature, g orb.Geometry, tolerance float64) []*layer.Feature {
	bound := g.Bound().Pad(tolerance)
	ret := make([]*layer.Feature, 0)
	for _, f := range points {
		p, ok := f.Geometry.(orb.Point)
		if !ok || !bound.Contains(p) {
			continue
		}
		if planar.DistanceFrom(g, p) <= tolerance {
			ret = append(ret, f)
		}
	}
	return ret
}
