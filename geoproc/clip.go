package geoproc

import (
	"git.fiblab.net/sim/ptal/layer"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"
)

// ClipPoints keeps the point features lying inside poly. The returned features are the
// input features themselves.
func ClipPoints(features []*layer.Feature, poly orb.Polygon) []*layer.Feature {
	bound := poly.Bound()
	ret := make([]*layer.Feature, 0)
	for _, f := range features {
		p, ok := f.Geometry.(orb.Point)
		if !ok || !bound.Contains(p) {
			continue
		}
		if planar.PolygonContains(poly, p) {
			ret = append(ret, f)
		}
	}
	return ret
}

// ClipLines clips line features to a convex polygon. Every output feature is a copy of
// its source with the clipped geometry; features entirely outside are dropped.
func ClipLines(features []*layer.Feature, poly orb.Polygon) []*layer.Feature {
	bound := poly.Bound()
	ring := poly[0]
	ccw := ring.Orientation() == orb.CCW
	ret := make([]*layer.Feature, 0)
	for _, f := range features {
		var parts orb.MultiLineString
		for _, ls := range Lines(f.Geometry) {
			if !ls.Bound().Intersects(bound) {
				continue
			}
			for _, pre := range clip.LineString(bound, ls) {
				parts = append(parts, clipConvex(pre, ring, ccw)...)
			}
		}
		if len(parts) == 0 {
			continue
		}
		c := f.Clone()
		if len(parts) == 1 {
			c.Geometry = parts[0]
		} else {
			c.Geometry = parts
		}
		ret = append(ret, c)
	}
	return ret
}

// Lines flattens a (multi)linestring geometry.
func Lines(g orb.Geometry) []orb.LineString {
	switch x := g.(type) {
	case orb.LineString:
		return []orb.LineString{x}
	case orb.MultiLineString:
		return x
	}
	return nil
}

// Cyrus-Beck, 逐段裁剪后按端点拼接
func clipConvex(ls orb.LineString, ring orb.Ring, ccw bool) orb.MultiLineString {
	ret := orb.MultiLineString{}
	var cur orb.LineString
	for i := 0; i < len(ls)-1; i++ {
		a, b := ls[i], ls[i+1]
		tE, tL, ok := clipSegment(a, b, ring, ccw)
		if !ok {
			if len(cur) > 1 {
				ret = append(ret, cur)
			}
			cur = nil
			continue
		}
		start, end := lerp(a, b, tE), lerp(a, b, tL)
		if tE > 0 || len(cur) == 0 {
			if len(cur) > 1 {
				ret = append(ret, cur)
			}
			cur = orb.LineString{start}
		}
		cur = append(cur, end)
		if tL < 1 {
			ret = append(ret, cur)
			cur = nil
		}
	}
	if len(cur) > 1 {
		ret = append(ret, cur)
	}
	return ret
}

func clipSegment(a, b orb.Point, ring orb.Ring, ccw bool) (tE, tL float64, ok bool) {
	tE, tL = 0, 1
	dx, dy := b[0]-a[0], b[1]-a[1]
	for i := 0; i < len(ring)-1; i++ {
		e0, e1 := ring[i], ring[i+1]
		// 内法向
		nx, ny := -(e1[1] - e0[1]), e1[0]-e0[0]
		if !ccw {
			nx, ny = -nx, -ny
		}
		num := nx*(a[0]-e0[0]) + ny*(a[1]-e0[1])
		den := nx*dx + ny*dy
		if den == 0 {
			if num < 0 {
				return 0, 0, false
			}
			continue
		}
		t := -num / den
		if den > 0 {
			tE = max(tE, t)
		} else {
			tL = min(tL, t)
		}
		if tE > tL {
			return 0, 0, false
		}
	}
	return tE, tL, true
}
