package geoproc

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "geoproc")

// Buffer approximates a circle around center with a regular polygon of 4*segments
// vertices lying on the circle, in counter-clockwise order.
func Buffer(center orb.Point, radius float64, segments int) orb.Polygon {
	if segments < 1 {
		segments = 1
	}
	n := 4 * segments
	ring := make(orb.Ring, 0, n+1)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		ring = append(ring, orb.Point{
			center[0] + radius*math.Cos(a),
			center[1] + radius*math.Sin(a),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// WKT is the cache key used for geometries.
func WKT(g orb.Geometry) string {
	return wkt.MarshalString(g)
}

// IsValidPoint reports whether g is a point with finite coordinates.
func IsValidPoint(g orb.Geometry) (orb.Point, bool) {
	p, ok := g.(orb.Point)
	if !ok {
		return orb.Point{}, false
	}
	for _, c := range p {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return orb.Point{}, false
		}
	}
	return p, true
}

func lerp(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}
