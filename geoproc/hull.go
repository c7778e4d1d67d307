package geoproc

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

type triangle [3]int

type edgeKey [2]int

func keyOf(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

func (t triangle) edges() [3][2]int {
	return [3][2]int{{t[0], t[1]}, {t[1], t[2]}, {t[2], t[0]}}
}

// ConcaveHull computes a concave hull of points by eroding the Delaunay triangulation
// from the outside: a boundary triangle is removed while its longest boundary edge is
// longer than min + ratio*(max-min) of all triangulation edge lengths and the removal
// keeps the hull a single simple polygon. ratio 1 yields the convex hull. ok is false
// when fewer than three distinct, non-collinear points are given.
func ConcaveHull(points []orb.Point, ratio float64) (hull orb.Polygon, ok bool) {
	pts := uniquePoints(points)
	if len(pts) < 3 {
		return nil, false
	}
	tris := delaunay(pts)
	if len(tris) == 0 {
		return nil, false
	}
	tris = erode(pts, tris, edgeLengthThreshold(pts, tris, ratio))
	ring := boundary(pts, tris)
	if ring == nil {
		log.Warnf("concave hull of %d points is not a simple ring", len(pts))
		return nil, false
	}
	return orb.Polygon{ring}, true
}

func uniquePoints(points []orb.Point) []orb.Point {
	seen := make(map[orb.Point]bool, len(points))
	ret := make([]orb.Point, 0, len(points))
	for _, p := range points {
		if !seen[p] {
			seen[p] = true
			ret = append(ret, p)
		}
	}
	return ret
}

// Bowyer-Watson，坐标平移到包围盒中心以减小误差
func delaunay(pts []orb.Point) []triangle {
	b := orb.MultiPoint(pts).Bound()
	center := b.Center()
	size := max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
	if size == 0 {
		return nil
	}
	n := len(pts)
	local := make([]orb.Point, n+3)
	for i, p := range pts {
		local[i] = orb.Point{p[0] - center[0], p[1] - center[1]}
	}
	// 超级三角形（逆时针）
	local[n] = orb.Point{-20 * size, -10 * size}
	local[n+1] = orb.Point{20 * size, -10 * size}
	local[n+2] = orb.Point{0, 20 * size}

	tris := []triangle{{n, n + 1, n + 2}}
	for i := 0; i < n; i++ {
		p := local[i]
		keep := tris[:0:0]
		counts := make(map[edgeKey]int)
		var cavity [][2]int
		for _, t := range tris {
			if inCircle(local[t[0]], local[t[1]], local[t[2]], p) {
				for _, e := range t.edges() {
					counts[keyOf(e[0], e[1])]++
					cavity = append(cavity, e)
				}
			} else {
				keep = append(keep, t)
			}
		}
		for _, e := range cavity {
			if counts[keyOf(e[0], e[1])] != 1 {
				continue
			}
			t := triangle{e[0], e[1], i}
			if cross(local[t[0]], local[t[1]], local[t[2]]) < 0 {
				t[0], t[1] = t[1], t[0]
			}
			keep = append(keep, t)
		}
		tris = keep
	}

	// 去掉超级三角形的顶点与退化三角形
	eps := 1e-12 * size * size
	ret := make([]triangle, 0, len(tris))
	for _, t := range tris {
		if t[0] >= n || t[1] >= n || t[2] >= n {
			continue
		}
		if math.Abs(cross(local[t[0]], local[t[1]], local[t[2]])) <= eps {
			continue
		}
		ret = append(ret, t)
	}
	return ret
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// 逆时针三角形abc的外接圆是否严格包含d
func inCircle(a, b, c, d orb.Point) bool {
	adx, ady := a[0]-d[0], a[1]-d[1]
	bdx, bdy := b[0]-d[0], b[1]-d[1]
	cdx, cdy := c[0]-d[0], c[1]-d[1]
	det := (adx*adx+ady*ady)*(bdx*cdy-cdx*bdy) -
		(bdx*bdx+bdy*bdy)*(adx*cdy-cdx*ady) +
		(cdx*cdx+cdy*cdy)*(adx*bdy-bdx*ady)
	return det > 0
}

func edgeLengthThreshold(pts []orb.Point, tris []triangle, ratio float64) float64 {
	minLen, maxLen := math.Inf(0), 0.0
	for _, t := range tris {
		for _, e := range t.edges() {
			l := planar.Distance(pts[e[0]], pts[e[1]])
			minLen = min(minLen, l)
			maxLen = max(maxLen, l)
		}
	}
	return minLen + ratio*(maxLen-minLen)
}

func erode(pts []orb.Point, tris []triangle, threshold float64) []triangle {
	alive := make([]bool, len(tris))
	aliveCount := len(tris)
	for i := range alive {
		alive[i] = true
	}
	for aliveCount > 1 {
		counts := make(map[edgeKey]int)
		for i, t := range tris {
			if !alive[i] {
				continue
			}
			for _, e := range t.edges() {
				counts[keyOf(e[0], e[1])]++
			}
		}
		onBoundary := make(map[int]bool)
		for k, c := range counts {
			if c == 1 {
				onBoundary[k[0]] = true
				onBoundary[k[1]] = true
			}
		}

		best, bestLen := -1, threshold
		for i, t := range tris {
			if !alive[i] {
				continue
			}
			nb, longest, opposite := 0, 0.0, -1
			for j, e := range t.edges() {
				if counts[keyOf(e[0], e[1])] != 1 {
					continue
				}
				nb++
				longest = max(longest, planar.Distance(pts[e[0]], pts[e[1]]))
				opposite = t[(j+2)%3]
			}
			if nb == 0 || nb == 3 || longest <= bestLen {
				continue
			}
			// 删除后对顶点会与边界接触，形成非简单多边形
			if nb == 1 && onBoundary[opposite] {
				continue
			}
			best, bestLen = i, longest
		}
		if best < 0 {
			break
		}
		alive[best] = false
		aliveCount--
	}
	ret := make([]triangle, 0, aliveCount)
	for i, t := range tris {
		if alive[i] {
			ret = append(ret, t)
		}
	}
	return ret
}

// 由逆时针三角形的边界边串成闭合环
func boundary(pts []orb.Point, tris []triangle) orb.Ring {
	counts := make(map[edgeKey]int)
	for _, t := range tris {
		for _, e := range t.edges() {
			counts[keyOf(e[0], e[1])]++
		}
	}
	next := make(map[int]int)
	start := -1
	for _, t := range tris {
		for _, e := range t.edges() {
			if counts[keyOf(e[0], e[1])] != 1 {
				continue
			}
			if _, dup := next[e[0]]; dup {
				return nil
			}
			next[e[0]] = e[1]
			if start < 0 {
				start = e[0]
			}
		}
	}
	if start < 0 {
		return nil
	}
	ring := orb.Ring{pts[start]}
	cur := start
	for i := 0; i < len(next); i++ {
		n, ok := next[cur]
		if !ok {
			return nil
		}
		cur = n
		ring = append(ring, pts[cur])
		if cur == start {
			if i != len(next)-1 {
				return nil
			}
			return ring
		}
	}
	return nil
}
