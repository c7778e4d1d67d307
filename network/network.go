package network

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/sim/ptal/metrics"
	"git.fiblab.net/sim/ptal/network/algo"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "network")

var (
	ErrNoPath    = errors.New("no path between the points")
	ErrNoNetwork = errors.New("point is not tied to the network")
)

type EuclideanHeuristics struct{}

func (h EuclideanHeuristics) HeuristicEuclidean(p1 geometry.Point, p2 geometry.Point) float64 {
	return geometry.Distance(p1, p2)
}

// Network is an undirected planar graph built from line geometries, with a set of
// tie points snapped onto it. Edge cost is the segment length.
type Network struct {
	g *algo.SearchGraph[orb.Point, struct{}]
	// tie point -> node id, -1表示未连接
	ties []int
}

type split struct {
	t float64
	p orb.Point
}

// Build creates the network. Vertices with equal coordinates are merged. Each tie point
// is projected onto its nearest segment, which is split at the projection.
func Build(lines []orb.LineString, ties []orb.Point) *Network {
	n := &Network{
		g:    algo.NewSearchGraph[orb.Point, struct{}](EuclideanHeuristics{}),
		ties: make([]int, len(ties)),
	}
	var segments [][2]orb.Point
	for _, ls := range lines {
		for i := 0; i+1 < len(ls); i++ {
			if ls[i] != ls[i+1] {
				segments = append(segments, [2]orb.Point{ls[i], ls[i+1]})
			}
		}
	}

	vertices := make(map[orb.Point]int)
	nodeOf := func(p orb.Point) int {
		if id, ok := vertices[p]; ok {
			return id
		}
		id := n.g.InitNode(geometry.Point{X: p[0], Y: p[1]}, p)
		vertices[p] = id
		return id
	}

	// 连接点投影到最近的线段
	splits := make(map[int][]split)
	tiePoints := make([]orb.Point, len(ties))
	tied := make([]bool, len(ties))
	for i, p := range ties {
		n.ties[i] = -1
		best, bestDistance := -1, math.Inf(0)
		var bestSplit split
		for j, s := range segments {
			q, t := project(p, s[0], s[1])
			if d := planar.Distance(p, q); d < bestDistance {
				best, bestDistance, bestSplit = j, d, split{t: t, p: q}
			}
		}
		if best < 0 {
			continue
		}
		tiePoints[i], tied[i] = bestSplit.p, true
		if bestSplit.t > 0 && bestSplit.t < 1 {
			splits[best] = append(splits[best], bestSplit)
		}
	}

	for j, s := range segments {
		chain := []orb.Point{s[0]}
		if ss := splits[j]; len(ss) > 0 {
			sort.Slice(ss, func(a, b int) bool { return ss[a].t < ss[b].t })
			for _, sp := range ss {
				chain = append(chain, sp.p)
			}
		}
		chain = append(chain, s[1])
		for k := 0; k+1 < len(chain); k++ {
			a, b := chain[k], chain[k+1]
			if a == b {
				continue
			}
			from, to := nodeOf(a), nodeOf(b)
			length := planar.Distance(a, b)
			n.g.InitEdge(from, to, length, struct{}{})
			n.g.InitEdge(to, from, length, struct{}{})
		}
	}
	for i := range ties {
		if tied[i] {
			n.ties[i] = vertices[tiePoints[i]]
		}
	}
	log.Debugf("network built: %d segments, %d nodes, %d ties", len(segments), n.g.NodeCount(), len(ties))
	return n
}

// 点p在线段ab上的投影及其参数t
func project(p, a, b orb.Point) (orb.Point, float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	switch {
	case t <= 0:
		return a, 0
	case t >= 1:
		return b, 1
	}
	return orb.Point{a[0] + dx*t, a[1] + dy*t}, t
}

func (n *Network) NodeCount() int {
	return n.g.NodeCount()
}

// TieNode returns the node a tie point was snapped to, or -1.
func (n *Network) TieNode(tie int) int {
	return n.ties[tie]
}

// TiePosition returns the snapped position of a tie point.
func (n *Network) TiePosition(tie int) (orb.Point, bool) {
	id := n.ties[tie]
	if id < 0 {
		return orb.Point{}, false
	}
	return n.g.NodeAttr(id), true
}

// ShortestDistance returns the network length between two tie points. The connectors
// between the points and the network are not included.
func (n *Network) ShortestDistance(from, to int) (float64, error) {
	a, b := n.ties[from], n.ties[to]
	if a < 0 || b < 0 {
		return math.Inf(0), ErrNoNetwork
	}
	return n.NodeDistance(a, b)
}

// NodeDistance returns the shortest path length between two nodes.
func (n *Network) NodeDistance(from, to int) (cost float64, err error) {
	metrics.PathSearches.Inc()
	defer func() {
		if r := recover(); r != nil {
			cost, err = math.Inf(0), fmt.Errorf("shortest path %d->%d: %v", from, to, r)
		}
	}()
	_, cost = n.g.ShortestPath(from, to)
	if math.IsInf(cost, 1) {
		return cost, ErrNoPath
	}
	return cost, nil
}

// ServiceArea returns the network lines reachable from a tie point within limit, edges
// crossing the limit being cut at the reachable length.
func (n *Network) ServiceArea(from int, limit float64) []orb.LineString {
	start := n.ties[from]
	if start < 0 {
		return nil
	}
	dist := n.g.Reach(start, limit)
	ret := make([]orb.LineString, 0)
	for u, du := range dist {
		pu := n.g.NodeAttr(u)
		n.g.ForEachOutEdge(u, func(v int, length float64, _ struct{}) {
			dv, reached := dist[v]
			// 两端都可达的边只处理一次
			if reached && v < u {
				return
			}
			pv := n.g.NodeAttr(v)
			headU, headV := limit-du, math.Inf(-1)
			if reached {
				headV = limit - dv
			}
			switch {
			case headU >= length || headV >= length || headU+headV >= length:
				ret = append(ret, orb.LineString{pu, pv})
			default:
				if headU > 0 {
					ret = append(ret, orb.LineString{pu, along(pu, pv, headU/length)})
				}
				if headV > 0 {
					ret = append(ret, orb.LineString{pv, along(pv, pu, headV/length)})
				}
			}
		})
	}
	return ret
}

func along(a, b orb.Point, t float64) orb.Point {
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}
