package algo

import (
	"container/heap"
	"log"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/samber/lo"
)

type node[T any] struct {
	p    geometry.Point
	attr T
}

type edge[T any] struct {
	length float64
	attr   T
}

type SearchGraph[NT any, ET any] struct {
	// 邻接表，in node -> out node -> edge
	// 建图完成后只读，可并发搜索
	edges []map[int]edge[ET]
	// 点的位置
	nodes []node[NT]
	// A Star距离预估函数
	h IHeuristics
}

type IHeuristics interface {
	HeuristicEuclidean(geometry.Point, geometry.Point) float64
}

func NewSearchGraph[NT any, ET any](h IHeuristics) *SearchGraph[NT, ET] {
	return &SearchGraph[NT, ET]{
		edges: make([]map[int]edge[ET], 0),
		nodes: make([]node[NT], 0),
		h:     h,
	}
}

func (g *SearchGraph[NT, ET]) InitNode(p geometry.Point, attr NT) int {
	g.nodes = append(g.nodes, node[NT]{p: p, attr: attr})
	g.edges = append(g.edges, make(map[int]edge[ET]))
	return len(g.nodes) - 1
}

// 若边已存在，保留较短的一条
func (g *SearchGraph[NT, ET]) InitEdge(from, to int, length float64, attr ET) {
	if from >= len(g.edges) || to >= len(g.edges) {
		log.Panicf("edge (%d,%d) out of range, node count %d", from, to, len(g.edges))
	}
	if old, ok := g.edges[from][to]; ok && old.length <= length {
		return
	}
	g.edges[from][to] = edge[ET]{length: length, attr: attr}
}

func (g *SearchGraph[NT, ET]) NodeCount() int {
	return len(g.nodes)
}

func (g *SearchGraph[NT, ET]) NodeAttr(id int) NT {
	return g.nodes[id].attr
}

// 遍历from的所有出边
func (g *SearchGraph[NT, ET]) ForEachOutEdge(from int, fn func(to int, length float64, attr ET)) {
	for to, e := range g.edges[from] {
		fn(to, e.length, e.attr)
	}
}

func (g *SearchGraph[NT, ET]) reconstructPath(cameFrom map[int]int, curNode int) ([]PathItem[NT, ET], float64) {
	pathBeforeReversed := []PathItem[NT, ET]{{NodeAttr: g.nodes[curNode].attr}}
	cost := .0
	for {
		from, ok := cameFrom[curNode]
		if !ok {
			break
		}
		e := g.edges[from][curNode]
		cost += e.length
		curNode = from
		pathBeforeReversed = append(pathBeforeReversed, PathItem[NT, ET]{
			NodeAttr: g.nodes[curNode].attr,
			EdgeAttr: e.attr,
		})
	}
	return lo.Reverse(pathBeforeReversed), cost
}

func (g *SearchGraph[NT, ET]) ShortestPath(start, end int) ([]PathItem[NT, ET], float64) {
	return g.ShortestPathAStar(start, end)
}

// A Star算法求最短路，不可达时返回nil和正无穷
func (g *SearchGraph[NT, ET]) ShortestPathAStar(start, end int) ([]PathItem[NT, ET], float64) {
	if start == end {
		return []PathItem[NT, ET]{{NodeAttr: g.nodes[start].attr}}, 0
	}
	openSet := make(PriorityQueue, 1)
	openSetMap := make(map[int]*Item, 1) // openSet value -> openSet item
	cameFrom := make(map[int]int, 0)
	gScore := make(map[int]float64, 0)
	gScore[start] = .0
	fScore := g.h.HeuristicEuclidean(g.nodes[start].p, g.nodes[end].p)
	openSet[0] = &Item{Value: start, Priority: fScore, Index: 0}
	openSetMap[start] = openSet[0]
	heap.Init(&openSet)
	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		delete(openSetMap, cur)
		if cur == end {
			return g.reconstructPath(cameFrom, cur)
		}
		for neighbor, e := range g.edges[cur] {
			gScoreTentative := gScore[cur] + e.length
			gScoreNeighbor, visited := gScore[neighbor]
			if !visited {
				gScoreNeighbor = math.Inf(0)
			}
			if gScoreTentative < gScoreNeighbor {
				cameFrom[neighbor] = cur
				gScore[neighbor] = gScoreTentative
				fScore := gScoreTentative + g.h.HeuristicEuclidean(g.nodes[neighbor].p, g.nodes[end].p)
				if item, ok := openSetMap[neighbor]; ok {
					// 仍在堆中的节点，修改其优先级
					item.Priority = fScore
					heap.Fix(&openSet, item.Index)
				} else {
					// 新访问或已出堆的节点，重新入堆
					item := &Item{Value: neighbor, Priority: fScore}
					heap.Push(&openSet, item)
					openSetMap[neighbor] = item
				}
			}
		}
	}
	return nil, math.Inf(0)
}

// Dijkstra求start出发代价不超过limit的所有结点及其代价
func (g *SearchGraph[NT, ET]) Reach(start int, limit float64) map[int]float64 {
	dist := map[int]float64{start: 0}
	done := make(map[int]bool)
	openSet := PriorityQueue{{Value: start, Priority: 0, Index: 0}}
	openSetMap := map[int]*Item{start: openSet[0]}
	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		delete(openSetMap, cur)
		done[cur] = true
		for neighbor, e := range g.edges[cur] {
			if done[neighbor] {
				continue
			}
			d := dist[cur] + e.length
			if d > limit {
				continue
			}
			if old, ok := dist[neighbor]; ok && old <= d {
				continue
			}
			dist[neighbor] = d
			if item, ok := openSetMap[neighbor]; ok {
				item.Priority = d
				heap.Fix(&openSet, item.Index)
			} else {
				item := &Item{Value: neighbor, Priority: d}
				heap.Push(&openSet, item)
				openSetMap[neighbor] = item
			}
		}
	}
	return dist
}
