package core

import (
	"container/heap"
	"errors"
	"math"

	"github.com/citypulse/dispatch-twin/model"
)

// ErrNoRoute is returned only when the graph has no nodes at all. Fragmented
// graphs degrade through the fallback tiers instead of failing.
var ErrNoRoute = errors.New("no route found")

// RouterConfig tunes snapping and the fallback search bounds.
type RouterConfig struct {
	// NegligibleRadiusM short-circuits routing when both endpoints snap
	// within this distance of each other.
	NegligibleRadiusM float64
	// ArrivalRadiusM ends the greedy walk once within this distance of
	// the goal.
	ArrivalRadiusM float64
	// MaxGreedySteps caps the greedy walk to guarantee termination.
	MaxGreedySteps int
	// MaxRoadDistanceM is the absolute cap on the bounded-Dijkstra
	// fallback; the effective cap is the smaller of this and
	// DistanceCapFactor times the straight-line distance.
	MaxRoadDistanceM  float64
	DistanceCapFactor float64
	// SnapCellSizeM sizes the nearest-node grid cells.
	SnapCellSizeM float64
}

// DefaultRouterConfig returns the documented routing defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		NegligibleRadiusM: 10,
		ArrivalRadiusM:    50,
		MaxGreedySteps:    2000,
		MaxRoadDistanceM:  50000,
		DistanceCapFactor: 3,
		SnapCellSizeM:     500,
	}
}

// RouteResult is a computed road path: the rendering polyline (lat-first,
// starting and ending at the exact request coordinates), its total length,
// and the derived ETA.
type RouteResult struct {
	Coords     []model.Point
	DistanceM  float64
	ETASeconds float64
}

// Router computes best-effort road-following paths over an immutable graph.
// It owns no mutable state: a single Router is safe for concurrent use
// across simultaneous requests.
type Router struct {
	graph *model.Graph
	cfg   RouterConfig
	snap  *nodeGrid
}

// NewRouter builds a router and its nearest-node spatial index.
func NewRouter(g *model.Graph, cfg RouterConfig) *Router {
	d := DefaultRouterConfig()
	if cfg.NegligibleRadiusM <= 0 {
		cfg.NegligibleRadiusM = d.NegligibleRadiusM
	}
	if cfg.ArrivalRadiusM <= 0 {
		cfg.ArrivalRadiusM = d.ArrivalRadiusM
	}
	if cfg.MaxGreedySteps <= 0 {
		cfg.MaxGreedySteps = d.MaxGreedySteps
	}
	if cfg.MaxRoadDistanceM <= 0 {
		cfg.MaxRoadDistanceM = d.MaxRoadDistanceM
	}
	if cfg.DistanceCapFactor <= 0 {
		cfg.DistanceCapFactor = d.DistanceCapFactor
	}
	if cfg.SnapCellSizeM <= 0 {
		cfg.SnapCellSizeM = d.SnapCellSizeM
	}
	return &Router{
		graph: g,
		cfg:   cfg,
		snap:  newNodeGrid(g.Nodes, cfg.SnapCellSizeM),
	}
}

// Route computes a path between two coordinates at the given travel speed.
// Tier 1 is exact A*; tier 2 a greedy walk toward the goal; tier 3 a
// bounded single-source shortest path to the reachable node closest to the
// goal. ErrNoRoute is returned only for a graph with no nodes.
func (r *Router) Route(from, to model.Point, speedMPS float64) (*RouteResult, error) {
	if len(r.graph.Nodes) == 0 {
		return nil, ErrNoRoute
	}

	start := r.snap.nearest(from)
	goal := r.snap.nearest(to)

	direct := Haversine(from, to)
	if start == goal || direct <= r.cfg.NegligibleRadiusM {
		return r.result([]model.Point{from, to}, direct, speedMPS), nil
	}

	if edges, ok := r.astar(start, goal); ok {
		coords, dist := r.assemble(from, to, start, edges)
		return r.result(coords, dist, speedMPS), nil
	}

	// Start and goal are in different components: trade exactness for
	// availability rather than answering "no path".
	if edges, ok := r.greedyWalk(start, to); ok {
		coords, dist := r.assemble(from, to, start, edges)
		return r.result(coords, dist, speedMPS), nil
	}

	edges := r.boundedDijkstra(start, from, to)
	coords, dist := r.assemble(from, to, start, edges)
	return r.result(coords, dist, speedMPS), nil
}

func (r *Router) result(coords []model.Point, dist float64, speedMPS float64) *RouteResult {
	eta := 0.0
	if speedMPS > 0 {
		eta = math.Round(dist / speedMPS)
	}
	return &RouteResult{Coords: coords, DistanceM: dist, ETASeconds: eta}
}

// astar runs A* from start to goal. Priority is g + h with the haversine
// distance to the goal as the admissible heuristic. A discovered g is
// replaced only if strictly smaller, so ties keep the first-found path.
func (r *Router) astar(start, goal int) ([]int, bool) {
	goalPt := r.graph.Nodes[goal].Point()

	gScore := map[int]float64{start: 0}
	cameEdge := make(map[int]int)
	closed := make(map[int]bool)

	pq := &nodeQueue{}
	heap.Init(pq)
	heap.Push(pq, &queueItem{node: start, priority: Haversine(r.graph.Nodes[start].Point(), goalPt)})

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*queueItem).node
		if current == goal {
			return reconstructEdges(r.graph, cameEdge, start, goal), true
		}
		if closed[current] {
			continue
		}
		closed[current] = true

		for _, edgeIdx := range r.graph.Adjacency[current] {
			e := &r.graph.Edges[edgeIdx]
			neighbor := e.Other(current)
			tentative := gScore[current] + e.LengthM
			if old, ok := gScore[neighbor]; ok && tentative >= old {
				continue
			}
			gScore[neighbor] = tentative
			cameEdge[neighbor] = edgeIdx
			h := Haversine(r.graph.Nodes[neighbor].Point(), goalPt)
			heap.Push(pq, &queueItem{node: neighbor, priority: tentative + h})
		}
	}
	return nil, false
}

// reconstructEdges walks cameEdge back from goal to start, returning the
// edge index sequence in travel order.
func reconstructEdges(g *model.Graph, cameEdge map[int]int, start, goal int) []int {
	var rev []int
	for current := goal; current != start; {
		edgeIdx, ok := cameEdge[current]
		if !ok {
			break
		}
		rev = append(rev, edgeIdx)
		current = g.Edges[edgeIdx].Other(current)
	}
	edges := make([]int, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		edges = append(edges, rev[i])
	}
	return edges
}

// greedyWalk repeatedly takes the incident edge whose far endpoint is
// closest to the goal, guarded against cycles and capped in steps. It
// reports failure when it cannot improve on the start node at all.
func (r *Router) greedyWalk(start int, goal model.Point) ([]int, bool) {
	visited := map[int]bool{start: true}
	current := start
	currentDist := Haversine(r.graph.Nodes[start].Point(), goal)

	var edges []int
	for step := 0; step < r.cfg.MaxGreedySteps; step++ {
		if currentDist <= r.cfg.ArrivalRadiusM {
			break
		}

		best, bestDist := -1, currentDist
		for _, edgeIdx := range r.graph.Adjacency[current] {
			far := r.graph.Edges[edgeIdx].Other(current)
			if visited[far] {
				continue
			}
			d := Haversine(r.graph.Nodes[far].Point(), goal)
			if d < bestDist {
				best, bestDist = edgeIdx, d
			}
		}
		if best == -1 {
			break
		}

		edges = append(edges, best)
		current = r.graph.Edges[best].Other(current)
		currentDist = bestDist
		visited[current] = true
	}

	if len(edges) == 0 {
		return nil, false
	}
	return edges, true
}

// boundedDijkstra runs single-source shortest path from start, bounded by
// the smaller of the absolute road-distance cap and DistanceCapFactor times
// the straight-line request distance, and returns the edge path to the
// reachable node closest to the goal.
func (r *Router) boundedDijkstra(start int, from, to model.Point) []int {
	maxDist := math.Min(r.cfg.MaxRoadDistanceM, r.cfg.DistanceCapFactor*Haversine(from, to))

	dist := map[int]float64{start: 0}
	cameEdge := make(map[int]int)
	done := make(map[int]bool)

	pq := &nodeQueue{}
	heap.Init(pq)
	heap.Push(pq, &queueItem{node: start, priority: 0})

	best := start
	bestGoalDist := Haversine(r.graph.Nodes[start].Point(), to)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queueItem)
		current := item.node
		if done[current] {
			continue
		}
		done[current] = true

		if d := Haversine(r.graph.Nodes[current].Point(), to); d < bestGoalDist {
			best, bestGoalDist = current, d
		}

		for _, edgeIdx := range r.graph.Adjacency[current] {
			e := &r.graph.Edges[edgeIdx]
			neighbor := e.Other(current)
			alt := dist[current] + e.LengthM
			if alt > maxDist {
				continue
			}
			if old, ok := dist[neighbor]; ok && alt >= old {
				continue
			}
			dist[neighbor] = alt
			cameEdge[neighbor] = edgeIdx
			heap.Push(pq, &queueItem{node: neighbor, priority: alt})
		}
	}

	return reconstructEdges(r.graph, cameEdge, start, best)
}

// assemble concatenates the traversed edges' polylines in travel direction
// into one coordinate list, prefixed and suffixed with the exact request
// coordinates, and returns the total distance including the connecting
// straight segments.
func (r *Router) assemble(from, to model.Point, start int, edges []int) ([]model.Point, float64) {
	coords := []model.Point{from}
	dist := 0.0

	current := start
	startPt := r.graph.Nodes[start].Point()
	dist += Haversine(from, startPt)
	coords = append(coords, startPt)

	for _, edgeIdx := range edges {
		e := &r.graph.Edges[edgeIdx]
		if e.From == current {
			coords = append(coords, e.Coords[1:]...)
			current = e.To
		} else {
			for i := len(e.Coords) - 2; i >= 0; i-- {
				coords = append(coords, e.Coords[i])
			}
			current = e.From
		}
		dist += e.LengthM
	}

	endPt := r.graph.Nodes[current].Point()
	dist += Haversine(endPt, to)
	coords = append(coords, to)
	return coords, dist
}

// ---------- open-list priority queue ----------

type queueItem struct {
	node     int
	priority float64
}

type nodeQueue []*queueItem

func (pq nodeQueue) Len() int           { return len(pq) }
func (pq nodeQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq nodeQueue) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }

func (pq *nodeQueue) Push(x any) {
	*pq = append(*pq, x.(*queueItem))
}

func (pq *nodeQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ---------- nearest-node spatial index ----------

// nodeGrid is a uniform lat/lng grid over the node set, replacing a linear
// scan for nearest-node snapping. Behavior matches the scan: the globally
// nearest node always wins.
type nodeGrid struct {
	nodes     []model.Node
	cellSizeM float64
	cellLat   float64
	cellLng   float64
	cells     map[[2]int][]int
	maxRing   int
}

func newNodeGrid(nodes []model.Node, cellSizeM float64) *nodeGrid {
	grid := &nodeGrid{
		nodes:     nodes,
		cellSizeM: cellSizeM,
		cellLat:   cellSizeM / metresPerDegreeLat,
		cellLng:   cellSizeM / metresPerDegreeLat, // conservative near the equator; rings expand anyway
		cells:     make(map[[2]int][]int),
	}
	if len(nodes) == 0 {
		return grid
	}

	minCell := grid.cellOf(nodes[0].Point())
	maxCell := minCell
	for i, n := range nodes {
		key := grid.cellOf(n.Point())
		grid.cells[key] = append(grid.cells[key], i)
		for d := 0; d < 2; d++ {
			if key[d] < minCell[d] {
				minCell[d] = key[d]
			}
			if key[d] > maxCell[d] {
				maxCell[d] = key[d]
			}
		}
	}
	// Enough rings to cover the whole populated area from any cell.
	grid.maxRing = max(maxCell[0]-minCell[0], maxCell[1]-minCell[1]) + 1
	return grid
}

func (g *nodeGrid) cellOf(p model.Point) [2]int {
	return [2]int{
		int(math.Floor(p.Lat / g.cellLat)),
		int(math.Floor(p.Lng / g.cellLng)),
	}
}

// nearest returns the index of the node closest to p, or -1 on an empty
// grid. It scans outward ring by ring and keeps expanding until every cell
// in the next ring is provably farther than the best hit, so a first hit in
// a diagonal cell never shadows a closer node further out along an axis.
func (g *nodeGrid) nearest(p model.Point) int {
	if len(g.nodes) == 0 {
		return -1
	}
	center := g.cellOf(p)

	best, bestDist := -1, math.Inf(1)
	for ring := 0; ring <= g.maxRing; ring++ {
		// Any node in ring r is at least (r-1) cell widths from p.
		if best != -1 && float64(ring-1)*g.cellSizeM > bestDist {
			break
		}
		for _, idx := range g.ringNodes(center, ring) {
			d := Haversine(g.nodes[idx].Point(), p)
			if d < bestDist {
				best, bestDist = idx, d
			}
		}
	}
	return best
}

// ringNodes returns the node indices in the cells forming the square ring
// at the given radius around center.
func (g *nodeGrid) ringNodes(center [2]int, ring int) []int {
	if ring == 0 {
		return g.cells[center]
	}
	var out []int
	for dr := -ring; dr <= ring; dr++ {
		for dc := -ring; dc <= ring; dc++ {
			if dr > -ring && dr < ring && dc > -ring && dc < ring {
				continue
			}
			out = append(out, g.cells[[2]int{center[0] + dr, center[1] + dc}]...)
		}
	}
	return out
}
