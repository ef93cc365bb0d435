package core

import (
	"math"

	"github.com/citypulse/dispatch-twin/model"
)

// metresPerDegreeLat is the approximate north-south span of one degree of
// latitude, used only to size merge-grid cells.
const metresPerDegreeLat = 111132.0

// MergeNearbyNodes collapses clusters of nodes lying within radiusM of each
// other into single nodes, remaps edges, drops edges that become self-loops,
// and rebuilds adjacency. Quantized deduplication during the build catches
// exact duplicates; this pass catches independently digitized intersections
// a few metres apart without an all-pairs comparison.
//
// The pass is idempotent: re-running it on an already-merged graph leaves
// node and edge counts unchanged. Each cluster's representative is the
// member with the lowest original index, which fixes output ordering.
func MergeNearbyNodes(g *model.Graph, radiusM float64) *model.Graph {
	if g == nil || len(g.Nodes) == 0 || radiusM <= 0 {
		return g
	}

	uf := newUnionFind(len(g.Nodes))
	grid := newMergeGrid(g.Nodes, radiusM)

	// Compare each node only against candidates in the 3x3 neighborhood
	// of its cell; the cell size guarantees any pair within radiusM falls
	// in the same or an adjacent cell.
	for i, n := range g.Nodes {
		for _, j := range grid.neighborhood(n) {
			if j <= i {
				continue
			}
			if Haversine(n.Point(), g.Nodes[j].Point()) <= radiusM {
				uf.union(i, j)
			}
		}
	}

	// Assign each cluster an output slot, ordered by the representative's
	// original index.
	remap := make([]int, len(g.Nodes))
	for i := range remap {
		remap[i] = -1
	}
	var nodes []model.Node
	for i := range g.Nodes {
		root := uf.find(i)
		if remap[root] == -1 {
			remap[root] = len(nodes)
			nodes = append(nodes, g.Nodes[root])
		}
		remap[i] = remap[root]
	}

	var edges []model.Edge
	for _, e := range g.Edges {
		from, to := remap[e.From], remap[e.To]
		if from == to {
			continue
		}
		coords := make([]model.Point, len(e.Coords))
		copy(coords, e.Coords)
		coords[0] = nodes[from].Point()
		coords[len(coords)-1] = nodes[to].Point()
		edges = append(edges, model.Edge{
			From:    from,
			To:      to,
			LengthM: e.LengthM,
			Coords:  coords,
		})
	}

	return &model.Graph{
		Nodes:     nodes,
		Edges:     edges,
		Adjacency: buildAdjacency(len(nodes), edges),
	}
}

// mergeGrid buckets node indices into uniform lat/lng cells sized so that
// any two points within the merge radius share a cell or an adjacent one.
type mergeGrid struct {
	cellLat float64
	cellLng float64
	cells   map[[2]int][]int
}

func newMergeGrid(nodes []model.Node, radiusM float64) *mergeGrid {
	// Longitude degrees shrink with latitude; size cells at the mean
	// latitude of the dataset so the adjacency guarantee holds locally.
	meanLat := 0.0
	for _, n := range nodes {
		meanLat += n.Lat
	}
	meanLat /= float64(len(nodes))

	cosLat := math.Cos(meanLat * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}

	grid := &mergeGrid{
		cellLat: radiusM / metresPerDegreeLat,
		cellLng: radiusM / (metresPerDegreeLat * cosLat),
		cells:   make(map[[2]int][]int),
	}
	for i, n := range nodes {
		key := grid.cellOf(n)
		grid.cells[key] = append(grid.cells[key], i)
	}
	return grid
}

func (g *mergeGrid) cellOf(n model.Node) [2]int {
	return [2]int{
		int(math.Floor(n.Lat / g.cellLat)),
		int(math.Floor(n.Lng / g.cellLng)),
	}
}

// neighborhood returns the node indices in the 3x3 block of cells around n,
// including n's own cell (and therefore n itself).
func (g *mergeGrid) neighborhood(n model.Node) []int {
	center := g.cellOf(n)
	var out []int
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			out = append(out, g.cells[[2]int{center[0] + dr, center[1] + dc}]...)
		}
	}
	return out
}

// unionFind is a disjoint-set forest with path compression and union by
// smaller root index, so a cluster's root is its lowest-index member.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	// Keep the lower index as root so representatives are deterministic.
	if ra < rb {
		u.parent[rb] = ra
	} else {
		u.parent[ra] = rb
	}
}
