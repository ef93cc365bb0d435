package model

// Node is a point in the routable graph. Its identity is its index in the
// graph's node slice, never a raw coordinate: coordinates may be merged or
// rounded during the build.
type Node struct {
	Lat float64
	Lng float64
}

// Point returns the node's coordinate.
func (n Node) Point() Point { return Point{Lat: n.Lat, Lng: n.Lng} }

// Edge is a routable segment between two nodes. Direction of the From/To
// pair is storage order only; traversal is allowed both ways.
//
// Invariants (guaranteed by the builder, assumed downstream):
//   - From != To (self-loops are dropped during the build)
//   - Coords starts at the From node's position and ends at the To node's
type Edge struct {
	From    int     `json:"fromNodeIdx"`
	To      int     `json:"toNodeIdx"`
	LengthM float64 `json:"lengthM"`
	// Coords is the ordered rendering polyline, lat-first.
	Coords []Point `json:"coords"`
}

// Other returns the endpoint opposite n. Callers must pass one of the
// edge's endpoints.
func (e *Edge) Other(n int) int {
	if n == e.From {
		return e.To
	}
	return e.From
}

// Graph is the immutable routable road graph: nodes, edges, and a per-node
// adjacency list of incident edge indices. An edge appears in both of its
// endpoints' lists. The graph may contain multiple connected components;
// consumers must not assume full connectivity.
type Graph struct {
	Nodes     []Node
	Edges     []Edge
	Adjacency [][]int
}

// Empty reports whether the graph has no routable content.
func (g *Graph) Empty() bool {
	return g == nil || len(g.Nodes) == 0 || len(g.Edges) == 0
}
