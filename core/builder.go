package core

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/model"
)

// BuildConfig tunes the one-shot graph build.
type BuildConfig struct {
	// MaxEdgeLengthM caps the length of a single edge; longer input
	// segments are split at the vertices nearest multiples of the cap.
	MaxEdgeLengthM float64
	// MinSegmentLengthM drops degenerate input segments outright.
	MinSegmentLengthM float64
	// QuantizeDecimals is the coordinate rounding precision used to
	// collapse exactly coincident endpoints into one node.
	QuantizeDecimals int
	// MergeRadiusM is the near-duplicate node merge radius applied after
	// all edges are built. Zero disables the merge pass.
	MergeRadiusM float64
}

// DefaultBuildConfig returns the documented build defaults.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MaxEdgeLengthM:    200,
		MinSegmentLengthM: 1,
		QuantizeDecimals:  5,
		MergeRadiusM:      4,
	}
}

func (c BuildConfig) withDefaults() BuildConfig {
	d := DefaultBuildConfig()
	if c.MaxEdgeLengthM <= 0 {
		c.MaxEdgeLengthM = d.MaxEdgeLengthM
	}
	if c.MinSegmentLengthM <= 0 {
		c.MinSegmentLengthM = d.MinSegmentLengthM
	}
	if c.QuantizeDecimals <= 0 {
		c.QuantizeDecimals = d.QuantizeDecimals
	}
	return c
}

// nodeKey is a quantized coordinate used to dedupe exactly coincident
// endpoints across input lines. Near-duplicates that quantize differently
// are handled later by the merge pass.
type nodeKey struct {
	lat, lng int64
}

type graphBuilder struct {
	cfg   BuildConfig
	scale float64

	nodes []model.Node
	byKey map[nodeKey]int
	edges []model.Edge
}

// BuildGraph converts raw road-segment polylines (lat-first) into a
// deduplicated routable graph. Empty or malformed input yields an empty
// graph; downstream components treat that as "simulation disabled".
func BuildGraph(ctx context.Context, lines [][]model.Point, cfg BuildConfig, log logging.Logger) *model.Graph {
	if log == nil {
		log = logging.Noop()
	}
	cfg = cfg.withDefaults()

	b := &graphBuilder{
		cfg:   cfg,
		scale: math.Pow(10, float64(cfg.QuantizeDecimals)),
		byKey: make(map[nodeKey]int),
	}

	for _, line := range lines {
		b.addLine(line)
	}

	g := &model.Graph{Nodes: b.nodes, Edges: b.edges}
	g.Adjacency = buildAdjacency(len(g.Nodes), g.Edges)

	if cfg.MergeRadiusM > 0 {
		before := len(g.Nodes)
		g = MergeNearbyNodes(g, cfg.MergeRadiusM)
		log.Info(ctx, "merged near-duplicate nodes",
			logging.Int("before", before),
			logging.Int("after", len(g.Nodes)),
		)
	}

	log.Info(ctx, "graph build complete",
		logging.Int("lines", len(lines)),
		logging.Int("nodes", len(g.Nodes)),
		logging.Int("edges", len(g.Edges)),
	)
	return g
}

// BuildGraphFromGeoJSON builds a graph from a GeoJSON FeatureCollection of
// LineString / MultiLineString road features. GeoJSON is lon-first; the
// conversion to the engine's lat-first points happens here, at the boundary.
func BuildGraphFromGeoJSON(ctx context.Context, fc *geojson.FeatureCollection, cfg BuildConfig, log logging.Logger) *model.Graph {
	var lines [][]model.Point
	if fc != nil {
		for _, f := range fc.Features {
			switch geom := f.Geometry.(type) {
			case orb.LineString:
				lines = append(lines, lineToPoints(geom))
			case orb.MultiLineString:
				for _, ls := range geom {
					lines = append(lines, lineToPoints(ls))
				}
			}
		}
	}
	return BuildGraph(ctx, lines, cfg, log)
}

func lineToPoints(ls orb.LineString) []model.Point {
	pts := make([]model.Point, 0, len(ls))
	for _, p := range ls {
		pts = append(pts, model.Point{Lat: p.Lat(), Lng: p.Lon()})
	}
	return pts
}

// addLine splits one input polyline into cap-respecting chunks and records
// an edge per chunk.
func (b *graphBuilder) addLine(line []model.Point) {
	if len(line) < 2 {
		return
	}

	cum := cumulativeLengths(line)
	total := cum[len(cum)-1]
	if total < b.cfg.MinSegmentLengthM {
		return
	}

	for _, chunk := range splitAtCap(line, cum, b.cfg.MaxEdgeLengthM) {
		b.addChunk(chunk)
	}
}

// splitAtCap cuts the line into chunks no longer than capM. Each cut lands
// on the last existing vertex inside the cap window; when a single input
// segment spans the whole window, a synthetic vertex is interpolated at the
// boundary so sparse geometry still respects the cap.
func splitAtCap(line []model.Point, cum []float64, capM float64) [][]model.Point {
	total := cum[len(cum)-1]
	if capM <= 0 || total <= capM {
		return [][]model.Point{line}
	}

	var chunks [][]model.Point
	start := line[0]
	startDist := 0.0
	i := 0 // last vertex index at or before startDist
	for {
		if total-startDist <= capM {
			chunk := append([]model.Point{start}, line[i+1:]...)
			return append(chunks, chunk)
		}

		boundary := startDist + capM
		j := i
		for j+1 < len(cum) && cum[j+1] <= boundary {
			j++
		}
		if j > i {
			chunk := append([]model.Point{start}, line[i+1:j+1]...)
			chunks = append(chunks, chunk)
			start, startDist, i = line[j], cum[j], j
			continue
		}

		// No vertex inside the window: cut mid-segment.
		f := (boundary - cum[i]) / (cum[i+1] - cum[i])
		syn := model.Point{
			Lat: line[i].Lat + (line[i+1].Lat-line[i].Lat)*f,
			Lng: line[i].Lng + (line[i+1].Lng-line[i].Lng)*f,
		}
		chunks = append(chunks, []model.Point{start, syn})
		start, startDist = syn, boundary
	}
}

func (b *graphBuilder) addChunk(coords []model.Point) {
	length := PolylineLength(coords)
	if length < b.cfg.MinSegmentLengthM {
		return
	}

	from := b.nodeFor(coords[0])
	to := b.nodeFor(coords[len(coords)-1])
	if from == to {
		// Tiny loops collapse to a self-loop once endpoints are
		// quantized; the graph has no use for them.
		return
	}

	// Copy the chunk and pin its endpoints to the node positions so the
	// polyline-endpoint invariant holds even after quantization.
	poly := make([]model.Point, len(coords))
	copy(poly, coords)
	poly[0] = b.nodes[from].Point()
	poly[len(poly)-1] = b.nodes[to].Point()

	b.edges = append(b.edges, model.Edge{
		From:    from,
		To:      to,
		LengthM: length,
		Coords:  poly,
	})
}

// nodeFor returns the node index for a coordinate, creating a node on first
// sight of its quantized key.
func (b *graphBuilder) nodeFor(p model.Point) int {
	key := nodeKey{
		lat: int64(math.Round(p.Lat * b.scale)),
		lng: int64(math.Round(p.Lng * b.scale)),
	}
	if idx, ok := b.byKey[key]; ok {
		return idx
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, model.Node{Lat: p.Lat, Lng: p.Lng})
	b.byKey[key] = idx
	return idx
}

// buildAdjacency creates the per-node incident edge index lists. Every edge
// appears in both endpoints' lists.
func buildAdjacency(nodeCount int, edges []model.Edge) [][]int {
	adj := make([][]int, nodeCount)
	for i, e := range edges {
		adj[e.From] = append(adj[e.From], i)
		adj[e.To] = append(adj[e.To], i)
	}
	return adj
}
