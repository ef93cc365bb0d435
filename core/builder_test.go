package core

import (
	"context"
	"math"
	"testing"

	"github.com/citypulse/dispatch-twin/model"
)

// northLine returns a densely sampled polyline running due north from the
// given origin. Each step is about 11 metres.
func northLine(origin model.Point, steps int) []model.Point {
	const stepDeg = 0.0001
	line := make([]model.Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		line = append(line, model.Point{
			Lat: origin.Lat + float64(i)*stepDeg,
			Lng: origin.Lng,
		})
	}
	return line
}

func TestBuildGraphEmptyInput(t *testing.T) {
	g := BuildGraph(context.Background(), nil, DefaultBuildConfig(), nil)
	if !g.Empty() {
		t.Fatalf("empty input produced %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}

	g = BuildGraph(context.Background(), [][]model.Point{{{Lat: 1, Lng: 1}}}, DefaultBuildConfig(), nil)
	if !g.Empty() {
		t.Fatalf("single-point line produced %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
}

func TestBuildGraphSplitsLongLinesAtCap(t *testing.T) {
	// About 660 metres of road against a 200 metre cap: expect the line
	// to split into several edges, each near or under the cap.
	line := northLine(model.Point{Lat: 37.7749, Lng: -122.4194}, 60)

	g := BuildGraph(context.Background(), [][]model.Point{line}, DefaultBuildConfig(), nil)
	if len(g.Edges) < 3 {
		t.Fatalf("expected at least 3 edges after splitting, got %d", len(g.Edges))
	}

	cfg := DefaultBuildConfig()
	for i, e := range g.Edges {
		// Endpoint quantization can stretch an edge by about a metre,
		// but the cap itself is hard.
		if e.LengthM > cfg.MaxEdgeLengthM+1.5 {
			t.Fatalf("edge %d length %.1fm exceeds cap %v", i, e.LengthM, cfg.MaxEdgeLengthM)
		}
	}

	// The split must not lose road: edge lengths sum to the original.
	total := 0.0
	for _, e := range g.Edges {
		total += e.LengthM
	}
	if want := PolylineLength(line); math.Abs(total-want) > 0.5 {
		t.Fatalf("edge lengths sum to %.2fm, original line is %.2fm", total, want)
	}
}

func TestBuildGraphCapsSparseSegments(t *testing.T) {
	// A bare two-vertex line with no intermediate geometry: the cap must
	// hold via interpolated cut points, not just existing vertices.
	line := []model.Point{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.7804, Lng: -122.4194}, // ~610 m due north
	}

	cfg := DefaultBuildConfig()
	g := BuildGraph(context.Background(), [][]model.Point{line}, cfg, nil)
	if len(g.Edges) < 3 {
		t.Fatalf("expected a ~610m bare segment to split into at least 3 edges, got %d", len(g.Edges))
	}

	total := 0.0
	for i, e := range g.Edges {
		if e.LengthM > cfg.MaxEdgeLengthM+1.5 {
			t.Fatalf("edge %d length %.1fm exceeds cap %v", i, e.LengthM, cfg.MaxEdgeLengthM)
		}
		total += e.LengthM
	}
	if want := PolylineLength(line); math.Abs(total-want) > 0.5 {
		t.Fatalf("edge lengths sum to %.2fm, original segment is %.2fm", total, want)
	}
}

func TestBuildGraphDeduplicatesSharedEndpoints(t *testing.T) {
	// Two short roads meeting at the same corner, with a sub-centimetre
	// coordinate wobble that quantization must absorb.
	corner := model.Point{Lat: 37.7749, Lng: -122.4194}
	a := []model.Point{{Lat: 37.7745, Lng: -122.4194}, corner}
	b := []model.Point{{Lat: corner.Lat + 1e-7, Lng: corner.Lng - 1e-7}, {Lat: 37.7749, Lng: -122.4188}}

	cfg := DefaultBuildConfig()
	cfg.MergeRadiusM = 0 // isolate quantized dedup from the merge pass
	g := BuildGraph(context.Background(), [][]model.Point{a, b}, cfg, nil)

	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes (shared corner deduplicated), got %d", len(g.Nodes))
	}
	if len(g.Edges) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(g.Edges))
	}
}

func TestBuildGraphNoSelfLoops(t *testing.T) {
	// A tiny closed loop whose endpoints quantize to the same node must
	// be dropped rather than kept as a self-loop.
	p := model.Point{Lat: 37.7749, Lng: -122.4194}
	loop := []model.Point{
		p,
		{Lat: p.Lat + 0.00002, Lng: p.Lng},
		{Lat: p.Lat + 0.00002, Lng: p.Lng + 0.00002},
		{Lat: p.Lat + 1e-7, Lng: p.Lng},
	}

	cfg := DefaultBuildConfig()
	cfg.MergeRadiusM = 0
	g := BuildGraph(context.Background(), [][]model.Point{loop}, cfg, nil)

	for i, e := range g.Edges {
		if e.From == e.To {
			t.Fatalf("edge %d is a self-loop on node %d", i, e.From)
		}
	}
}

func TestBuildGraphAdjacencyMatchesEdges(t *testing.T) {
	lines := [][]model.Point{
		{{Lat: 37.7749, Lng: -122.4194}, {Lat: 37.7759, Lng: -122.4194}},
		{{Lat: 37.7759, Lng: -122.4194}, {Lat: 37.7759, Lng: -122.4184}},
	}
	g := BuildGraph(context.Background(), lines, DefaultBuildConfig(), nil)

	if len(g.Adjacency) != len(g.Nodes) {
		t.Fatalf("adjacency has %d entries for %d nodes", len(g.Adjacency), len(g.Nodes))
	}
	for i, e := range g.Edges {
		if !containsInt(g.Adjacency[e.From], i) {
			t.Fatalf("edge %d missing from adjacency of node %d", i, e.From)
		}
		if !containsInt(g.Adjacency[e.To], i) {
			t.Fatalf("edge %d missing from adjacency of node %d", i, e.To)
		}
	}
}

// Every edge's polyline must start at its From node and end at its To node.
func TestBuildGraphEdgeEndpointsPinnedToNodes(t *testing.T) {
	line := northLine(model.Point{Lat: 37.7749, Lng: -122.4194}, 60)
	g := BuildGraph(context.Background(), [][]model.Point{line}, DefaultBuildConfig(), nil)

	for i, e := range g.Edges {
		if e.Coords[0] != g.Nodes[e.From].Point() {
			t.Fatalf("edge %d polyline start %+v != from node %+v", i, e.Coords[0], g.Nodes[e.From].Point())
		}
		if e.Coords[len(e.Coords)-1] != g.Nodes[e.To].Point() {
			t.Fatalf("edge %d polyline end %+v != to node %+v", i, e.Coords[len(e.Coords)-1], g.Nodes[e.To].Point())
		}
	}
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
