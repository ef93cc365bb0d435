package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/model"
)

// ErrGraphInvalid indicates a graph file violated a structural invariant.
var ErrGraphInvalid = errors.New("invalid graph")

// graphFile is the on-disk interchange format. Nodes and polyline points
// are [lat, lng] pairs; adjacency is indexed by node index.
type graphFile struct {
	Nodes     [][2]float64 `json:"nodes"`
	Edges     []graphEdge  `json:"edges"`
	Adjacency [][]int      `json:"adjacency"`
}

type graphEdge struct {
	FromNodeIdx int          `json:"fromNodeIdx"`
	ToNodeIdx   int          `json:"toNodeIdx"`
	LengthM     float64      `json:"lengthM"`
	Coords      [][2]float64 `json:"coords"`
}

// EncodeGraph writes the interchange JSON for a built graph.
func EncodeGraph(w io.Writer, g *model.Graph) error {
	file := graphFile{
		Nodes:     make([][2]float64, 0, len(g.Nodes)),
		Edges:     make([]graphEdge, 0, len(g.Edges)),
		Adjacency: g.Adjacency,
	}
	for _, n := range g.Nodes {
		file.Nodes = append(file.Nodes, [2]float64{n.Lat, n.Lng})
	}
	for _, e := range g.Edges {
		coords := make([][2]float64, 0, len(e.Coords))
		for _, p := range e.Coords {
			coords = append(coords, [2]float64{p.Lat, p.Lng})
		}
		file.Edges = append(file.Edges, graphEdge{
			FromNodeIdx: e.From,
			ToNodeIdx:   e.To,
			LengthM:     e.LengthM,
			Coords:      coords,
		})
	}

	enc := json.NewEncoder(w)
	return enc.Encode(file)
}

// SaveGraph writes the graph to path in the interchange format.
func SaveGraph(path string, g *model.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	defer f.Close()
	if err := EncodeGraph(f, g); err != nil {
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}

// DecodeGraph parses the interchange JSON and validates its invariants.
func DecodeGraph(r io.Reader) (*model.Graph, error) {
	var file graphFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}

	g := &model.Graph{
		Nodes:     make([]model.Node, 0, len(file.Nodes)),
		Edges:     make([]model.Edge, 0, len(file.Edges)),
		Adjacency: file.Adjacency,
	}
	for _, n := range file.Nodes {
		g.Nodes = append(g.Nodes, model.Node{Lat: n[0], Lng: n[1]})
	}
	for i, e := range file.Edges {
		if e.FromNodeIdx < 0 || e.FromNodeIdx >= len(g.Nodes) ||
			e.ToNodeIdx < 0 || e.ToNodeIdx >= len(g.Nodes) {
			return nil, fmt.Errorf("%w: edge %d references node out of range", ErrGraphInvalid, i)
		}
		if e.FromNodeIdx == e.ToNodeIdx {
			return nil, fmt.Errorf("%w: edge %d is a self-loop", ErrGraphInvalid, i)
		}
		// A non-positive length would blow up the motion step's
		// distance-to-fraction division.
		if !(e.LengthM > 0) {
			return nil, fmt.Errorf("%w: edge %d has non-positive length %v", ErrGraphInvalid, i, e.LengthM)
		}
		coords := make([]model.Point, 0, len(e.Coords))
		for _, p := range e.Coords {
			coords = append(coords, model.Point{Lat: p[0], Lng: p[1]})
		}
		g.Edges = append(g.Edges, model.Edge{
			From:    e.FromNodeIdx,
			To:      e.ToNodeIdx,
			LengthM: e.LengthM,
			Coords:  coords,
		})
	}

	if g.Adjacency == nil {
		g.Adjacency = buildAdjacency(len(g.Nodes), g.Edges)
	}
	if len(g.Adjacency) != len(g.Nodes) {
		return nil, fmt.Errorf("%w: adjacency length %d does not match %d nodes",
			ErrGraphInvalid, len(g.Adjacency), len(g.Nodes))
	}
	return g, nil
}

// LoadGraph reads the graph file at path. A missing file is not fatal: the
// engine starts disabled on an empty graph, so the caller gets an empty
// graph and a warning log instead of an error.
func LoadGraph(ctx context.Context, path string, log logging.Logger) (*model.Graph, error) {
	if log == nil {
		log = logging.Noop()
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn(ctx, "graph file missing; starting with empty graph",
			logging.String("path", path))
		return &model.Graph{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	defer f.Close()

	g, err := DecodeGraph(f)
	if err != nil {
		return nil, fmt.Errorf("load graph %q: %w", path, err)
	}
	log.Info(ctx, "graph loaded",
		logging.String("path", path),
		logging.Int("nodes", len(g.Nodes)),
		logging.Int("edges", len(g.Edges)),
	)
	return g, nil
}

// GraphGeoJSON exports the built graph as a GeoJSON FeatureCollection with
// one LineString feature per edge. Internal storage is lat-first; GeoJSON is
// lon-first, and that conversion happens here, at this boundary only.
func GraphGeoJSON(g *model.Graph) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if g == nil {
		return fc
	}
	for i, e := range g.Edges {
		ls := make(orb.LineString, 0, len(e.Coords))
		for _, p := range e.Coords {
			ls = append(ls, orb.Point{p.Lng, p.Lat})
		}
		f := geojson.NewFeature(ls)
		f.Properties["edgeIdx"] = i
		f.Properties["fromNodeIdx"] = e.From
		f.Properties["toNodeIdx"] = e.To
		f.Properties["lengthM"] = e.LengthM
		fc.Append(f)
	}
	return fc
}
