// Command graphbuild converts raw road GeoJSON into the routable graph file
// the twin server loads at startup. It is a one-shot tool: read, build, save.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/citypulse/dispatch-twin/core"
	"github.com/citypulse/dispatch-twin/internal/config"
	"github.com/citypulse/dispatch-twin/internal/logging"
)

func main() {
	log := logging.NewFromEnv()
	ctx := context.Background()

	// Flag defaults come from the shared environment config, so graphbuild
	// and twin-server agree on paths and merge radius out of the box.
	appCfg, err := config.Load()
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.String("error", err.Error()))
		os.Exit(1)
	}

	input := flag.String("input", appCfg.RoadsGeoJSONPath, "Path to the road network GeoJSON")
	output := flag.String("output", appCfg.GraphPath, "Destination for the built graph")
	maxEdge := flag.Float64("max-edge-m", 0, "Maximum edge length in metres before splitting (0 uses the default)")
	mergeRadius := flag.Float64("merge-radius-m", appCfg.MergeRadiusM, "Radius in metres for collapsing near-duplicate intersections")
	flag.Parse()

	data, err := os.ReadFile(*input)
	if err != nil {
		log.Error(ctx, "failed to read input", logging.String("path", *input), logging.String("error", err.Error()))
		os.Exit(1)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		log.Error(ctx, "failed to parse GeoJSON", logging.String("path", *input), logging.String("error", err.Error()))
		os.Exit(1)
	}

	cfg := core.DefaultBuildConfig()
	if *maxEdge > 0 {
		cfg.MaxEdgeLengthM = *maxEdge
	}
	if *mergeRadius > 0 {
		cfg.MergeRadiusM = *mergeRadius
	}

	g := core.BuildGraphFromGeoJSON(ctx, fc, cfg, log)
	if g.Empty() {
		log.Warn(ctx, "built graph is empty", logging.String("input", *input))
	}

	if err := core.SaveGraph(*output, g); err != nil {
		log.Error(ctx, "failed to save graph", logging.String("path", *output), logging.String("error", err.Error()))
		os.Exit(1)
	}

	fmt.Printf("wrote %s: %d nodes, %d edges (from %d features)\n",
		*output, len(g.Nodes), len(g.Edges), len(fc.Features))
}
