package core

import (
	"math/rand"

	"github.com/citypulse/dispatch-twin/model"
)

// MotionConfig tunes per-agent movement behavior. All values have documented
// defaults applied by DefaultMotionConfig.
type MotionConfig struct {
	// TickSeconds is the fixed simulation timestep.
	TickSeconds float64
	// PauseProbability is the chance an agent pauses when crossing an
	// intersection (a node with two or more incident edges). Dead ends
	// never pause.
	PauseProbability float64
	// PauseMinSeconds and PauseMaxSeconds bound the uniform pause length.
	PauseMinSeconds float64
	PauseMaxSeconds float64
	// ArrivalRadiusM is the distance at which a steered agent counts as
	// having reached its target.
	ArrivalRadiusM float64
	// ArrivalPolicy decides what the agent does on arrival.
	ArrivalPolicy model.ArrivalPolicy
	// SpeedVariance is the half-width of the per-agent speed multiplier:
	// spawn speed is base * (1 ± SpeedVariance).
	SpeedVariance float64
}

// DefaultMotionConfig returns the documented motion defaults.
func DefaultMotionConfig() MotionConfig {
	return MotionConfig{
		TickSeconds:      0.1,
		PauseProbability: 0.25,
		PauseMinSeconds:  1,
		PauseMaxSeconds:  4,
		ArrivalRadiusM:   30,
		ArrivalPolicy:    model.ArrivalHold,
		SpeedVariance:    0.1,
	}
}

// AgentPosition interpolates the agent's coordinate along its current edge's
// polyline. Interpolation follows the polyline, not the chord between the
// edge's endpoints.
func AgentPosition(g *model.Graph, a *model.AgentState) model.Point {
	e := &g.Edges[a.EdgeIdx]
	dist := a.T * e.LengthM
	return PointAlongPolyline(e.Coords, dist)
}

// stepAgent advances one agent by dt seconds. The caller owns the agent
// state; this function assumes a clean graph (no self-loops, polyline
// endpoints on nodes) as guaranteed by the builder.
func stepAgent(g *model.Graph, a *model.AgentState, dt float64, rnd *rand.Rand, cfg MotionConfig) {
	if a.Holding {
		// Arrived under ArrivalHold; frozen until a new target arrives.
		return
	}
	if a.PauseRemaining > 0 {
		a.PauseRemaining -= dt
		if a.PauseRemaining < 0 {
			a.PauseRemaining = 0
		}
		return
	}

	edge := &g.Edges[a.EdgeIdx]
	frac := a.SpeedMPS * dt / edge.LengthM
	if a.TowardTo {
		a.T += frac
	} else {
		a.T -= frac
	}

	// An agent may cross several nodes in one tick when edges are short;
	// each crossing carries the overshoot into the next edge.
	for a.T < 0 || a.T > 1 {
		edge = &g.Edges[a.EdgeIdx]
		var reached int
		var overshootM float64
		if a.T > 1 {
			reached = edge.To
			overshootM = (a.T - 1) * edge.LengthM
		} else {
			reached = edge.From
			overshootM = -a.T * edge.LengthM
		}
		enterEdge(g, a, reached, a.EdgeIdx, overshootM, rnd, cfg)
	}

	checkArrival(g, a, cfg)
}

// enterEdge selects the next edge at a reached node and re-enters it with
// the overshoot distance preserved.
func enterEdge(g *model.Graph, a *model.AgentState, node, prevEdge int, overshootM float64, rnd *rand.Rand, cfg MotionConfig) {
	incident := g.Adjacency[node]

	nextIdx := -1
	if len(incident) >= 2 {
		if a.Target != nil {
			nextIdx = closestEdgeToTarget(g, incident, prevEdge, node, *a.Target)
		}
		if nextIdx == -1 {
			nextIdx = randomOtherEdge(incident, prevEdge, rnd)
		}
	}

	if nextIdx == -1 {
		// Dead end: bounce back along the same edge.
		nextIdx = prevEdge
	}

	next := &g.Edges[nextIdx]
	a.EdgeIdx = nextIdx
	a.TowardTo = next.From == node
	if a.TowardTo {
		a.T = overshootM / next.LengthM
	} else {
		a.T = 1 - overshootM/next.LengthM
	}
	// Guard against an overshoot longer than the new edge; the outer loop
	// in stepAgent handles genuine multi-edge crossings.
	if a.T < 0 && overshootM <= next.LengthM {
		a.T = 0
	} else if a.T > 1 && overshootM <= next.LengthM {
		a.T = 1
	}

	// Only real intersections pause, and only free-roaming agents do;
	// a steered agent drives through.
	if len(incident) >= 2 && a.Target == nil && rnd.Float64() < cfg.PauseProbability {
		a.PauseRemaining = cfg.PauseMinSeconds + rnd.Float64()*(cfg.PauseMaxSeconds-cfg.PauseMinSeconds)
	}
}

// randomOtherEdge picks uniformly among the incident edges excluding the one
// just traveled. Returns -1 when no other edge exists.
func randomOtherEdge(incident []int, exclude int, rnd *rand.Rand) int {
	candidates := make([]int, 0, len(incident))
	for _, idx := range incident {
		if idx != exclude {
			candidates = append(candidates, idx)
		}
	}
	if len(candidates) == 0 {
		return -1
	}
	return candidates[rnd.Intn(len(candidates))]
}

// closestEdgeToTarget deterministically picks the incident edge whose far
// endpoint is geodesically closest to the target, excluding the edge just
// traveled. Returns -1 if no candidate exists.
func closestEdgeToTarget(g *model.Graph, incident []int, exclude, node int, target model.Point) int {
	best, bestDist := -1, 0.0
	for _, idx := range incident {
		if idx == exclude {
			continue
		}
		far := g.Edges[idx].Other(node)
		d := Haversine(g.Nodes[far].Point(), target)
		if best == -1 || d < bestDist {
			best, bestDist = idx, d
		}
	}
	return best
}

// checkArrival applies the configured arrival policy once a steered agent is
// within the arrival radius of its target.
func checkArrival(g *model.Graph, a *model.AgentState, cfg MotionConfig) {
	if a.Target == nil {
		return
	}
	pos := AgentPosition(g, a)
	if Haversine(pos, *a.Target) > cfg.ArrivalRadiusM {
		return
	}

	switch cfg.ArrivalPolicy {
	case model.ArrivalHold:
		a.Holding = true
	case model.ArrivalClear:
		a.Target = nil
		a.Dispatched = false
	case model.ArrivalKeep:
		// Keep steering; the agent orbits near the target.
	}
}
