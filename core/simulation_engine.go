package core

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/model"
)

// EngineMetricsRecorder receives simulation gauges and timings. Implemented
// by the observability collector; a nil recorder disables recording.
type EngineMetricsRecorder interface {
	ObserveTickDuration(seconds float64)
	SetAgentCount(category string, count int)
}

// SimulationEngine owns the mutable agent fleet and advances it along the
// immutable road graph every fixed timestep. The tick loop is the only
// writer of agent state; readers consume the immutable snapshot published
// by atomic pointer swap at the end of every tick, so snapshot reads never
// block or skew the loop.
type SimulationEngine struct {
	graph *model.Graph
	cfg   MotionConfig
	log   logging.Logger

	metrics EngineMetricsRecorder

	// mu serializes the tick loop against SetSteeringTargets /
	// SetDispatchTarget; it is never taken on the snapshot read path.
	mu     sync.Mutex
	rnd    *rand.Rand
	agents []*model.AgentState

	snapshot atomic.Pointer[[]model.SnapshotEntry]

	disabled bool
}

// EngineOption customises SimulationEngine construction.
type EngineOption func(*SimulationEngine)

// WithEngineLogger attaches a structured logger.
func WithEngineLogger(log logging.Logger) EngineOption {
	return func(se *SimulationEngine) {
		if log != nil {
			se.log = log
		}
	}
}

// WithRand injects the random source so runs are reproducible in tests.
func WithRand(rnd *rand.Rand) EngineOption {
	return func(se *SimulationEngine) {
		if rnd != nil {
			se.rnd = rnd
		}
	}
}

// WithEngineMetrics attaches a metrics recorder for tick timings and agent
// counts.
func WithEngineMetrics(m EngineMetricsRecorder) EngineOption {
	return func(se *SimulationEngine) {
		se.metrics = m
	}
}

// NewSimulationEngine constructs an engine over a built graph. A graph with
// zero edges yields a disabled engine: Spawn and Tick become no-ops and the
// snapshot stays empty, rather than crashing downstream.
func NewSimulationEngine(g *model.Graph, cfg MotionConfig, opts ...EngineOption) *SimulationEngine {
	se := &SimulationEngine{
		graph: g,
		cfg:   cfg,
		log:   logging.Noop(),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(se)
	}

	if g.Empty() {
		se.disabled = true
		se.log.Warn(context.Background(), "graph has no edges; simulation disabled")
	}

	empty := []model.SnapshotEntry{}
	se.snapshot.Store(&empty)
	return se
}

// Enabled reports whether the engine has a routable graph to simulate on.
func (se *SimulationEngine) Enabled() bool { return !se.disabled }

// Graph returns the engine's read-only road graph.
func (se *SimulationEngine) Graph() *model.Graph { return se.graph }

// Spawn places one agent per unit at a random position on a random edge.
// Agents are created only here, before the run; none are added or removed
// afterwards.
func (se *SimulationEngine) Spawn(units []model.Unit, baseSpeeds map[model.FleetCategory]float64) {
	if se.disabled {
		return
	}
	se.mu.Lock()
	defer se.mu.Unlock()

	for _, u := range units {
		base := baseSpeeds[u.Category]
		variance := 1 + se.cfg.SpeedVariance*(2*se.rnd.Float64()-1)
		se.agents = append(se.agents, &model.AgentState{
			ID:       uuid.NewString(),
			UnitID:   u.ID,
			Category: u.Category,
			EdgeIdx:  se.rnd.Intn(len(se.graph.Edges)),
			T:        se.rnd.Float64(),
			TowardTo: se.rnd.Intn(2) == 0,
			SpeedMPS: base * variance,
		})
	}
	se.publishLocked()

	counts := make(map[model.FleetCategory]int)
	for _, a := range se.agents {
		counts[a.Category]++
	}
	for cat, n := range counts {
		se.log.Info(context.Background(), "spawned agents",
			logging.String("category", cat.String()),
			logging.Int("count", n),
		)
	}
}

// Tick advances every agent by dt seconds and publishes a fresh snapshot.
func (se *SimulationEngine) Tick(dt float64) {
	if se.disabled {
		return
	}
	start := time.Now()

	se.mu.Lock()
	for _, a := range se.agents {
		stepAgent(se.graph, a, dt, se.rnd, se.cfg)
	}
	se.publishLocked()
	se.mu.Unlock()

	if se.metrics != nil {
		se.metrics.ObserveTickDuration(time.Since(start).Seconds())
	}
}

// publishLocked recomputes the snapshot and swaps it in. Caller holds mu.
func (se *SimulationEngine) publishLocked() {
	entries := make([]model.SnapshotEntry, 0, len(se.agents))
	counts := make(map[model.FleetCategory]int)
	for _, a := range se.agents {
		pos := AgentPosition(se.graph, a)
		entries = append(entries, model.SnapshotEntry{
			ID:     a.ID,
			Type:   a.Category.String(),
			Lat:    pos.Lat,
			Lng:    pos.Lng,
			UnitID: a.UnitID,
			Status: a.Status().String(),
		})
		counts[a.Category]++
	}
	se.snapshot.Store(&entries)

	if se.metrics != nil {
		for _, cat := range model.AllCategories() {
			se.metrics.SetAgentCount(cat.String(), counts[cat])
		}
	}
}

// Snapshot returns the latest published snapshot. Safe to call from any
// goroutine; never blocks the tick loop.
func (se *SimulationEngine) Snapshot() []model.SnapshotEntry {
	return *se.snapshot.Load()
}

// SetSteeringTargets biases idle agents toward the given points: each point
// attracts its nearest currently untargeted idle agent. An empty slice
// clears all non-dispatch steering. Fire-and-forget.
func (se *SimulationEngine) SetSteeringTargets(points []model.Point) {
	if se.disabled {
		return
	}
	se.mu.Lock()
	defer se.mu.Unlock()

	// Clear prior ambient steering; explicit dispatch orders stay.
	for _, a := range se.agents {
		if !a.Dispatched {
			a.Target = nil
			a.Holding = false
		}
	}

	for i := range points {
		p := points[i]
		var best *model.AgentState
		bestDist := 0.0
		for _, a := range se.agents {
			if a.Dispatched || a.Target != nil {
				continue
			}
			d := Haversine(AgentPosition(se.graph, a), p)
			if best == nil || d < bestDist {
				best, bestDist = a, d
			}
		}
		if best != nil {
			best.Target = &p
		}
	}
	se.publishLocked()
}

// SetDispatchTarget orders the named agents to the point. IDs may be agent
// IDs or unit IDs; unknown IDs are ignored. Fire-and-forget.
func (se *SimulationEngine) SetDispatchTarget(p model.Point, agentIDs []string) {
	if se.disabled {
		return
	}
	wanted := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		wanted[id] = true
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	for _, a := range se.agents {
		if !wanted[a.ID] && !wanted[a.UnitID] {
			continue
		}
		target := p
		a.Target = &target
		a.Dispatched = true
		a.Holding = false
		a.PauseRemaining = 0
	}
	se.publishLocked()
}

// agentStates returns a copy of the agent pointers for tests.
func (se *SimulationEngine) agentStates() []*model.AgentState {
	se.mu.Lock()
	defer se.mu.Unlock()
	out := make([]*model.AgentState, len(se.agents))
	copy(out, se.agents)
	return out
}
