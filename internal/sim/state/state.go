package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citypulse/dispatch-twin/core"
	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/kb"
	"github.com/citypulse/dispatch-twin/model"
)

// Re-export KB sentinel errors so callers can depend on state.* instead of
// kb.* directly if they want to.
var (
	// ErrUnitNotFound indicates a requested unit was not found.
	ErrUnitNotFound = kb.ErrUnitNotFound
	// ErrIncidentNotFound indicates a requested incident was not found.
	ErrIncidentNotFound = kb.ErrIncidentNotFound
	// ErrEngineDisabled indicates the engine has no routable graph.
	ErrEngineDisabled = errors.New("engine disabled: no routable graph")
)

// TwinState is the explicit service object owning the digital twin's major
// components: the immutable GraphStore, the mutable simulation engine, the
// fleet/incident knowledge base, and the stateless router. It is constructed
// once at startup and passed by handle into every request handler; there is
// no ambient global state.
type TwinState struct {
	graph  *model.Graph
	engine *core.SimulationEngine
	router *core.Router
	fleet  *kb.KnowledgeBase

	baseSpeeds map[model.FleetCategory]float64
	rankerCfg  core.RankerConfig

	log     logging.Logger
	metrics GraphMetricsRecorder
}

// GraphMetricsRecorder receives the loaded graph's size for gauge export.
type GraphMetricsRecorder interface {
	SetGraphCounts(nodes, edges int)
}

// Option customises TwinState construction.
type Option func(*TwinState)

// WithLogger attaches a structured logger for state-level events.
func WithLogger(log logging.Logger) Option {
	return func(s *TwinState) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGraphMetrics attaches an optional recorder for graph-size gauges.
func WithGraphMetrics(m GraphMetricsRecorder) Option {
	return func(s *TwinState) {
		s.metrics = m
	}
}

// WithRankerConfig overrides the default proximity-ranking tunables.
func WithRankerConfig(cfg core.RankerConfig) Option {
	return func(s *TwinState) {
		s.rankerCfg = cfg
	}
}

// New wires the twin's components together. The engine and router must have
// been built over the same graph. Incident changes in the KB re-steer the
// engine automatically.
func New(g *model.Graph, engine *core.SimulationEngine, router *core.Router, fleet *kb.KnowledgeBase, baseSpeeds map[model.FleetCategory]float64, opts ...Option) *TwinState {
	s := &TwinState{
		graph:      g,
		engine:     engine,
		router:     router,
		fleet:      fleet,
		baseSpeeds: baseSpeeds,
		rankerCfg:  core.DefaultRankerConfig(),
		log:        logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics != nil {
		s.metrics.SetGraphCounts(len(g.Nodes), len(g.Edges))
	}

	// Keep ambient steering in sync with the active incident set.
	fleet.Subscribe(func(kb.Event) {
		s.engine.SetSteeringTargets(s.fleet.IncidentLocations())
	})

	return s
}

// Enabled reports whether the twin has a routable graph.
func (s *TwinState) Enabled() bool { return s.engine.Enabled() }

// Graph returns the read-only road graph.
func (s *TwinState) Graph() *model.Graph { return s.graph }

// Positions returns the latest published agent snapshot.
func (s *TwinState) Positions() []model.SnapshotEntry {
	return s.engine.Snapshot()
}

// SetSteeringTargets forwards ambient steering points to the engine.
// Fire-and-forget.
func (s *TwinState) SetSteeringTargets(points []model.Point) {
	s.engine.SetSteeringTargets(points)
}

// SetDispatchTarget orders the named agents to a point. Fire-and-forget.
func (s *TwinState) SetDispatchTarget(p model.Point, agentIDs []string) {
	s.engine.SetDispatchTarget(p, agentIDs)
}

// Closest ranks idle agents by proximity to the incident and greedily
// assigns the needed categories. Advisory only: no agent state changes.
func (s *TwinState) Closest(incident model.Point, needed []model.FleetCategory) (*core.Ranking, error) {
	if !s.engine.Enabled() {
		return nil, ErrEngineDisabled
	}
	return core.RankProximity(incident, s.engine.Snapshot(), s.baseSpeeds, needed, s.rankerCfg), nil
}

// Route computes a best-effort road path at the category's base speed.
func (s *TwinState) Route(from, to model.Point, category model.FleetCategory) (*core.RouteResult, error) {
	speed := s.baseSpeeds[category]
	return s.router.Route(from, to, speed)
}

// Units lists the registered fleet.
func (s *TwinState) Units() []model.Unit { return s.fleet.ListUnits() }

// OpenIncident registers an incident, generating an ID when absent, and
// returns the stored record. Registration re-steers idle agents toward the
// active incident set.
func (s *TwinState) OpenIncident(ctx context.Context, location model.Point, category string, priority int) (*model.Incident, error) {
	if !s.engine.Enabled() {
		return nil, ErrEngineDisabled
	}
	inc := &model.Incident{
		ID:        uuid.NewString(),
		Location:  location,
		Category:  category,
		Priority:  priority,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.fleet.OpenIncident(inc); err != nil {
		return nil, fmt.Errorf("open incident: %w", err)
	}
	s.log.Info(ctx, "incident opened",
		logging.String("incident_id", inc.ID),
		logging.String("category", category),
		logging.Float64("lat", location.Lat),
		logging.Float64("lng", location.Lng),
	)
	return inc, nil
}

// CloseIncident removes an incident and re-steers.
func (s *TwinState) CloseIncident(ctx context.Context, id string) error {
	if err := s.fleet.CloseIncident(id); err != nil {
		return err
	}
	s.log.Info(ctx, "incident closed", logging.String("incident_id", id))
	return nil
}

// Incidents lists the active incidents, oldest first.
func (s *TwinState) Incidents() []model.Incident { return s.fleet.ListIncidents() }
