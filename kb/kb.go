package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/citypulse/dispatch-twin/model"
)

var (
	// ErrUnitExists indicates a fleet unit already exists.
	ErrUnitExists = errors.New("unit already exists")
	// ErrUnitNotFound indicates a requested unit was not found.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrIncidentExists indicates an incident already exists.
	ErrIncidentExists = errors.New("incident already exists")
	// ErrIncidentNotFound indicates a requested incident was not found.
	ErrIncidentNotFound = errors.New("incident not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventIncidentOpened EventType = iota
	EventIncidentClosed
)

// Event is emitted to subscribers when the active incident set changes.
type Event struct {
	Type     EventType
	Incident model.Incident
}

// KnowledgeBase is an in-memory, thread-safe registry of fleet units and
// active incidents. Live positions belong to the simulation engine; the KB
// only tracks identity and incident lifecycles.
type KnowledgeBase struct {
	mu sync.RWMutex

	units     map[string]*model.Unit
	incidents map[string]*model.Incident

	subs []func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		units:     make(map[string]*model.Unit),
		incidents: make(map[string]*model.Incident),
	}
}

// Subscribe registers a callback invoked on incident changes. Callbacks run
// synchronously on the mutating goroutine; keep them short.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.subs = append(kb.subs, fn)
}

// AddUnit registers a fleet unit. It returns an error if the ID exists.
func (kb *KnowledgeBase) AddUnit(u *model.Unit) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if _, exists := kb.units[u.ID]; exists {
		return fmt.Errorf("%w: %q", ErrUnitExists, u.ID)
	}
	kb.units[u.ID] = u
	return nil
}

// GetUnit returns the unit with the given ID.
func (kb *KnowledgeBase) GetUnit(id string) (*model.Unit, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	u, ok := kb.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnitNotFound, id)
	}
	return u, nil
}

// ListUnits returns all registered units, ordered by ID.
func (kb *KnowledgeBase) ListUnits() []model.Unit {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]model.Unit, 0, len(kb.units))
	for _, u := range kb.units {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenIncident registers an active incident and notifies subscribers.
func (kb *KnowledgeBase) OpenIncident(inc *model.Incident) error {
	kb.mu.Lock()
	if _, exists := kb.incidents[inc.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrIncidentExists, inc.ID)
	}
	kb.incidents[inc.ID] = inc
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventIncidentOpened, Incident: *inc})
	}
	return nil
}

// CloseIncident removes an incident and notifies subscribers.
func (kb *KnowledgeBase) CloseIncident(id string) error {
	kb.mu.Lock()
	inc, ok := kb.incidents[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrIncidentNotFound, id)
	}
	delete(kb.incidents, id)
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Type: EventIncidentClosed, Incident: *inc})
	}
	return nil
}

// GetIncident returns the active incident with the given ID.
func (kb *KnowledgeBase) GetIncident(id string) (*model.Incident, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	inc, ok := kb.incidents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrIncidentNotFound, id)
	}
	return inc, nil
}

// ListIncidents returns the active incidents, oldest first.
func (kb *KnowledgeBase) ListIncidents() []model.Incident {
	kb.mu.RLock()
	defer kb.mu.RUnlock()

	out := make([]model.Incident, 0, len(kb.incidents))
	for _, inc := range kb.incidents {
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// IncidentLocations returns the coordinates of every active incident,
// oldest first, for use as steering targets.
func (kb *KnowledgeBase) IncidentLocations() []model.Point {
	incidents := kb.ListIncidents()
	out := make([]model.Point, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, inc.Location)
	}
	return out
}
