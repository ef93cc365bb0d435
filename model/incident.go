package model

import "time"

// Incident is an externally supplied point of interest. The engine treats it
// as an opaque steering and ranking target; it never owns its lifecycle
// semantics beyond registration.
type Incident struct {
	ID        string
	Location  Point
	Category  string
	Priority  int
	CreatedAt time.Time
}

// RankedUnit is a derived, per-request value: one unit's distance and ETA to
// an incident. Never persisted.
type RankedUnit struct {
	ID         string        `json:"id"`
	Category   FleetCategory `json:"-"`
	Type       string        `json:"type"`
	DistanceM  float64       `json:"distanceM"`
	ETASeconds float64       `json:"etaSeconds"`
}
