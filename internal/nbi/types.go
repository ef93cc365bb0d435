package nbi

import "github.com/citypulse/dispatch-twin/model"

// Request/response DTOs for the JSON-over-HTTP contracts. Coordinates stay
// lat-first everywhere except the GeoJSON road endpoints.

type targetsRequest struct {
	Points []model.Point `json:"points"`
}

type dispatchRequest struct {
	Point   model.Point `json:"point"`
	UnitIDs []string    `json:"unitIds"`
}

type closestRequest struct {
	Incident    model.Point `json:"incident"`
	NeededTypes []string    `json:"neededTypes,omitempty"`
}

type closestResponse struct {
	Rankings    map[string][]model.RankedUnit `json:"rankings"`
	Best        map[string]model.RankedUnit   `json:"best"`
	Assignments []model.RankedUnit            `json:"assignments"`
	Summary     string                        `json:"summary"`
}

type routeRequest struct {
	From model.Point `json:"from"`
	To   model.Point `json:"to"`
	Type string      `json:"type"`
}

type routeResponse struct {
	Coords     []model.Point `json:"coords"`
	DistanceM  float64       `json:"distanceM"`
	ETASeconds float64       `json:"etaSeconds"`
}

type incidentRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Category string  `json:"category,omitempty"`
	Priority int     `json:"priority,omitempty"`
}

type incidentResponse struct {
	ID       string  `json:"id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Category string  `json:"category,omitempty"`
	Priority int     `json:"priority,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
