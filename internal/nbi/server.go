package nbi

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/citypulse/dispatch-twin/core"
	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/internal/observability"
	"github.com/citypulse/dispatch-twin/internal/sim/state"
	"github.com/citypulse/dispatch-twin/kb"
	"github.com/citypulse/dispatch-twin/model"
)

// Server exposes the engine's northbound contracts over JSON HTTP. It owns
// no engine state: every handler is a pure function of the TwinState handle
// it borrows per call.
type Server struct {
	state   *state.TwinState
	log     logging.Logger
	metrics *observability.EngineCollector
	tracer  trace.Tracer

	// roadsPath is the raw road GeoJSON served at /api/roads.
	roadsPath string
}

// NewServer constructs the HTTP surface over a TwinState.
func NewServer(st *state.TwinState, roadsPath string, log logging.Logger, metrics *observability.EngineCollector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		state:     st,
		log:       log,
		metrics:   metrics,
		tracer:    otel.Tracer("nbi"),
		roadsPath: roadsPath,
	}
}

// Router builds the mux router with all contracts, middleware, the metrics
// endpoint, and the websocket positions stream.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestMiddleware(s.log, s.metrics))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/positions", s.handlePositions).Methods(http.MethodGet)
	r.HandleFunc("/api/targets", s.handleTargets).Methods(http.MethodPost)
	r.HandleFunc("/api/dispatch", s.handleDispatch).Methods(http.MethodPost)
	r.HandleFunc("/api/closest", s.handleClosest).Methods(http.MethodPost)
	r.HandleFunc("/api/route", s.handleRoute).Methods(http.MethodPost)
	r.HandleFunc("/api/roads", s.handleRoads).Methods(http.MethodGet)
	r.HandleFunc("/api/roads/graph", s.handleRoadsGraph).Methods(http.MethodGet)
	r.HandleFunc("/api/incidents", s.handleOpenIncident).Methods(http.MethodPost)
	r.HandleFunc("/api/incidents", s.handleListIncidents).Methods(http.MethodGet)
	r.HandleFunc("/api/incidents/{id}", s.handleCloseIncident).Methods(http.MethodDelete)
	r.HandleFunc("/ws/positions", s.handlePositionsSocket)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"enabled": s.state.Enabled(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Positions())
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}
	for _, p := range req.Points {
		if err := validatePoint(p); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	s.state.SetSteeringTargets(req.Points)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}
	if err := validatePoint(req.Point); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.state.SetDispatchTarget(req.Point, req.UnitIDs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClosest(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "nbi.closest")
	defer span.End()

	var req closestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}
	if err := validatePoint(req.Incident); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	needed, err := parseCategories(req.NeededTypes)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ranking, err := s.state.Closest(req.Incident, needed)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if s.metrics != nil && s.metrics.RankRequests != nil {
		s.metrics.RankRequests.Inc()
	}
	span.SetAttributes(attribute.Int("needed_types", len(needed)))

	resp := closestResponse{
		Rankings:    make(map[string][]model.RankedUnit, len(ranking.PerCategory)),
		Best:        make(map[string]model.RankedUnit, len(ranking.BestPerCategory)),
		Assignments: ranking.Assignments,
		Summary:     ranking.Summary,
	}
	for cat, units := range ranking.PerCategory {
		resp.Rankings[cat.String()] = units
	}
	for cat, unit := range ranking.BestPerCategory {
		resp.Best[cat.String()] = unit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	_, span := s.tracer.Start(r.Context(), "nbi.route")
	defer span.End()

	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}
	if err := validatePoint(req.From); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := validatePoint(req.To); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cat, err := parseCategory(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.state.Route(req.From, req.To, cat)
	if errors.Is(err, core.ErrNoRoute) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.metrics != nil && s.metrics.RouteRequests != nil {
		s.metrics.RouteRequests.Inc()
	}
	span.SetAttributes(attribute.Float64("distance_m", result.DistanceM))

	writeJSON(w, http.StatusOK, routeResponse{
		Coords:     result.Coords,
		DistanceM:  result.DistanceM,
		ETASeconds: result.ETASeconds,
	})
}

// handleRoads serves the raw road geometry GeoJSON as-is; it is already
// lon-first on disk.
func (s *Server) handleRoads(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.roadsPath)
	if err != nil {
		writeError(w, http.StatusNotFound, errors.New("road geometry unavailable"))
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleRoadsGraph serves the built graph as GeoJSON. The engine stores
// lat-first; the lon-first conversion happens in the export, at this
// boundary.
func (s *Server) handleRoadsGraph(w http.ResponseWriter, r *http.Request) {
	fc := core.GraphGeoJSON(s.state.Graph())
	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleOpenIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(ErrInvalidRequest, err))
		return
	}
	loc := model.Point{Lat: req.Lat, Lng: req.Lng}
	if err := validatePoint(loc); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	inc, err := s.state.OpenIncident(r.Context(), loc, req.Category, req.Priority)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusCreated, incidentResponse{
		ID:       inc.ID,
		Lat:      inc.Location.Lat,
		Lng:      inc.Location.Lng,
		Category: inc.Category,
		Priority: inc.Priority,
	})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents := s.state.Incidents()
	out := make([]incidentResponse, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, incidentResponse{
			ID:       inc.ID,
			Lat:      inc.Location.Lat,
			Lng:      inc.Location.Lng,
			Category: inc.Category,
			Priority: inc.Priority,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCloseIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.state.CloseIncident(r.Context(), id); err != nil {
		if errors.Is(err, kb.ErrIncidentNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
