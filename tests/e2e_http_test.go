package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/citypulse/dispatch-twin/core"
	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/internal/nbi"
	sim "github.com/citypulse/dispatch-twin/internal/sim/state"
	"github.com/citypulse/dispatch-twin/kb"
	"github.com/citypulse/dispatch-twin/model"
	"github.com/citypulse/dispatch-twin/timectrl"
)

type twinTestEnv struct {
	graph      *model.Graph
	engine     *core.SimulationEngine
	state      *sim.TwinState
	controller *timectrl.TimeController
	server     *httptest.Server
	client     *http.Client
}

// newTwinTestEnv boots the whole stack in-process: a small street grid, a
// three-unit fleet, the tick loop in accelerated mode, and the HTTP surface
// on an ephemeral listener.
func newTwinTestEnv(t *testing.T) *twinTestEnv {
	t.Helper()

	// Two parallel east-west streets joined by a north-south cross street.
	const stepDeg = 0.0001
	lineAt := func(lat float64) []model.Point {
		line := make([]model.Point, 0, 31)
		for i := 0; i <= 30; i++ {
			line = append(line, model.Point{Lat: lat, Lng: -122.4194 + float64(i)*stepDeg})
		}
		return line
	}
	// The cross street shares its endpoints with the streets' west ends,
	// so the whole grid is one connected component.
	cross := []model.Point{
		{Lat: 37.7749, Lng: -122.4194},
		{Lat: 37.7759, Lng: -122.4194},
	}
	g := core.BuildGraph(context.Background(),
		[][]model.Point{lineAt(37.7749), lineAt(37.7759), cross},
		core.DefaultBuildConfig(), logging.Noop())
	if g.Empty() {
		t.Fatalf("street grid build produced an empty graph")
	}

	motion := core.DefaultMotionConfig()
	motion.PauseProbability = 0
	engine := core.NewSimulationEngine(g, motion,
		core.WithRand(rand.New(rand.NewSource(1234))),
	)

	fleet := kb.NewKnowledgeBase()
	units := []model.Unit{
		{ID: "unit-police-1", CallSign: "POLICE-1", Category: model.CategoryPolice},
		{ID: "unit-fire-1", CallSign: "FIRE-1", Category: model.CategoryFire},
		{ID: "unit-ambulance-1", CallSign: "AMBULANCE-1", Category: model.CategoryAmbulance},
	}
	for i := range units {
		if err := fleet.AddUnit(&units[i]); err != nil {
			t.Fatalf("AddUnit(%s): %v", units[i].ID, err)
		}
	}
	speeds := map[model.FleetCategory]float64{
		model.CategoryPolice:    16,
		model.CategoryFire:      12,
		model.CategoryAmbulance: 14,
	}
	engine.Spawn(units, speeds)

	state := sim.New(g, engine,
		core.NewRouter(g, core.DefaultRouterConfig()),
		fleet, speeds)

	controller := timectrl.NewTimeController(time.Now(), 100*time.Millisecond, timectrl.Accelerated)
	controller.AddListener(func(_ time.Time, dt time.Duration) {
		engine.Tick(dt.Seconds())
	})

	server := httptest.NewServer(nbi.NewServer(state, "", logging.Noop(), nil).Router())

	env := &twinTestEnv{
		graph:      g,
		engine:     engine,
		state:      state,
		controller: controller,
		server:     server,
		client:     server.Client(),
	}
	t.Cleanup(func() {
		controller.Stop()
		server.Close()
	})
	return env
}

func (env *twinTestEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal %s body: %v", path, err)
	}
	resp, err := env.client.Post(env.server.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (env *twinTestEnv) get(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := env.client.Get(env.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s = %d, want 200", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode GET %s: %v", path, err)
		}
	}
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// Full dispatch flow: positions move under the tick loop, an incident ranks
// the idle fleet, the best unit is dispatched, and the dispatched unit drops
// out of subsequent rankings.
func TestEndToEndDispatchFlow(t *testing.T) {
	env := newTwinTestEnv(t)

	// Drive 50 simulated ticks (5 simulated seconds) and confirm motion.
	var before []model.SnapshotEntry
	env.get(t, "/api/positions", &before)
	if len(before) != 3 {
		t.Fatalf("fleet snapshot has %d entries, want 3", len(before))
	}

	done := env.controller.Start(5 * time.Second)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("tick loop did not finish 5 simulated seconds in time")
	}

	var after []model.SnapshotEntry
	env.get(t, "/api/positions", &after)
	moved := false
	for i := range after {
		if after[i].Lat != before[i].Lat || after[i].Lng != before[i].Lng {
			moved = true
			break
		}
	}
	if !moved {
		t.Fatalf("no agent moved across 5 simulated seconds")
	}

	// Rank the fleet around an incident on the western corner.
	incident := map[string]any{
		"incident":    map[string]float64{"lat": 37.7749, "lng": -122.4194},
		"neededTypes": []string{"police", "ambulance"},
	}
	resp := env.post(t, "/api/closest", incident)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/closest = %d, want 200", resp.StatusCode)
	}
	var ranking struct {
		Rankings    map[string][]model.RankedUnit `json:"rankings"`
		Assignments []model.RankedUnit            `json:"assignments"`
		Summary     string                        `json:"summary"`
	}
	decodeJSON(t, resp, &ranking)
	if len(ranking.Assignments) != 2 {
		t.Fatalf("assignments = %v, want police + ambulance", ranking.Assignments)
	}
	if ranking.Summary == "" {
		t.Fatalf("ranking summary is empty")
	}

	// Dispatch the assigned police unit and verify it leaves the idle pool.
	assigned := ranking.Assignments[0]
	resp = env.post(t, "/api/dispatch", map[string]any{
		"point":   map[string]float64{"lat": 37.7749, "lng": -122.4194},
		"unitIds": []string{assigned.ID},
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("POST /api/dispatch = %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = env.post(t, "/api/closest", incident)
	var rankingAfter struct {
		Rankings map[string][]model.RankedUnit `json:"rankings"`
	}
	decodeJSON(t, resp, &rankingAfter)
	for _, u := range rankingAfter.Rankings["police"] {
		if u.ID == assigned.ID {
			t.Fatalf("dispatched unit %s still ranked as idle", assigned.ID)
		}
	}
}

// Opening an incident re-steers idle agents; closing it releases them; the
// route endpoint returns a drivable path between two graph corners.
func TestEndToEndIncidentsAndRouting(t *testing.T) {
	env := newTwinTestEnv(t)

	resp := env.post(t, "/api/incidents", map[string]any{
		"lat": 37.7759, "lng": -122.4179, "category": "fire", "priority": 1,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/incidents = %d, want 201", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &created)
	if created.ID == "" {
		t.Fatalf("incident created without an ID")
	}

	var incidents []struct {
		ID string `json:"id"`
	}
	env.get(t, "/api/incidents", &incidents)
	if len(incidents) != 1 || incidents[0].ID != created.ID {
		t.Fatalf("incident list = %v", incidents)
	}

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+"/api/incidents/"+created.ID, nil)
	if err != nil {
		t.Fatalf("build DELETE request: %v", err)
	}
	delResp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("DELETE incident: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE incident = %d, want 204", delResp.StatusCode)
	}

	// Route across the grid: east end of the south street to the east end
	// of the north street, forced through the western cross street.
	resp = env.post(t, "/api/route", map[string]any{
		"from": map[string]float64{"lat": 37.7749, "lng": -122.4164},
		"to":   map[string]float64{"lat": 37.7759, "lng": -122.4164},
		"type": "fire",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /api/route = %d, want 200", resp.StatusCode)
	}
	var route struct {
		Coords     []model.Point `json:"coords"`
		DistanceM  float64       `json:"distanceM"`
		ETASeconds float64       `json:"etaSeconds"`
	}
	decodeJSON(t, resp, &route)
	if len(route.Coords) < 3 {
		t.Fatalf("route has %d coords, want a multi-segment path", len(route.Coords))
	}
	if route.DistanceM <= 0 || route.ETASeconds <= 0 {
		t.Fatalf("route distance/eta = %v/%v", route.DistanceM, route.ETASeconds)
	}
	straight := core.Haversine(
		model.Point{Lat: 37.7749, Lng: -122.4164},
		model.Point{Lat: 37.7759, Lng: -122.4164},
	)
	if route.DistanceM < straight-1e-6 {
		t.Fatalf("road distance %.1f undercuts straight-line %.1f", route.DistanceM, straight)
	}
}
