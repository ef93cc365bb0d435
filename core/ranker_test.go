package core

import (
	"math"
	"strings"
	"testing"

	"github.com/citypulse/dispatch-twin/model"
)

// rankSnapshot places idle units at increasing distances north of the
// incident point.
func rankSnapshot(incident model.Point, category model.FleetCategory, ids ...string) []model.SnapshotEntry {
	entries := make([]model.SnapshotEntry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, model.SnapshotEntry{
			ID:     id + "-agent",
			Type:   category.String(),
			Lat:    incident.Lat + float64(i+1)*0.001,
			Lng:    incident.Lng,
			UnitID: id,
			Status: "idle",
		})
	}
	return entries
}

var rankIncident = model.Point{Lat: 37.7749, Lng: -122.4194}

func TestRankProximitySortedByDistance(t *testing.T) {
	// Shuffled input order; ranking must come back sorted.
	snapshot := rankSnapshot(rankIncident, model.CategoryPolice, "p3", "p1", "p4", "p2")
	snapshot[0], snapshot[2] = snapshot[2], snapshot[0]

	speeds := map[model.FleetCategory]float64{model.CategoryPolice: 16}
	r := RankProximity(rankIncident, snapshot, speeds, nil, DefaultRankerConfig())

	units := r.PerCategory[model.CategoryPolice]
	if len(units) != 3 {
		t.Fatalf("got %d ranked units, want top 3", len(units))
	}
	for i := 1; i < len(units); i++ {
		if units[i].DistanceM < units[i-1].DistanceM {
			t.Fatalf("ranking not sorted: %v", units)
		}
	}

	best := r.BestPerCategory[model.CategoryPolice]
	if best.ID != units[0].ID {
		t.Fatalf("BestPerCategory = %s, want head of ranking %s", best.ID, units[0].ID)
	}
}

// ETA must be distance over the category speed, so it grows with distance.
func TestRankProximityETAMonotone(t *testing.T) {
	snapshot := rankSnapshot(rankIncident, model.CategoryAmbulance, "a1", "a2", "a3")
	speeds := map[model.FleetCategory]float64{model.CategoryAmbulance: 14}

	r := RankProximity(rankIncident, snapshot, speeds, nil, DefaultRankerConfig())
	units := r.PerCategory[model.CategoryAmbulance]
	for i, u := range units {
		if want := u.DistanceM / 14; math.Abs(u.ETASeconds-want) > 1e-9 {
			t.Fatalf("unit %d ETA = %v, want %v", i, u.ETASeconds, want)
		}
		if i > 0 && u.ETASeconds < units[i-1].ETASeconds {
			t.Fatalf("ETA not monotone with distance: %v", units)
		}
	}
}

func TestRankProximityExcludesBusyUnits(t *testing.T) {
	snapshot := rankSnapshot(rankIncident, model.CategoryFire, "f1", "f2", "f3")
	snapshot[0].Status = "enroute"
	snapshot[1].Status = "holding"

	speeds := map[model.FleetCategory]float64{model.CategoryFire: 12}
	r := RankProximity(rankIncident, snapshot, speeds, nil, DefaultRankerConfig())

	units := r.PerCategory[model.CategoryFire]
	if len(units) != 1 || units[0].ID != "f3" {
		t.Fatalf("expected only the idle unit f3, got %v", units)
	}
}

// Asking for the same category twice must hand out two different units.
func TestRankProximityAssignmentsUnique(t *testing.T) {
	snapshot := append(
		rankSnapshot(rankIncident, model.CategoryPolice, "p1", "p2", "p3"),
		rankSnapshot(rankIncident, model.CategoryAmbulance, "a1")...,
	)
	speeds := map[model.FleetCategory]float64{
		model.CategoryPolice:    16,
		model.CategoryAmbulance: 14,
	}
	needed := []model.FleetCategory{
		model.CategoryPolice,
		model.CategoryAmbulance,
		model.CategoryPolice,
	}

	r := RankProximity(rankIncident, snapshot, speeds, needed, DefaultRankerConfig())
	if len(r.Assignments) != 3 {
		t.Fatalf("got %d assignments, want 3", len(r.Assignments))
	}

	seen := make(map[string]bool)
	for _, u := range r.Assignments {
		if seen[u.ID] {
			t.Fatalf("unit %s assigned twice", u.ID)
		}
		seen[u.ID] = true
	}
	if r.Assignments[0].ID != "p1" || r.Assignments[1].ID != "a1" || r.Assignments[2].ID != "p2" {
		t.Fatalf("assignment order = %v, want [p1 a1 p2]", r.Assignments)
	}
}

// Assignment consumes the full ranked list, not just the displayed top N.
func TestRankProximityAssignmentBeyondTopN(t *testing.T) {
	snapshot := rankSnapshot(rankIncident, model.CategoryPolice, "p1", "p2", "p3", "p4")
	speeds := map[model.FleetCategory]float64{model.CategoryPolice: 16}
	needed := []model.FleetCategory{
		model.CategoryPolice, model.CategoryPolice,
		model.CategoryPolice, model.CategoryPolice,
	}

	cfg := RankerConfig{TopNPerCategory: 2}
	r := RankProximity(rankIncident, snapshot, speeds, needed, cfg)

	if len(r.PerCategory[model.CategoryPolice]) != 2 {
		t.Fatalf("displayed list has %d units, want top 2", len(r.PerCategory[model.CategoryPolice]))
	}
	if len(r.Assignments) != 4 {
		t.Fatalf("got %d assignments, want all 4 idle units", len(r.Assignments))
	}
	if r.Assignments[3].ID != "p4" {
		t.Fatalf("fourth assignment = %s, want p4", r.Assignments[3].ID)
	}
}

func TestRankProximityExhaustedCategorySkipped(t *testing.T) {
	snapshot := rankSnapshot(rankIncident, model.CategoryFire, "f1")
	speeds := map[model.FleetCategory]float64{model.CategoryFire: 12}
	needed := []model.FleetCategory{model.CategoryFire, model.CategoryFire}

	r := RankProximity(rankIncident, snapshot, speeds, needed, DefaultRankerConfig())
	if len(r.Assignments) != 1 {
		t.Fatalf("got %d assignments with one idle unit, want 1", len(r.Assignments))
	}
}

func TestRankProximitySummary(t *testing.T) {
	speeds := map[model.FleetCategory]float64{model.CategoryPolice: 16}

	r := RankProximity(rankIncident, nil, speeds, nil, DefaultRankerConfig())
	if r.Summary != "No idle units available." {
		t.Fatalf("empty summary = %q", r.Summary)
	}

	snapshot := rankSnapshot(rankIncident, model.CategoryPolice, "p1")
	r = RankProximity(rankIncident, snapshot, speeds, nil, DefaultRankerConfig())
	if !strings.Contains(r.Summary, "Nearest police:") || !strings.Contains(r.Summary, "p1") {
		t.Fatalf("summary missing ranking prose: %q", r.Summary)
	}
}
