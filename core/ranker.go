package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/citypulse/dispatch-twin/model"
)

// RankerConfig tunes proximity ranking output.
type RankerConfig struct {
	// TopNPerCategory bounds the ranked list returned per category.
	TopNPerCategory int
}

// DefaultRankerConfig returns the documented ranking defaults.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{TopNPerCategory: 3}
}

// Ranking is the result of one proximity-ranking request. It is derived
// entirely from a snapshot: computing it never mutates agent state, and the
// assignment is advisory, not a commitment.
type Ranking struct {
	// PerCategory holds up to TopNPerCategory units per category, sorted
	// non-decreasing by distance.
	PerCategory map[model.FleetCategory][]model.RankedUnit
	// Assignments is the flat greedy assignment for the requested needed
	// categories, in request order. No unit appears twice.
	Assignments []model.RankedUnit
	// BestPerCategory maps each category with at least one idle unit to
	// its closest one.
	BestPerCategory map[model.FleetCategory]model.RankedUnit
	// Summary is a human-readable digest for external assessment.
	Summary string
}

// RankProximity filters the snapshot to idle agents, ranks them by
// great-circle distance to the incident within each category, and greedily
// assigns units to the needed categories in order.
func RankProximity(incident model.Point, snapshot []model.SnapshotEntry, speeds map[model.FleetCategory]float64, needed []model.FleetCategory, cfg RankerConfig) *Ranking {
	if cfg.TopNPerCategory <= 0 {
		cfg.TopNPerCategory = DefaultRankerConfig().TopNPerCategory
	}

	ranked := make(map[model.FleetCategory][]model.RankedUnit)
	for _, entry := range snapshot {
		if entry.Status != model.StatusIdle.String() {
			continue
		}
		cat, err := model.ParseFleetCategory(entry.Type)
		if err != nil {
			continue
		}
		dist := Haversine(model.Point{Lat: entry.Lat, Lng: entry.Lng}, incident)
		eta := 0.0
		if speed := speeds[cat]; speed > 0 {
			eta = dist / speed
		}
		ranked[cat] = append(ranked[cat], model.RankedUnit{
			ID:         entry.UnitID,
			Category:   cat,
			Type:       cat.String(),
			DistanceM:  dist,
			ETASeconds: eta,
		})
	}

	for cat := range ranked {
		units := ranked[cat]
		sort.Slice(units, func(i, j int) bool {
			return units[i].DistanceM < units[j].DistanceM
		})
	}

	result := &Ranking{
		PerCategory:     make(map[model.FleetCategory][]model.RankedUnit),
		BestPerCategory: make(map[model.FleetCategory]model.RankedUnit),
	}
	for cat, units := range ranked {
		top := units
		if len(top) > cfg.TopNPerCategory {
			top = top[:cfg.TopNPerCategory]
		}
		result.PerCategory[cat] = top
		result.BestPerCategory[cat] = units[0]
	}

	// Greedy assignment: consume each category's sorted list in order,
	// advancing a per-category cursor so no unit is assigned twice.
	cursors := make(map[model.FleetCategory]int)
	for _, cat := range needed {
		i := cursors[cat]
		if i >= len(ranked[cat]) {
			continue
		}
		result.Assignments = append(result.Assignments, ranked[cat][i])
		cursors[cat] = i + 1
	}

	result.Summary = summarize(result)
	return result
}

// summarize renders the ranking as prose for the external call-assessment
// collaborator.
func summarize(r *Ranking) string {
	var b strings.Builder
	for _, cat := range model.AllCategories() {
		units := r.PerCategory[cat]
		if len(units) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Nearest %s:", cat)
		for i, u := range units {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s at %.0f m (ETA %.0f s)", u.ID, u.DistanceM, u.ETASeconds)
		}
		b.WriteString(".")
	}
	if b.Len() == 0 {
		return "No idle units available."
	}
	return b.String()
}
