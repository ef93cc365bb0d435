package model

import "testing"

func TestParseFleetCategory(t *testing.T) {
	cases := []struct {
		in   string
		want FleetCategory
	}{
		{"police", CategoryPolice},
		{"POLICE", CategoryPolice},
		{" fire ", CategoryFire},
		{"firetruck", CategoryFire},
		{"fire_truck", CategoryFire},
		{"ambulance", CategoryAmbulance},
	}
	for _, tc := range cases {
		got, err := ParseFleetCategory(tc.in)
		if err != nil {
			t.Fatalf("ParseFleetCategory(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseFleetCategory(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseFleetCategory("helicopter"); err == nil {
		t.Fatalf("ParseFleetCategory accepted an unknown category")
	}
}

func TestFleetCategoryRoundTrip(t *testing.T) {
	for _, cat := range AllCategories() {
		parsed, err := ParseFleetCategory(cat.String())
		if err != nil {
			t.Fatalf("round trip of %v failed: %v", cat, err)
		}
		if parsed != cat {
			t.Fatalf("round trip of %v = %v", cat, parsed)
		}
	}
}

func TestParseArrivalPolicy(t *testing.T) {
	cases := []struct {
		in   string
		want ArrivalPolicy
	}{
		{"", ArrivalHold}, // unset config defaults to hold
		{"hold", ArrivalHold},
		{"CLEAR", ArrivalClear},
		{" keep ", ArrivalKeep},
	}
	for _, tc := range cases {
		got, err := ParseArrivalPolicy(tc.in)
		if err != nil {
			t.Fatalf("ParseArrivalPolicy(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseArrivalPolicy(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseArrivalPolicy("loiter"); err == nil {
		t.Fatalf("ParseArrivalPolicy accepted an unknown policy")
	}
}

func TestAgentStatusDerivation(t *testing.T) {
	target := Point{Lat: 37.78, Lng: -122.42}

	idle := &AgentState{}
	if idle.Status() != StatusIdle {
		t.Fatalf("fresh agent status = %v, want idle", idle.Status())
	}

	steered := &AgentState{Target: &target}
	if steered.Status() != StatusIdle {
		t.Fatalf("ambiently steered agent status = %v, want idle", steered.Status())
	}

	dispatched := &AgentState{Target: &target, Dispatched: true}
	if dispatched.Status() != StatusEnroute {
		t.Fatalf("dispatched agent status = %v, want enroute", dispatched.Status())
	}

	holding := &AgentState{Target: &target, Dispatched: true, Holding: true}
	if holding.Status() != StatusHolding {
		t.Fatalf("arrived agent status = %v, want holding", holding.Status())
	}
}
