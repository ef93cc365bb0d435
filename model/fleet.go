package model

import (
	"fmt"
	"strings"
)

// FleetCategory is the closed set of unit categories the engine simulates.
// Each category carries its own average speed; callers match exhaustively.
type FleetCategory int

const (
	CategoryPolice FleetCategory = iota
	CategoryFire
	CategoryAmbulance
)

// AllCategories lists every fleet category in declaration order.
func AllCategories() []FleetCategory {
	return []FleetCategory{CategoryPolice, CategoryFire, CategoryAmbulance}
}

func (c FleetCategory) String() string {
	switch c {
	case CategoryPolice:
		return "police"
	case CategoryFire:
		return "fire"
	case CategoryAmbulance:
		return "ambulance"
	default:
		return fmt.Sprintf("FleetCategory(%d)", int(c))
	}
}

// ParseFleetCategory maps a wire-format category name to its enum value.
func ParseFleetCategory(s string) (FleetCategory, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "police":
		return CategoryPolice, nil
	case "fire", "firetruck", "fire_truck":
		return CategoryFire, nil
	case "ambulance":
		return CategoryAmbulance, nil
	default:
		return 0, fmt.Errorf("unknown fleet category %q", s)
	}
}

// Unit is a fleet unit registered with the knowledge base. Its live position
// belongs to the simulation engine; the KB only tracks identity.
type Unit struct {
	ID       string
	CallSign string
	Category FleetCategory
}

// ArrivalPolicy decides what a steered agent does once it reaches its target.
type ArrivalPolicy int

const (
	// ArrivalHold stops the agent at the target until a new target arrives.
	ArrivalHold ArrivalPolicy = iota
	// ArrivalClear drops the target and resumes free roaming.
	ArrivalClear
	// ArrivalKeep retains the target, so the agent keeps circling near it.
	ArrivalKeep
)

func (p ArrivalPolicy) String() string {
	switch p {
	case ArrivalHold:
		return "hold"
	case ArrivalClear:
		return "clear"
	case ArrivalKeep:
		return "keep"
	default:
		return fmt.Sprintf("ArrivalPolicy(%d)", int(p))
	}
}

// ParseArrivalPolicy maps a config string to an ArrivalPolicy.
func ParseArrivalPolicy(s string) (ArrivalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hold", "":
		return ArrivalHold, nil
	case "clear":
		return ArrivalClear, nil
	case "keep":
		return ArrivalKeep, nil
	default:
		return 0, fmt.Errorf("unknown arrival policy %q", s)
	}
}
