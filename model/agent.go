package model

// AgentStatus describes an agent's availability for dispatch.
type AgentStatus int

const (
	// StatusIdle means the agent is free-roaming and available.
	StatusIdle AgentStatus = iota
	// StatusEnroute means the agent is steering toward a dispatch target.
	StatusEnroute
	// StatusHolding means the agent arrived at its target and is waiting.
	StatusHolding
)

func (s AgentStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusEnroute:
		return "enroute"
	case StatusHolding:
		return "holding"
	default:
		return "unknown"
	}
}

// AgentState is one simulated vehicle. Mutated only by the simulation
// engine's tick loop or its explicit set-target calls.
type AgentState struct {
	ID       string
	UnitID   string
	Category FleetCategory

	// EdgeIdx is the index of the edge the agent is currently on.
	EdgeIdx int
	// T is the fractional position along the edge, always in [0, 1].
	T float64
	// TowardTo is true when the agent travels toward the edge's To node.
	TowardTo bool

	// SpeedMPS is the base category speed times a per-agent variance,
	// fixed at spawn.
	SpeedMPS float64

	// PauseRemaining is seconds left in an intersection pause; zero means
	// the agent is moving.
	PauseRemaining float64

	// Target, when non-nil, biases edge selection toward this coordinate.
	Target *Point
	// Dispatched marks the target as an explicit dispatch order rather
	// than ambient steering; dispatched agents are not ranked as idle.
	Dispatched bool
	// Holding is set once an ArrivalHold agent reaches its target.
	Holding bool
}

// Status derives the agent's availability from its steering fields.
func (a *AgentState) Status() AgentStatus {
	switch {
	case a.Holding:
		return StatusHolding
	case a.Dispatched:
		return StatusEnroute
	default:
		return StatusIdle
	}
}

// SnapshotEntry is the externally consumable view of one agent at one tick.
type SnapshotEntry struct {
	ID     string  `json:"id"`
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	UnitID string  `json:"unitId"`
	Status string  `json:"status"`
}
