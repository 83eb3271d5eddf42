// Package domain contains core domain types for the Quento coaching client.
package domain

// RingPhase is one of the five sequential coaching stages a conversation
// progresses through.
type RingPhase string

const (
	RingCore     RingPhase = "core"
	RingDiscover RingPhase = "discover"
	RingPlan     RingPhase = "plan"
	RingExecute  RingPhase = "execute"
	RingOptimize RingPhase = "optimize"
)

var ringOrder = [...]RingPhase{RingCore, RingDiscover, RingPlan, RingExecute, RingOptimize}

// Phases returns the five ring phases in progression order.
func Phases() []RingPhase {
	out := make([]RingPhase, len(ringOrder))
	copy(out, ringOrder[:])
	return out
}

// Ordinal returns the 1-based position of the phase in the progression,
// or 0 for an unknown phase.
func (p RingPhase) Ordinal() int {
	for i, r := range ringOrder {
		if r == p {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether p is one of the five known phases.
func (p RingPhase) Valid() bool {
	return p.Ordinal() != 0
}

// Terminal reports whether no later phase exists.
func (p RingPhase) Terminal() bool {
	return p == RingOptimize
}

// Next returns the phase one step forward. The terminal phase returns
// itself; an unknown phase returns the initial phase.
func (p RingPhase) Next() RingPhase {
	i := p.Ordinal()
	if i == 0 {
		return RingCore
	}
	if i >= len(ringOrder) {
		return RingOptimize
	}
	return ringOrder[i]
}

// Before reports whether p comes strictly earlier than other.
func (p RingPhase) Before(other RingPhase) bool {
	return p.Ordinal() < other.Ordinal()
}
