package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingPhaseOrdinal(t *testing.T) {
	assert.Equal(t, 1, RingCore.Ordinal())
	assert.Equal(t, 5, RingOptimize.Ordinal())
	assert.Equal(t, 0, RingPhase("bogus").Ordinal())
}

func TestRingPhaseNext(t *testing.T) {
	assert.Equal(t, RingDiscover, RingCore.Next())
	assert.Equal(t, RingPlan, RingDiscover.Next())
	assert.Equal(t, RingExecute, RingPlan.Next())
	assert.Equal(t, RingOptimize, RingExecute.Next())

	// Terminal phase clamps.
	assert.Equal(t, RingOptimize, RingOptimize.Next())

	// Unknown phases restart the progression.
	assert.Equal(t, RingCore, RingPhase("bogus").Next())
}

func TestRingPhaseBefore(t *testing.T) {
	assert.True(t, RingCore.Before(RingDiscover))
	assert.False(t, RingDiscover.Before(RingDiscover))
	assert.False(t, RingOptimize.Before(RingCore))
}

func TestPhasesOrder(t *testing.T) {
	want := []RingPhase{RingCore, RingDiscover, RingPlan, RingExecute, RingOptimize}
	assert.Equal(t, want, Phases())
}
