package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dbbuilder-org/quento/internal/domain"
)

func TestTrackerStartsAtCore(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, domain.RingCore, tr.Phase())
}

func TestAdvanceMovesOneStepAndClampsAtOptimize(t *testing.T) {
	tr := NewTracker()

	assert.Equal(t, domain.RingDiscover, tr.Advance())
	assert.Equal(t, domain.RingPlan, tr.Advance())
	assert.Equal(t, domain.RingExecute, tr.Advance())
	assert.Equal(t, domain.RingOptimize, tr.Advance())

	// Advancing at the terminal phase is a no-op.
	assert.Equal(t, domain.RingOptimize, tr.Advance())
	assert.Equal(t, domain.RingOptimize, tr.Phase())
}

func TestSyncNeverRegresses(t *testing.T) {
	tr := NewTracker()
	tr.Load(domain.RingPlan)

	assert.Equal(t, domain.RingPlan, tr.Sync(domain.RingCore))
	assert.Equal(t, domain.RingPlan, tr.Phase())

	assert.Equal(t, domain.RingExecute, tr.Sync(domain.RingExecute))
}

func TestSyncIgnoresUnknownPhases(t *testing.T) {
	tr := NewTracker()
	tr.Load(domain.RingDiscover)

	assert.Equal(t, domain.RingDiscover, tr.Sync(domain.RingPhase("bogus")))
}

func TestLoadReplacesWholesale(t *testing.T) {
	tr := NewTracker()
	tr.Load(domain.RingOptimize)
	assert.Equal(t, domain.RingOptimize, tr.Phase())

	// A different session may legitimately be earlier.
	tr.Load(domain.RingDiscover)
	assert.Equal(t, domain.RingDiscover, tr.Phase())

	tr.Load(domain.RingPhase("bogus"))
	assert.Equal(t, domain.RingCore, tr.Phase())
}

func TestAdvanceConcurrent(t *testing.T) {
	tr := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Advance()
		}()
	}
	wg.Wait()

	// More advances than phases still clamps at the terminal phase.
	assert.Equal(t, domain.RingOptimize, tr.Phase())
}

func TestPhaseHintsFallBackToCore(t *testing.T) {
	core := PhaseHints(domain.RingCore)
	assert.NotEmpty(t, core.Title)
	assert.NotEmpty(t, core.QuickReplies)

	assert.Equal(t, core, PhaseHints(domain.RingPhase("bogus")))

	for _, p := range domain.Phases() {
		h := PhaseHints(p)
		assert.NotEmpty(t, h.Placeholder, "phase %s", p)
	}
}
