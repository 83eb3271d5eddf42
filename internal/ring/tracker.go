// Package ring implements the five-phase coaching progression shared by the
// session, analysis and action managers.
package ring

import (
	"log/slog"
	"sync"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// Tracker holds the ring phase of the current session. The phase is
// monotonically non-decreasing for a given session: Advance moves exactly
// one step forward and Sync never regresses below a server-confirmed phase.
// Switching to a different session goes through Load, which replaces the
// phase wholesale.
type Tracker struct {
	mu    sync.RWMutex
	phase domain.RingPhase
}

// NewTracker returns a tracker at the initial core phase.
func NewTracker() *Tracker {
	return &Tracker{phase: domain.RingCore}
}

// Phase returns the current ring phase.
func (t *Tracker) Phase() domain.RingPhase {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.phase
}

// Advance moves the phase exactly one step forward, clamped at optimize.
// Calling Advance at the terminal phase is a no-op. The resulting phase is
// returned.
func (t *Tracker) Advance() domain.RingPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase.Terminal() {
		return t.phase
	}
	t.phase = t.phase.Next()
	slog.Info("Ring phase advanced", "phase", t.phase)
	return t.phase
}

// Sync reconciles the local phase with a server-confirmed phase for the
// same session. The local phase only moves forward; a server report earlier
// than the local phase is ignored. Unknown phases are ignored.
func (t *Tracker) Sync(server domain.RingPhase) domain.RingPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !server.Valid() {
		return t.phase
	}
	if t.phase.Before(server) {
		t.phase = server
		slog.Info("Ring phase synced from server", "phase", t.phase)
	}
	return t.phase
}

// Load replaces the phase wholesale when jumping into a different session.
// Unknown phases reset to core.
func (t *Tracker) Load(phase domain.RingPhase) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !phase.Valid() {
		phase = domain.RingCore
	}
	t.phase = phase
}
