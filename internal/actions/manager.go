// Package actions owns a strategy's action items and applies user status
// changes optimistically: the in-memory item updates immediately, the
// change round-trips to the server, and a remote failure rolls the item
// back to its prior status. It also drives strategy generation, which is a
// polled long-running job.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dbbuilder-org/quento/internal/api"
	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/poller"
)

// ErrNoStrategy is returned by operations that need a loaded strategy.
var ErrNoStrategy = errors.New("no strategy loaded")

// ErrUnknownAction is returned when an action id is not in the strategy.
var ErrUnknownAction = errors.New("unknown action item")

// UpdateFailedError reports a reverted optimistic change: the item is back
// at Reverted and the remote failure is in Err.
type UpdateFailedError struct {
	ActionID string
	Reverted domain.ActionStatus
	Err      error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("action %s update failed, reverted to %s: %v", e.ActionID, e.Reverted, e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// Gateway is the slice of the API client the manager depends on.
type Gateway interface {
	GenerateStrategy(ctx context.Context, req api.GenerateStrategyRequest) (*domain.Strategy, error)
	GetStrategy(ctx context.Context, id string) (*domain.Strategy, error)
	ListStrategies(ctx context.Context, limit, offset int) ([]domain.Strategy, *api.Pagination, error)
	UpdateAction(ctx context.Context, actionID string, status domain.ActionStatus, notes string) (*domain.ActionItem, error)
	BatchUpdateActions(ctx context.Context, updates []api.ActionUpdate) ([]domain.ActionItem, error)
	ExportStrategy(ctx context.Context, id, format string, sections []string) (*api.ExportResult, error)
}

// Saver persists the last strategy snapshot across restarts.
type Saver interface {
	SaveStrategySnapshot(ctx context.Context, strategy *domain.Strategy) error
}

// Manager owns the Strategy aggregate for the process lifetime. All item
// mutation goes through this manager; there is no external writer.
type Manager struct {
	gw     Gateway
	poll   poller.Config
	repo   Saver // optional
	logger *slog.Logger

	mu       sync.Mutex
	strategy *domain.Strategy
	lastErr  error
}

// NewManager creates an action tracking manager. poll's zero value uses the
// poller defaults; repo and logger may be nil.
func NewManager(gw Gateway, poll poller.Config, repo Saver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{gw: gw, poll: poll, repo: repo, logger: logger}
}

// Strategy returns a deep snapshot of the current strategy, or nil.
func (m *Manager) Strategy() *domain.Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Err returns the manager's last error, or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Generate asks the server for a strategy keyed to an analysis and polls
// until generation finishes. onProgress is optional.
func (m *Manager) Generate(ctx context.Context, analysisID, sessionID string, onProgress func(progress int, step string)) (*domain.Strategy, error) {
	st, err := m.gw.GenerateStrategy(ctx, api.GenerateStrategyRequest{
		AnalysisID: analysisID,
		SessionID:  sessionID,
	})
	if err != nil {
		m.setErr(err)
		return nil, fmt.Errorf("generate strategy: %w", err)
	}

	if st.Status.Generating() {
		st, err = m.awaitGeneration(ctx, st.ID, onProgress)
		if err != nil {
			m.setErr(err)
			return nil, err
		}
	}

	m.install(ctx, st)
	m.logger.Info("Strategy ready", "strategy_id", st.ID, "actions", len(st.ActionItems))
	return m.Strategy(), nil
}

// awaitGeneration polls the strategy until its status leaves generating.
// The service exposes no separate job-status endpoint for generation, so
// the strategy itself is the poll target.
func (m *Manager) awaitGeneration(ctx context.Context, id string, onProgress func(progress int, step string)) (*domain.Strategy, error) {
	var latest *domain.Strategy

	check := func(ctx context.Context) (poller.Snapshot, error) {
		st, err := m.gw.GetStrategy(ctx, id)
		if err != nil {
			return poller.Snapshot{}, err
		}
		latest = st
		done := !st.Status.Generating()
		progress := 50
		if done {
			progress = 100
		}
		return poller.Snapshot{
			Done:     done,
			Progress: progress,
			Step:     string(st.Status),
		}, nil
	}

	fetch := func(ctx context.Context) (*domain.Strategy, error) {
		return latest, nil
	}

	return poller.WaitFor(ctx, m.poll, check, fetch, onProgress)
}

// Load replaces the in-memory strategy from the server's canonical record.
func (m *Manager) Load(ctx context.Context, id string) (*domain.Strategy, error) {
	st, err := m.gw.GetStrategy(ctx, id)
	if err != nil {
		m.setErr(err)
		return nil, fmt.Errorf("load strategy %s: %w", id, err)
	}
	m.install(ctx, st)
	return m.Strategy(), nil
}

// List returns a page of the user's strategies.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]domain.Strategy, error) {
	items, _, err := m.gw.ListStrategies(ctx, limit, offset)
	return items, err
}

// UpdateStatus applies newStatus to the item immediately, submits the
// change, and reconciles with the server's resolved item (which may carry a
// different status or a completed_at stamp). On remote failure the item
// reverts to its prior status and an UpdateFailedError is returned;
// optimistic updates never persist silently on failure.
func (m *Manager) UpdateStatus(ctx context.Context, actionID string, newStatus domain.ActionStatus, notes string) (*domain.ActionItem, error) {
	m.mu.Lock()
	if m.strategy == nil {
		m.mu.Unlock()
		return nil, ErrNoStrategy
	}
	item := m.strategy.Action(actionID)
	if item == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	prior := item.Status
	item.Status = newStatus
	m.mu.Unlock()

	resolved, err := m.gw.UpdateAction(ctx, actionID, newStatus, notes)
	if err != nil {
		m.mu.Lock()
		if item := m.strategy.Action(actionID); item != nil {
			item.Status = prior
		}
		m.lastErr = err
		m.mu.Unlock()
		m.logger.Warn("Action update reverted", "action_id", actionID, "status", prior, "error", err)
		return nil, &UpdateFailedError{ActionID: actionID, Reverted: prior, Err: err}
	}

	m.mu.Lock()
	if item := m.strategy.Action(actionID); item != nil {
		*item = *resolved
	}
	m.lastErr = nil
	out := *resolved
	m.mu.Unlock()

	m.persist(ctx)
	return &out, nil
}

// CycleStatus advances an item one step around the tap-to-advance rotation
// and round-trips the change like UpdateStatus.
func (m *Manager) CycleStatus(ctx context.Context, actionID string) (*domain.ActionItem, error) {
	m.mu.Lock()
	if m.strategy == nil {
		m.mu.Unlock()
		return nil, ErrNoStrategy
	}
	item := m.strategy.Action(actionID)
	if item == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}
	next := domain.NextActionStatus(item.Status)
	m.mu.Unlock()

	return m.UpdateStatus(ctx, actionID, next, "")
}

// BatchUpdate applies several status changes optimistically in one remote
// call. On failure every touched item is restored, all or nothing.
func (m *Manager) BatchUpdate(ctx context.Context, updates []api.ActionUpdate) ([]domain.ActionItem, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	m.mu.Lock()
	if m.strategy == nil {
		m.mu.Unlock()
		return nil, ErrNoStrategy
	}
	prior := make(map[string]domain.ActionStatus, len(updates))
	for _, u := range updates {
		item := m.strategy.Action(u.ActionID)
		if item == nil {
			// Roll back what we already touched before reporting.
			for id, st := range prior {
				if it := m.strategy.Action(id); it != nil {
					it.Status = st
				}
			}
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", ErrUnknownAction, u.ActionID)
		}
		prior[u.ActionID] = item.Status
		item.Status = u.Status
	}
	m.mu.Unlock()

	resolved, err := m.gw.BatchUpdateActions(ctx, updates)
	if err != nil {
		m.mu.Lock()
		for id, st := range prior {
			if item := m.strategy.Action(id); item != nil {
				item.Status = st
			}
		}
		m.lastErr = err
		m.mu.Unlock()
		m.logger.Warn("Batch action update reverted", "count", len(updates), "error", err)
		return nil, err
	}

	m.mu.Lock()
	for i := range resolved {
		if item := m.strategy.Action(resolved[i].ID); item != nil {
			*item = resolved[i]
		}
	}
	m.lastErr = nil
	m.mu.Unlock()

	m.persist(ctx)
	return resolved, nil
}

// Export asks the server to render the strategy as a document.
func (m *Manager) Export(ctx context.Context, format string, sections []string) (*api.ExportResult, error) {
	m.mu.Lock()
	if m.strategy == nil {
		m.mu.Unlock()
		return nil, ErrNoStrategy
	}
	id := m.strategy.ID
	m.mu.Unlock()

	return m.gw.ExportStrategy(ctx, id, format, sections)
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// install replaces the aggregate and persists the snapshot.
func (m *Manager) install(ctx context.Context, st *domain.Strategy) {
	m.mu.Lock()
	m.strategy = st
	m.lastErr = nil
	m.mu.Unlock()
	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	if m.repo == nil {
		return
	}
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	if snap == nil {
		return
	}
	if err := m.repo.SaveStrategySnapshot(ctx, snap); err != nil {
		m.logger.Warn("Failed to persist strategy snapshot", "error", err)
	}
}

// snapshotLocked deep-copies the strategy. Callers hold mu.
func (m *Manager) snapshotLocked() *domain.Strategy {
	if m.strategy == nil {
		return nil
	}
	snap := *m.strategy
	snap.KeyStrengths = append([]string(nil), m.strategy.KeyStrengths...)
	snap.CriticalGaps = append([]string(nil), m.strategy.CriticalGaps...)
	snap.Recommendations = append([]domain.Recommendation(nil), m.strategy.Recommendations...)
	snap.ActionItems = append([]domain.ActionItem(nil), m.strategy.ActionItems...)
	snap.NinetyDayPriorities = append([]string(nil), m.strategy.NinetyDayPriorities...)
	return &snap
}
