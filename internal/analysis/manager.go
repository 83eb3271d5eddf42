// Package analysis orchestrates web-presence analysis jobs: start a
// server-side run, poll it to completion with progress reporting, and keep
// the last results around for the strategy phase.
package analysis

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

// ErrNoJob is returned by operations that need a started analysis.
var ErrNoJob = errors.New("no analysis job started")

// Gateway is the slice of the API client the manager depends on.
type Gateway interface {
	StartAnalysis(ctx context.Context, req api.StartAnalysisRequest) (*domain.AnalysisJob, error)
	GetAnalysis(ctx context.Context, id string) (*domain.AnalysisJob, error)
	AnalysisStatus(ctx context.Context, id string) (*domain.JobStatus, error)
}

// Saver persists the analysis pointer and last results across restarts.
type Saver interface {
	SaveAnalysisState(ctx context.Context, id, websiteURL string, results *domain.AnalysisResults) error
}

// Manager owns the AnalysisJob aggregate for the process lifetime. The job
// is created by Start and mutated only by poll responses.
type Manager struct {
	gw     Gateway
	poll   poller.Config
	repo   Saver // optional
	logger *slog.Logger

	mu  sync.Mutex
	job *domain.AnalysisJob
}

// NewManager creates an analysis manager. poll's zero value uses the poller
// defaults; repo and logger may be nil.
func NewManager(gw Gateway, poll poller.Config, repo Saver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{gw: gw, poll: poll, repo: repo, logger: logger}
}

// Job returns a snapshot of the current job, or nil before Start.
func (m *Manager) Job() *domain.AnalysisJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil {
		return nil
	}
	snap := *m.job
	return &snap
}

// Start creates a server-side analysis run for the given website.
func (m *Manager) Start(ctx context.Context, websiteURL, sessionID string) (*domain.AnalysisJob, error) {
	job, err := m.gw.StartAnalysis(ctx, api.StartAnalysisRequest{
		WebsiteURL:         websiteURL,
		SessionID:          sessionID,
		IncludeCompetitors: true,
		IncludeSocial:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("start analysis: %w", err)
	}
	if job.WebsiteURL == "" {
		job.WebsiteURL = websiteURL
	}

	m.mu.Lock()
	m.job = job
	m.mu.Unlock()

	m.persist(ctx)
	m.logger.Info("Analysis started", "analysis_id", job.ID, "website_url", job.WebsiteURL)

	snap := *job
	return &snap, nil
}

// Await polls the job until it completes, fails, or the observation window
// closes. Progress and the current step are mirrored into the job aggregate
// and forwarded to onProgress. A poller.ErrTimeout does not mean the job is
// dead; call CheckAgain later.
func (m *Manager) Await(ctx context.Context, onProgress func(progress int, step string)) (*domain.AnalysisJob, error) {
	m.mu.Lock()
	if m.job == nil {
		m.mu.Unlock()
		return nil, ErrNoJob
	}
	jobID := m.job.ID
	m.mu.Unlock()

	check := func(ctx context.Context) (poller.Snapshot, error) {
		st, err := m.gw.AnalysisStatus(ctx, jobID)
		if err != nil {
			return poller.Snapshot{}, err
		}
		m.mu.Lock()
		m.job.Status = st.Status
		m.job.Progress = st.Progress
		m.mu.Unlock()
		return poller.Snapshot{
			Done:     st.Status == domain.AnalysisCompleted,
			Failed:   st.Status == domain.AnalysisFailed,
			Progress: st.Progress,
			Step:     st.CurrentStep,
			Reason:   st.Error,
		}, nil
	}

	fetch := func(ctx context.Context) (*domain.AnalysisJob, error) {
		return m.gw.GetAnalysis(ctx, jobID)
	}

	job, err := poller.WaitFor(ctx, m.poll, check, fetch, onProgress)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.job = job
	m.mu.Unlock()

	m.persist(ctx)
	m.logger.Info("Analysis completed", "analysis_id", job.ID, "overall_score", overallScore(job))

	snap := *job
	return &snap, nil
}

// CheckAgain performs a single status probe after a poll timeout. If the
// job finished in the meantime the full result is fetched and stored.
func (m *Manager) CheckAgain(ctx context.Context) (*domain.AnalysisJob, error) {
	m.mu.Lock()
	if m.job == nil {
		m.mu.Unlock()
		return nil, ErrNoJob
	}
	jobID := m.job.ID
	m.mu.Unlock()

	st, err := m.gw.AnalysisStatus(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if st.Status == domain.AnalysisFailed {
		return nil, &poller.JobFailedError{Reason: st.Error}
	}
	if st.Status != domain.AnalysisCompleted {
		m.mu.Lock()
		m.job.Status = st.Status
		m.job.Progress = st.Progress
		snap := *m.job
		m.mu.Unlock()
		return &snap, nil
	}

	job, err := m.gw.GetAnalysis(ctx, jobID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.job = job
	m.mu.Unlock()
	m.persist(ctx)

	snap := *job
	return &snap, nil
}

// Resume rehydrates the manager from a persisted analysis id.
func (m *Manager) Resume(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	job, err := m.gw.GetAnalysis(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume analysis %s: %w", id, err)
	}
	m.mu.Lock()
	m.job = job
	m.mu.Unlock()
	snap := *job
	return &snap, nil
}

func (m *Manager) persist(ctx context.Context) {
	if m.repo == nil {
		return
	}
	m.mu.Lock()
	job := m.job
	var id, websiteURL string
	var results *domain.AnalysisResults
	if job != nil {
		id = job.ID
		websiteURL = job.WebsiteURL
		results = job.Results
	}
	m.mu.Unlock()
	if id == "" {
		return
	}
	if err := m.repo.SaveAnalysisState(ctx, id, websiteURL, results); err != nil {
		m.logger.Warn("Failed to persist analysis state", "error", err)
	}
}

func overallScore(job *domain.AnalysisJob) int {
	if job.Results == nil {
		return 0
	}
	return job.Results.OverallScore
}
