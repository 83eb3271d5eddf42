package stub

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// analysisSteps is the scripted pipeline. Each status poll advances the run
// one step; the run completes when the script is exhausted.
var analysisSteps = []struct {
	name     string
	progress int
}{
	{"fetching_website", 10},
	{"analyzing_seo", 30},
	{"analyzing_content", 50},
	{"analyzing_competitors", 70},
	{"scoring", 90},
}

type startAnalysisRequest struct {
	WebsiteURL         string `json:"website_url"`
	SessionID          string `json:"session_id,omitempty"`
	IncludeCompetitors bool   `json:"include_competitors"`
	IncludeSocial      bool   `json:"include_social"`
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req startAnalysisRequest
	if err := decodeBody(r, &req); err != nil || req.WebsiteURL == "" {
		Error(w, r, http.StatusBadRequest, "invalid_request", "website_url is required")
		return
	}

	run := &analysisRun{
		job: domain.AnalysisJob{
			ID:         uuid.NewString(),
			WebsiteURL: req.WebsiteURL,
			Status:     domain.AnalysisPending,
			CreatedAt:  time.Now().UTC(),
		},
		ownerID: requestUserID(r),
	}

	s.mu.Lock()
	s.analyses[run.job.ID] = run
	job := run.job
	s.mu.Unlock()

	s.logger.Info("Analysis started", "analysis_id", job.ID, "website_url", job.WebsiteURL)
	JSON(w, r, http.StatusCreated, job)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	userID := requestUserID(r)

	s.mu.Lock()
	var all []domain.AnalysisJob
	for _, run := range s.analyses {
		if run.ownerID == userID {
			all = append(all, run.job)
		}
	}
	s.mu.Unlock()

	total := len(all)
	Page(w, r, window(all, limit, offset), total, limit, offset)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	run, ok := s.analyses[chi.URLParam(r, "id")]
	if !ok || run.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "analysis not found")
		return
	}
	job := run.job
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, job)
}

// handleAnalysisStatus reports the run's progress and advances the script
// one step per poll.
func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	run, ok := s.analyses[chi.URLParam(r, "id")]
	if !ok || run.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "analysis not found")
		return
	}
	status := advanceAnalysis(run)
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, status)
}

// advanceAnalysis moves the run one script step forward and returns the
// resulting poll view. Callers hold s.mu.
func advanceAnalysis(run *analysisRun) domain.JobStatus {
	if run.job.Status.Terminal() {
		return pollView(run)
	}

	if run.step < len(analysisSteps) {
		step := analysisSteps[run.step]
		run.job.Status = domain.AnalysisProcessing
		run.job.Progress = step.progress
		run.step++
		return pollView(run)
	}

	now := time.Now().UTC()
	run.job.Status = domain.AnalysisCompleted
	run.job.Progress = 100
	run.job.CompletedAt = &now
	run.job.Results = cannedResults(run.job.WebsiteURL)
	return pollView(run)
}

func pollView(run *analysisRun) domain.JobStatus {
	st := domain.JobStatus{
		Status:   run.job.Status,
		Progress: run.job.Progress,
		Error:    run.job.Error,
	}
	for i, step := range analysisSteps {
		switch {
		case i < run.step:
			st.StepsCompleted = append(st.StepsCompleted, step.name)
		case i == run.step:
			st.CurrentStep = step.name
			st.StepsRemaining = append(st.StepsRemaining, step.name)
		default:
			st.StepsRemaining = append(st.StepsRemaining, step.name)
		}
	}
	return st
}

func cannedResults(websiteURL string) *domain.AnalysisResults {
	return &domain.AnalysisResults{
		OverallScore: 62,
		Scores: domain.AnalysisScores{
			SEO:     58,
			Content: 70,
			Mobile:  81,
			Speed:   49,
			Social:  52,
		},
		Competitors: []domain.Competitor{
			{
				Name:      "Rival One",
				URL:       "https://rival-one.example",
				Strengths: []string{"strong blog cadence", "fast pages"},
				SEOScore:  74,
			},
			{
				Name:      "Rival Two",
				URL:       "https://rival-two.example",
				Strengths: []string{"active social channels"},
				SEOScore:  66,
			},
		},
		QuickWins: []string{
			"Add meta descriptions to the top ten landing pages",
			"Compress hero images on " + websiteURL,
			"Claim the business profile on the major map services",
		},
	}
}
