package stub

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/export"
)

// generationPolls is how many strategy fetches it takes for generation to
// finish.
const generationPolls = 2

type generateStrategyRequest struct {
	AnalysisID string `json:"analysis_id"`
	SessionID  string `json:"session_id,omitempty"`
}

type actionUpdate struct {
	ActionID string              `json:"action_id"`
	Status   domain.ActionStatus `json:"status"`
	Notes    string              `json:"notes,omitempty"`
}

type exportRequest struct {
	Format          string   `json:"format"`
	IncludeSections []string `json:"include_sections,omitempty"`
}

type exportResult struct {
	Format      string `json:"format"`
	URL         string `json:"url,omitempty"`
	Content     string `json:"content,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

func (s *Server) handleGenerateStrategy(w http.ResponseWriter, r *http.Request) {
	var req generateStrategyRequest
	if err := decodeBody(r, &req); err != nil || req.AnalysisID == "" {
		Error(w, r, http.StatusBadRequest, "invalid_request", "analysis_id is required")
		return
	}

	s.mu.Lock()
	run, ok := s.analyses[req.AnalysisID]
	if !ok || run.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "analysis not found")
		return
	}
	if run.job.Status != domain.AnalysisCompleted {
		s.mu.Unlock()
		Error(w, r, http.StatusConflict, "analysis_incomplete", "analysis has not completed")
		return
	}

	now := time.Now().UTC()
	sr := &strategyRun{
		strategy: domain.Strategy{
			ID:        uuid.NewString(),
			Title:     "Growth Strategy for " + run.job.WebsiteURL,
			Status:    domain.StrategyGenerating,
			CreatedAt: now,
			UpdatedAt: now,
		},
		ownerID: requestUserID(r),
	}
	s.strategies[sr.strategy.ID] = sr
	st := sr.strategy
	s.mu.Unlock()

	s.logger.Info("Strategy generation started", "strategy_id", st.ID)
	JSON(w, r, http.StatusCreated, st)
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	userID := requestUserID(r)

	s.mu.Lock()
	var all []domain.Strategy
	for _, sr := range s.strategies {
		if sr.ownerID == userID {
			all = append(all, sr.strategy)
		}
	}
	s.mu.Unlock()

	total := len(all)
	Page(w, r, window(all, limit, offset), total, limit, offset)
}

// handleGetStrategy returns the strategy, finishing the scripted generation
// after enough polls.
func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sr, ok := s.strategies[chi.URLParam(r, "id")]
	if !ok || sr.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "strategy not found")
		return
	}
	if sr.strategy.Status.Generating() {
		sr.polls++
		if sr.polls >= generationPolls {
			finishGeneration(sr)
		}
	}
	st := sr.strategy
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, st)
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.ActionStatus `json:"status"`
		Notes  string              `json:"notes,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil || req.Status == "" {
		Error(w, r, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}

	actionID := chi.URLParam(r, "actionID")
	userID := requestUserID(r)

	s.mu.Lock()
	item := s.findAction(userID, actionID)
	if item == nil {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "action item not found")
		return
	}
	applyActionStatus(item, req.Status)
	out := *item
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, out)
}

func (s *Server) handleBatchUpdateActions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []actionUpdate `json:"updates"`
	}
	if err := decodeBody(r, &req); err != nil || len(req.Updates) == 0 {
		Error(w, r, http.StatusBadRequest, "invalid_request", "updates are required")
		return
	}

	userID := requestUserID(r)

	s.mu.Lock()
	// Validate the whole batch before touching anything.
	for _, u := range req.Updates {
		if s.findAction(userID, u.ActionID) == nil {
			s.mu.Unlock()
			Error(w, r, http.StatusNotFound, "not_found", "action item not found: "+u.ActionID)
			return
		}
	}
	out := make([]domain.ActionItem, 0, len(req.Updates))
	for _, u := range req.Updates {
		item := s.findAction(userID, u.ActionID)
		applyActionStatus(item, u.Status)
		out = append(out, *item)
	}
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, out)
}

func (s *Server) handleExportStrategy(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(r, &req); err != nil || !export.ValidFormat(req.Format) {
		Error(w, r, http.StatusBadRequest, "invalid_format", "format must be one of pdf, markdown, notion, trello")
		return
	}

	s.mu.Lock()
	sr, ok := s.strategies[chi.URLParam(r, "id")]
	if !ok || sr.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "strategy not found")
		return
	}
	st := sr.strategy
	s.mu.Unlock()

	if req.Format == export.FormatMarkdown {
		JSON(w, r, http.StatusOK, exportResult{
			Format:      req.Format,
			Content:     export.Markdown(&st),
			ContentType: "text/markdown",
		})
		return
	}
	JSON(w, r, http.StatusOK, exportResult{
		Format: req.Format,
		URL:    "https://exports.quento.example/" + st.ID + "." + req.Format,
	})
}

// findAction locates an action item across the user's strategies. Callers
// hold s.mu; the returned pointer aliases stored state.
func (s *Server) findAction(userID, actionID string) *domain.ActionItem {
	for _, sr := range s.strategies {
		if sr.ownerID != userID {
			continue
		}
		if item := sr.strategy.Action(actionID); item != nil {
			return item
		}
	}
	return nil
}

// applyActionStatus resolves a requested status change the way the real
// service does: completion stamps completed_at, leaving it clears the stamp.
func applyActionStatus(item *domain.ActionItem, status domain.ActionStatus) {
	item.Status = status
	if status == domain.ActionCompleted {
		now := time.Now().UTC()
		item.CompletedAt = &now
	} else {
		item.CompletedAt = nil
	}
}

// finishGeneration fills in the canned strategy content. Callers hold s.mu.
func finishGeneration(sr *strategyRun) {
	sr.strategy.Status = domain.StrategyDraft
	sr.strategy.UpdatedAt = time.Now().UTC()
	sr.strategy.ExecutiveSummary = "Your online presence has solid foundations but underperforms on search visibility and page speed. The plan below prioritizes the changes with the highest expected return."
	sr.strategy.VisionStatement = "Become the most visible local provider in your category within twelve months."
	sr.strategy.KeyStrengths = []string{
		"Clear service descriptions",
		"Mobile-friendly layout",
	}
	sr.strategy.CriticalGaps = []string{
		"Slow page loads on media-heavy pages",
		"Thin search metadata across landing pages",
	}
	sr.strategy.Recommendations = []domain.Recommendation{
		{
			ID:           uuid.NewString(),
			Title:        "Fix technical SEO basics",
			Priority:     domain.PriorityHigh,
			Summary:      "Add titles, meta descriptions and structured data to the core landing pages.",
			Impact:       "Expected 20-30% lift in organic impressions within a quarter.",
			CurrentState: "Most pages share a generic title",
			TargetState:  "Every landing page has unique, descriptive metadata",
		},
		{
			ID:       uuid.NewString(),
			Title:    "Cut page weight",
			Priority: domain.PriorityMedium,
			Summary:  "Compress images and defer non-critical scripts.",
			Impact:   "Faster loads improve both rankings and conversion.",
		},
	}
	sr.strategy.ActionItems = []domain.ActionItem{
		{
			ID:          uuid.NewString(),
			Title:       "Write meta descriptions for top pages",
			Description: "Cover the ten highest-traffic landing pages first.",
			Priority:    domain.PriorityHigh,
			Effort:      domain.EffortSmall,
			Category:    "seo",
			Status:      domain.ActionPending,
		},
		{
			ID:       uuid.NewString(),
			Title:    "Compress hero images",
			Priority: domain.PriorityMedium,
			Effort:   domain.EffortSmall,
			Category: "performance",
			Status:   domain.ActionPending,
		},
		{
			ID:       uuid.NewString(),
			Title:    "Set up a monthly content calendar",
			Priority: domain.PriorityMedium,
			Effort:   domain.EffortMedium,
			Category: "content",
			Status:   domain.ActionPending,
		},
	}
	sr.strategy.NinetyDayPriorities = []string{
		"Technical SEO cleanup",
		"Page speed under two seconds",
		"Two published articles per month",
	}
}
