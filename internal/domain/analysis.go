package domain

import (
	"time"
)

// AnalysisStatus is the lifecycle state of a web-presence analysis job.
type AnalysisStatus string

const (
	AnalysisPending    AnalysisStatus = "pending"
	AnalysisProcessing AnalysisStatus = "processing"
	AnalysisCompleted  AnalysisStatus = "completed"
	AnalysisFailed     AnalysisStatus = "failed"
)

// Terminal reports whether the job will make no further progress.
func (s AnalysisStatus) Terminal() bool {
	return s == AnalysisCompleted || s == AnalysisFailed
}

// AnalysisScores is the per-dimension score breakdown, each 0..100.
type AnalysisScores struct {
	SEO     int `json:"seo"`
	Content int `json:"content"`
	Mobile  int `json:"mobile"`
	Speed   int `json:"speed"`
	Social  int `json:"social"`
}

// Competitor describes a competing web presence found during analysis.
type Competitor struct {
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Strengths []string `json:"strengths"`
	SEOScore  int      `json:"seo_score"`
}

// AnalysisResults is the full result payload of a completed analysis.
type AnalysisResults struct {
	OverallScore int            `json:"overall_score"`
	Scores       AnalysisScores `json:"scores"`
	Competitors  []Competitor   `json:"competitors,omitempty"`
	QuickWins    []string       `json:"quick_wins,omitempty"`
}

// AnalysisJob is a server-side analysis run. It is created by a start call
// and mutated only by poll responses; Results is nil until completed.
type AnalysisJob struct {
	ID          string           `json:"id"`
	WebsiteURL  string           `json:"website_url"`
	Status      AnalysisStatus   `json:"status"`
	Progress    int              `json:"progress"`
	Results     *AnalysisResults `json:"results,omitempty"`
	Error       string           `json:"error_message,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// JobStatus is the lightweight poll-time view of a running job.
type JobStatus struct {
	Status         AnalysisStatus `json:"status"`
	Progress       int            `json:"progress"`
	CurrentStep    string         `json:"current_step,omitempty"`
	StepsCompleted []string       `json:"steps_completed,omitempty"`
	StepsRemaining []string       `json:"steps_remaining,omitempty"`
	Error          string         `json:"error_message,omitempty"`
}
