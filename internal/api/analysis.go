package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// StartAnalysisRequest kicks off a web-presence analysis.
type StartAnalysisRequest struct {
	WebsiteURL         string `json:"website_url"`
	SessionID          string `json:"session_id,omitempty"`
	IncludeCompetitors bool   `json:"include_competitors"`
	IncludeSocial      bool   `json:"include_social"`
}

// StartAnalysis creates a server-side analysis job.
func (c *Client) StartAnalysis(ctx context.Context, req StartAnalysisRequest) (*domain.AnalysisJob, error) {
	var out domain.AnalysisJob
	if err := c.do(ctx, http.MethodPost, "/analysis", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAnalyses returns a page of the user's analysis jobs.
func (c *Client) ListAnalyses(ctx context.Context, limit, offset int) ([]domain.AnalysisJob, *Pagination, error) {
	var out []domain.AnalysisJob
	page, err := c.doPage(ctx, http.MethodGet, fmt.Sprintf("/analysis?limit=%d&offset=%d", limit, offset), nil, &out)
	if err != nil {
		return nil, nil, err
	}
	return out, page, nil
}

// GetAnalysis returns the full job including results once completed.
func (c *Client) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisJob, error) {
	var out domain.AnalysisJob
	if err := c.do(ctx, http.MethodGet, "/analysis/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalysisStatus returns the lightweight poll-time view of a job.
func (c *Client) AnalysisStatus(ctx context.Context, id string) (*domain.JobStatus, error) {
	var out domain.JobStatus
	if err := c.do(ctx, http.MethodGet, "/analysis/"+id+"/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
