package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// GenerateStrategyRequest keys a strategy to a completed analysis.
type GenerateStrategyRequest struct {
	AnalysisID string `json:"analysis_id"`
	SessionID  string `json:"session_id,omitempty"`
}

// ActionUpdate is one status change inside a batch update.
type ActionUpdate struct {
	ActionID string              `json:"action_id"`
	Status   domain.ActionStatus `json:"status"`
	Notes    string              `json:"notes,omitempty"`
}

// ExportResult is the server-rendered strategy document.
type ExportResult struct {
	Format      string `json:"format"`
	URL         string `json:"url,omitempty"`
	Content     string `json:"content,omitempty"`
	ContentType string `json:"content_type,omitempty"`
}

// GenerateStrategy asks the server to produce a strategy from an analysis.
// The returned strategy may still be generating; poll GetStrategy until its
// status leaves the generating state.
func (c *Client) GenerateStrategy(ctx context.Context, req GenerateStrategyRequest) (*domain.Strategy, error) {
	var out domain.Strategy
	if err := c.do(ctx, http.MethodPost, "/strategy/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStrategies returns a page of the user's strategies.
func (c *Client) ListStrategies(ctx context.Context, limit, offset int) ([]domain.Strategy, *Pagination, error) {
	var out []domain.Strategy
	page, err := c.doPage(ctx, http.MethodGet, fmt.Sprintf("/strategy?limit=%d&offset=%d", limit, offset), nil, &out)
	if err != nil {
		return nil, nil, err
	}
	return out, page, nil
}

// GetStrategy returns a strategy with its recommendations and action items.
func (c *Client) GetStrategy(ctx context.Context, id string) (*domain.Strategy, error) {
	var out domain.Strategy
	if err := c.do(ctx, http.MethodGet, "/strategy/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAction changes one action item's status. The server may resolve a
// different final status than requested (and may stamp completed_at), so
// callers reconcile with the returned item.
func (c *Client) UpdateAction(ctx context.Context, actionID string, status domain.ActionStatus, notes string) (*domain.ActionItem, error) {
	var out domain.ActionItem
	body := map[string]string{"status": string(status)}
	if notes != "" {
		body["notes"] = notes
	}
	if err := c.do(ctx, http.MethodPatch, "/strategy/actions/"+actionID, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchUpdateActions applies several status changes in one call and returns
// the server-resolved items.
func (c *Client) BatchUpdateActions(ctx context.Context, updates []ActionUpdate) ([]domain.ActionItem, error) {
	var out []domain.ActionItem
	err := c.do(ctx, http.MethodPatch, "/strategy/actions",
		map[string][]ActionUpdate{"updates": updates}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExportStrategy asks the server to render the strategy as a document.
// Format is one of pdf, markdown, notion, trello.
func (c *Client) ExportStrategy(ctx context.Context, id, format string, sections []string) (*ExportResult, error) {
	body := map[string]any{"format": format}
	if len(sections) > 0 {
		body["include_sections"] = sections
	}
	var out ExportResult
	if err := c.do(ctx, http.MethodPost, "/strategy/"+id+"/export", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
