// Package store is the durable persistence adapter for client state. The
// managers serialize a small subset of their aggregates through it: the
// credential pair, the conversation pointer, the last analysis, and the
// last strategy snapshot. Message history is never persisted locally; the
// server is canonical for it.
package store

import (
	"context"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// AuthState is the persisted credential pair plus the authenticated flag.
type AuthState struct {
	Credentials   domain.Credentials `json:"credentials"`
	Authenticated bool               `json:"authenticated"`
}

// ConversationState is the persisted conversation pointer.
type ConversationState struct {
	ConversationID string           `json:"conversation_id"`
	RingPhase      domain.RingPhase `json:"ring_phase"`
}

// AnalysisState is the persisted analysis pointer with its last results.
type AnalysisState struct {
	AnalysisID string                  `json:"analysis_id"`
	WebsiteURL string                  `json:"website_url"`
	Results    *domain.AnalysisResults `json:"results,omitempty"`
}

// Repository defines the interface for persisting client state. Load
// methods return nil (not an error) when nothing has been saved yet.
type Repository interface {
	// SaveCredentials durably mirrors the credential pair.
	SaveCredentials(ctx context.Context, creds domain.Credentials) error

	// LoadCredentials returns the persisted auth state, or nil.
	LoadCredentials(ctx context.Context) (*AuthState, error)

	// ClearCredentials removes the persisted pair (logout or refresh rejection).
	ClearCredentials(ctx context.Context) error

	// SaveConversationState persists the conversation id and ring phase.
	SaveConversationState(ctx context.Context, conversationID string, phase domain.RingPhase) error

	// LoadConversationState returns the persisted pointer, or nil.
	LoadConversationState(ctx context.Context) (*ConversationState, error)

	// SaveAnalysisState persists the analysis pointer and last results.
	SaveAnalysisState(ctx context.Context, id, websiteURL string, results *domain.AnalysisResults) error

	// LoadAnalysisState returns the persisted analysis state, or nil.
	LoadAnalysisState(ctx context.Context) (*AnalysisState, error)

	// SaveStrategySnapshot persists the last strategy wholesale.
	SaveStrategySnapshot(ctx context.Context, strategy *domain.Strategy) error

	// LoadStrategySnapshot returns the persisted strategy, or nil.
	LoadStrategySnapshot(ctx context.Context) (*domain.Strategy, error)

	// Ping verifies database connectivity and returns an error if the
	// database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
