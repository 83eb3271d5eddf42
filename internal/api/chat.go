package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// SessionUpdate is the server's per-exchange signal about the conversation's
// ring progression.
type SessionUpdate struct {
	RingPhase     domain.RingPhase `json:"ring_phase"`
	ShouldAdvance bool             `json:"should_advance"`
}

// SendMessageResult is the confirmed message exchange: the server's echo of
// the user message followed by the assistant reply.
type SendMessageResult struct {
	UserMessage      domain.Message `json:"user_message"`
	AssistantMessage domain.Message `json:"assistant_message"`
	SessionUpdate    SessionUpdate  `json:"session_update"`
}

// CreateConversation starts a new conversation.
func (c *Client) CreateConversation(ctx context.Context) (*domain.ConversationSession, error) {
	var out domain.ConversationSession
	if err := c.do(ctx, http.MethodPost, "/chat/conversations", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListConversations returns a page of the user's conversations, newest
// first, without message bodies.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) ([]domain.ConversationSession, *Pagination, error) {
	var out []domain.ConversationSession
	page, err := c.doPage(ctx, http.MethodGet, fmt.Sprintf("/chat/conversations?limit=%d&offset=%d", limit, offset), nil, &out)
	if err != nil {
		return nil, nil, err
	}
	return out, page, nil
}

// GetConversation returns the canonical conversation detail including the
// full message history.
func (c *Client) GetConversation(ctx context.Context, id string) (*domain.ConversationSession, error) {
	var out domain.ConversationSession
	if err := c.do(ctx, http.MethodGet, "/chat/conversations/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage submits a user message and returns the confirmed exchange.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*SendMessageResult, error) {
	var out SendMessageResult
	err := c.do(ctx, http.MethodPost, "/chat/conversations/"+conversationID+"/messages",
		map[string]string{"content": content}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SetRingPhase explicitly moves a conversation to the given phase.
func (c *Client) SetRingPhase(ctx context.Context, conversationID string, phase domain.RingPhase) (*domain.ConversationSession, error) {
	var out domain.ConversationSession
	err := c.do(ctx, http.MethodPatch, "/chat/conversations/"+conversationID+"/ring",
		map[string]domain.RingPhase{"ring_phase": phase}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConversation removes a conversation and all its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/chat/conversations/"+id, nil, nil)
}
