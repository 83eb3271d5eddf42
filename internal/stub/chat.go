package stub

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// advanceAfter is how many user messages in a phase trigger a ring advance.
const advanceAfter = 3

type sendMessageRequest struct {
	Content string `json:"content"`
}

type sessionUpdate struct {
	RingPhase     domain.RingPhase `json:"ring_phase"`
	ShouldAdvance bool             `json:"should_advance"`
}

type sendMessageResult struct {
	UserMessage      domain.Message `json:"user_message"`
	AssistantMessage domain.Message `json:"assistant_message"`
	SessionUpdate    sessionUpdate  `json:"session_update"`
}

// pageParams reads limit/offset query parameters with service defaults.
func pageParams(r *http.Request) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	conv := &conversation{
		sess: domain.ConversationSession{
			ID:        uuid.NewString(),
			Title:     "New conversation",
			RingPhase: domain.RingCore,
			Status:    domain.ConversationActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
		ownerID: requestUserID(r),
	}

	s.mu.Lock()
	s.conversations[conv.sess.ID] = conv
	sess := conv.sess
	s.mu.Unlock()

	s.logger.Info("Conversation created", "conversation_id", sess.ID)
	JSON(w, r, http.StatusCreated, sess)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	userID := requestUserID(r)

	s.mu.Lock()
	var all []domain.ConversationSession
	for _, c := range s.conversations {
		if c.ownerID == userID {
			summary := c.sess
			summary.Messages = nil
			all = append(all, summary)
		}
	}
	s.mu.Unlock()

	total := len(all)
	page := window(all, limit, offset)
	Page(w, r, page, total, limit, offset)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	conv, ok := s.conversations[chi.URLParam(r, "id")]
	if !ok || conv.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	sess := conv.sess
	sess.Messages = append([]domain.Message(nil), conv.sess.Messages...)
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, sess)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok || conv.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	delete(s.conversations, id)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil || req.Content == "" {
		Error(w, r, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}

	s.mu.Lock()
	conv, ok := s.conversations[chi.URLParam(r, "id")]
	if !ok || conv.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	result := s.recordExchange(conv, req.Content)
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, result)
}

func (s *Server) handleSetRingPhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RingPhase domain.RingPhase `json:"ring_phase"`
	}
	if err := decodeBody(r, &req); err != nil || !req.RingPhase.Valid() {
		Error(w, r, http.StatusBadRequest, "invalid_request", "ring_phase must be a known phase")
		return
	}

	s.mu.Lock()
	conv, ok := s.conversations[chi.URLParam(r, "id")]
	if !ok || conv.ownerID != requestUserID(r) {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	conv.sess.RingPhase = req.RingPhase
	conv.sess.UpdatedAt = time.Now().UTC()
	conv.userMsgsInPhase = 0
	sess := conv.sess
	sess.Messages = nil
	s.mu.Unlock()

	JSON(w, r, http.StatusOK, sess)
}

// recordExchange appends the user message and a coached reply, applies the
// advance heuristic, and returns the confirmed exchange. Callers hold s.mu.
func (s *Server) recordExchange(conv *conversation, content string) sendMessageResult {
	now := time.Now().UTC()
	phase := conv.sess.RingPhase

	user := domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: now,
		Metadata:  &domain.MessageMeta{RingPhase: phase},
	}

	conv.userMsgsInPhase++
	advance := conv.userMsgsInPhase >= advanceAfter && !phase.Terminal()
	if advance {
		conv.sess.RingPhase = phase.Next()
		conv.userMsgsInPhase = 0
	}

	assistant := domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleAssistant,
		Content:   coachReply(conv.sess.RingPhase, advance),
		CreatedAt: now,
		Metadata:  &domain.MessageMeta{RingPhase: conv.sess.RingPhase},
	}

	conv.sess.Messages = append(conv.sess.Messages, user, assistant)
	conv.sess.UpdatedAt = now
	if conv.sess.Title == "New conversation" && len(content) > 0 {
		conv.sess.Title = truncate(content, 48)
	}

	return sendMessageResult{
		UserMessage:      user,
		AssistantMessage: assistant,
		SessionUpdate: sessionUpdate{
			RingPhase:     conv.sess.RingPhase,
			ShouldAdvance: advance,
		},
	}
}

// coachReply returns a canned assistant reply for the phase.
func coachReply(phase domain.RingPhase, advanced bool) string {
	if advanced {
		return "Great progress. We're moving into the " + string(phase) + " stage now. " + phaseReplies[phase]
	}
	if reply, ok := phaseReplies[phase]; ok {
		return reply
	}
	return phaseReplies[domain.RingCore]
}

var phaseReplies = map[domain.RingPhase]string{
	domain.RingCore:     "Tell me more about your business and what makes it unique.",
	domain.RingDiscover: "Let's look at where your online presence stands today. What channels are you already using?",
	domain.RingPlan:     "Based on what we've found, which of these opportunities feels most important to you?",
	domain.RingExecute:  "Which action item would you like to start with this week?",
	domain.RingOptimize: "Let's review what's working and double down on it. How have the recent changes performed?",
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// window slices a page out of items.
func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
