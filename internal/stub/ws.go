package stub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/dbbuilder-org/quento/internal/domain"
)

// streamFrame is the chat stream wire shape, both directions.
type streamFrame struct {
	Type             string          `json:"type"`
	Content          string          `json:"content,omitempty"`
	IsTyping         bool            `json:"is_typing,omitempty"`
	UserMessage      *domain.Message `json:"user_message,omitempty"`
	AssistantMessage *domain.Message `json:"assistant_message,omitempty"`
	SessionUpdate    *sessionUpdate  `json:"session_update,omitempty"`
}

// handleChatStream upgrades to a websocket and echoes coached exchanges for
// incoming messages. The token travels as a query parameter because browser
// websocket clients cannot set headers.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	userID, err := s.verifyAccessToken(r.URL.Query().Get("token"))
	if err != nil {
		Error(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
		return
	}

	conversationID := chi.URLParam(r, "id")
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok || conv.ownerID != userID {
		s.mu.Unlock()
		Error(w, r, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	s.mu.Unlock()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("Websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "stream ended")
	}()

	s.logger.Info("Chat stream opened", "conversation_id", conversationID)
	ctx := r.Context()

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				s.logger.Debug("Chat stream read ended", "error", err)
			}
			return
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != "message" || frame.Content == "" {
			continue
		}

		if s.cfg.Typing {
			if err := writeFrame(ctx, ws, streamFrame{Type: "typing", IsTyping: true}); err != nil {
				return
			}
			time.Sleep(50 * time.Millisecond)
		}

		s.mu.Lock()
		conv, ok := s.conversations[conversationID]
		if !ok {
			s.mu.Unlock()
			return
		}
		result := s.recordExchange(conv, frame.Content)
		s.mu.Unlock()

		if s.cfg.Typing {
			if err := writeFrame(ctx, ws, streamFrame{Type: "typing", IsTyping: false}); err != nil {
				return
			}
		}
		reply := streamFrame{
			Type:             "message",
			UserMessage:      &result.UserMessage,
			AssistantMessage: &result.AssistantMessage,
			SessionUpdate:    &result.SessionUpdate,
		}
		if err := writeFrame(ctx, ws, reply); err != nil {
			return
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame streamFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
