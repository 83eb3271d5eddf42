package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/dbbuilder-org/quento/internal/api"
	"github.com/dbbuilder-org/quento/internal/domain"
)

// streamEvent is the wire shape of duplex-channel frames, both directions.
type streamEvent struct {
	Type             string             `json:"type"`
	Content          string             `json:"content,omitempty"`
	IsTyping         bool               `json:"is_typing,omitempty"`
	UserMessage      *domain.Message    `json:"user_message,omitempty"`
	AssistantMessage *domain.Message    `json:"assistant_message,omitempty"`
	SessionUpdate    *api.SessionUpdate `json:"session_update,omitempty"`
}

// Stream is the real-time duplex channel for one conversation. It is an
// alternate transport for the same send contract as Manager.SendMessage:
// sends are optimistic and server-confirmed exchanges reconcile the same
// message history.
type Stream struct {
	mgr      *Manager
	conn     *websocket.Conn
	onTyping func(bool)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// Connect opens the duplex channel for the manager's current conversation.
// The access token is passed as a connection parameter. onTyping (optional)
// receives the assistant typing indicator.
func (m *Manager) Connect(ctx context.Context, wsBaseURL, token string, onTyping func(bool)) (*Stream, error) {
	m.mu.Lock()
	id := m.sess.ID
	m.mu.Unlock()
	if id == "" {
		return nil, ErrNoSession
	}

	endpoint := strings.TrimRight(wsBaseURL, "/") + "/chat/" + id + "?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial chat stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		mgr:      m,
		conn:     conn,
		onTyping: onTyping,
		logger:   m.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.readLoop(streamCtx)

	m.logger.Info("Chat stream connected", "conversation_id", id)
	return s, nil
}

// Send submits a message over the channel. The optimistic append happens
// immediately; confirmation arrives asynchronously via the read loop. On a
// write failure the optimistic message is marked failed right away.
func (s *Stream) Send(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	tempID := s.mgr.appendPending(content)

	frame, err := json.Marshal(streamEvent{Type: "message", Content: content})
	if err != nil {
		s.mgr.fail(tempID, err)
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		s.mgr.fail(tempID, err)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// readLoop reconciles server-pushed frames with the session state until the
// connection drops or the stream is closed.
func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.done)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.logger.Debug("Chat stream closed", "error", err)
			}
			return
		}

		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Debug("Dropping malformed stream frame", "error", err)
			continue
		}

		switch ev.Type {
		case "typing":
			if s.onTyping != nil {
				s.onTyping(ev.IsTyping)
			}
		case "message":
			if ev.UserMessage == nil || ev.AssistantMessage == nil {
				continue
			}
			res := &api.SendMessageResult{
				UserMessage:      *ev.UserMessage,
				AssistantMessage: *ev.AssistantMessage,
			}
			if ev.SessionUpdate != nil {
				res.SessionUpdate = *ev.SessionUpdate
			}
			s.mgr.confirmOldestPending(res)
			if ev.SessionUpdate != nil {
				// Persistence must outlive the stream context; the state
				// mutation has already happened.
				s.mgr.applyUpdate(context.Background(), *ev.SessionUpdate)
			}
		}
	}
}

// Close tears down the channel. Safe to call more than once and safe to
// call while frames are in flight; pending optimistic messages stay pending
// for a later Retry over HTTP.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close(websocket.StatusNormalClosure, "client closed")
		<-s.done
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
