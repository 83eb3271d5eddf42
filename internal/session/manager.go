// Package session owns conversation state: the ordered message history, the
// ring progression, and the optimistic send/reconcile cycle against the
// remote coaching service.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dbbuilder-org/quento/internal/api"
	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/ring"
)

// ErrEmptyMessage is returned when a send contains no content.
var ErrEmptyMessage = errors.New("message content is empty")

// ErrNoSession is returned by operations that need an existing conversation.
var ErrNoSession = errors.New("no active conversation")

// localIDPrefix marks optimistic message ids that have not been confirmed.
const localIDPrefix = "local-"

// Gateway is the slice of the API client the manager depends on.
type Gateway interface {
	CreateConversation(ctx context.Context) (*domain.ConversationSession, error)
	GetConversation(ctx context.Context, id string) (*domain.ConversationSession, error)
	SendMessage(ctx context.Context, conversationID, content string) (*api.SendMessageResult, error)
	ListConversations(ctx context.Context, limit, offset int) ([]domain.ConversationSession, *api.Pagination, error)
	SetRingPhase(ctx context.Context, conversationID string, phase domain.RingPhase) (*domain.ConversationSession, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Saver persists the conversation pointer across restarts. Only the id and
// ring phase are durable; message history stays server-side.
type Saver interface {
	SaveConversationState(ctx context.Context, conversationID string, phase domain.RingPhase) error
}

// Manager owns one conversation session at a time. Sends are optimistic:
// the user message appears immediately with a temporary id and is either
// replaced by the server-confirmed exchange or retained as failed so the
// user can retry without retyping.
type Manager struct {
	gw     Gateway
	rings  *ring.Tracker
	repo   Saver // optional
	logger *slog.Logger

	mu      sync.Mutex
	sess    domain.ConversationSession
	lastErr error
}

// NewManager creates a session manager. repo may be nil to disable
// persistence; logger may be nil.
func NewManager(gw Gateway, rings *ring.Tracker, repo Saver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{gw: gw, rings: rings, repo: repo, logger: logger}
}

// Session returns a snapshot of the current conversation.
func (m *Manager) Session() domain.ConversationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.sess
	snap.Messages = append([]domain.Message(nil), m.sess.Messages...)
	return snap
}

// Messages returns a snapshot of the ordered message history.
func (m *Manager) Messages() []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.sess.Messages...)
}

// Phase returns the current ring phase.
func (m *Manager) Phase() domain.RingPhase {
	return m.rings.Phase()
}

// Hints returns the presentation hints for the current phase.
func (m *Manager) Hints() ring.Hints {
	return ring.PhaseHints(m.rings.Phase())
}

// Err returns the manager's last send/load error, or nil. Errors are kept
// per-manager so one subsystem's failure does not leak into another's view.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// SendMessage appends an optimistic user message, lazily creates the
// conversation if needed, submits the content, and reconciles the local
// history with the server-confirmed exchange. On failure the optimistic
// message is retained and marked failed. The assistant reply is returned on
// success.
func (m *Manager) SendMessage(ctx context.Context, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	tempID := m.appendPending(content)

	if err := m.ensureSession(ctx); err != nil {
		m.fail(tempID, err)
		return nil, err
	}

	m.mu.Lock()
	conversationID := m.sess.ID
	m.mu.Unlock()

	res, err := m.gw.SendMessage(ctx, conversationID, content)
	if err != nil {
		m.fail(tempID, err)
		return nil, err
	}

	assistant := m.confirmExchange(tempID, res)
	m.applyUpdate(ctx, res.SessionUpdate)
	return assistant, nil
}

// Retry resends a failed message in place, preserving its position in the
// history.
func (m *Manager) Retry(ctx context.Context, messageID string) (*domain.Message, error) {
	m.mu.Lock()
	var content string
	found := false
	for i := range m.sess.Messages {
		msg := &m.sess.Messages[i]
		if msg.ID == messageID && msg.Delivery == domain.DeliveryFailed {
			msg.Delivery = domain.DeliveryPending
			content = msg.Content
			found = true
			break
		}
	}
	conversationID := m.sess.ID
	m.mu.Unlock()

	if !found {
		return nil, fmt.Errorf("no failed message with id %s", messageID)
	}

	if err := m.ensureSession(ctx); err != nil {
		m.fail(messageID, err)
		return nil, err
	}
	if conversationID == "" {
		m.mu.Lock()
		conversationID = m.sess.ID
		m.mu.Unlock()
	}

	res, err := m.gw.SendMessage(ctx, conversationID, content)
	if err != nil {
		m.fail(messageID, err)
		return nil, err
	}

	assistant := m.confirmExchange(messageID, res)
	m.applyUpdate(ctx, res.SessionUpdate)
	return assistant, nil
}

// LoadSession replaces the in-memory history and ring phase wholesale from
// the server's canonical record. Used to rehydrate after restart or to jump
// into an existing conversation.
func (m *Manager) LoadSession(ctx context.Context, id string) error {
	detail, err := m.gw.GetConversation(ctx, id)
	if err != nil {
		m.setErr(err)
		return fmt.Errorf("load conversation %s: %w", id, err)
	}

	for i := range detail.Messages {
		detail.Messages[i].Delivery = domain.DeliveryConfirmed
	}

	m.mu.Lock()
	sameSession := m.sess.ID == detail.ID
	m.sess = *detail
	m.lastErr = nil
	m.mu.Unlock()

	if sameSession {
		// Same conversation: the local phase never regresses below the
		// server's report.
		m.rings.Sync(detail.RingPhase)
	} else {
		m.rings.Load(detail.RingPhase)
	}

	m.persist(ctx)
	m.logger.Info("Conversation loaded", "conversation_id", detail.ID, "messages", len(detail.Messages), "phase", m.rings.Phase())
	return nil
}

// List returns a page of the user's conversations.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]domain.ConversationSession, error) {
	items, _, err := m.gw.ListConversations(ctx, limit, offset)
	return items, err
}

// Delete removes the current conversation server-side and resets local
// state.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	id := m.sess.ID
	m.mu.Unlock()
	if id == "" {
		return ErrNoSession
	}
	if err := m.gw.DeleteConversation(ctx, id); err != nil {
		m.setErr(err)
		return err
	}
	m.mu.Lock()
	m.sess = domain.ConversationSession{}
	m.lastErr = nil
	m.mu.Unlock()
	m.rings.Load(domain.RingCore)
	return nil
}

// ensureSession lazily creates the conversation on first send. A creation
// failure aborts the send.
func (m *Manager) ensureSession(ctx context.Context) error {
	m.mu.Lock()
	started := m.sess.Started()
	m.mu.Unlock()
	if started {
		return nil
	}

	created, err := m.gw.CreateConversation(ctx)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}

	m.mu.Lock()
	m.sess.ID = created.ID
	m.sess.Title = created.Title
	m.sess.Status = created.Status
	m.sess.RingPhase = created.RingPhase
	m.sess.CreatedAt = created.CreatedAt
	m.mu.Unlock()

	m.rings.Sync(created.RingPhase)
	m.logger.Info("Conversation created", "conversation_id", created.ID)
	return nil
}

// appendPending appends the optimistic user message and returns its
// temporary id.
func (m *Manager) appendPending(content string) string {
	temp := domain.Message{
		ID:        localIDPrefix + uuid.NewString(),
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
		Metadata:  &domain.MessageMeta{RingPhase: m.rings.Phase()},
		Delivery:  domain.DeliveryPending,
	}
	m.mu.Lock()
	m.sess.Messages = append(m.sess.Messages, temp)
	m.mu.Unlock()
	return temp.ID
}

// confirmExchange atomically swaps the temporary message for the confirmed
// user echo and inserts the assistant reply directly after it. No observer
// ever sees both the temporary and confirmed message, or neither.
func (m *Manager) confirmExchange(tempID string, res *api.SendMessageResult) *domain.Message {
	user := res.UserMessage
	assistant := res.AssistantMessage
	user.Delivery = domain.DeliveryConfirmed
	assistant.Delivery = domain.DeliveryConfirmed

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.sess.Messages {
		if m.sess.Messages[i].ID == tempID {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Temp already reconciled (e.g. duplicate websocket echo); append
		// nothing.
		return &assistant
	}

	m.sess.Messages[idx] = user
	rest := append([]domain.Message{assistant}, m.sess.Messages[idx+1:]...)
	m.sess.Messages = append(m.sess.Messages[:idx+1], rest...)
	m.lastErr = nil

	out := assistant
	return &out
}

// confirmOldestPending reconciles a server-pushed exchange (websocket path)
// with the oldest pending optimistic message. If none is pending the pair
// is appended as-is (another client authored it).
func (m *Manager) confirmOldestPending(res *api.SendMessageResult) *domain.Message {
	m.mu.Lock()
	tempID := ""
	for i := range m.sess.Messages {
		if m.sess.Messages[i].Delivery == domain.DeliveryPending {
			tempID = m.sess.Messages[i].ID
			break
		}
	}
	if tempID == "" {
		user := res.UserMessage
		assistant := res.AssistantMessage
		user.Delivery = domain.DeliveryConfirmed
		assistant.Delivery = domain.DeliveryConfirmed
		m.sess.Messages = append(m.sess.Messages, user, assistant)
		m.mu.Unlock()
		out := assistant
		return &out
	}
	m.mu.Unlock()
	return m.confirmExchange(tempID, res)
}

// fail marks the optimistic message failed and records the error. The
// message is never silently discarded.
func (m *Manager) fail(tempID string, err error) {
	m.mu.Lock()
	for i := range m.sess.Messages {
		if m.sess.Messages[i].ID == tempID {
			m.sess.Messages[i].Delivery = domain.DeliveryFailed
			break
		}
	}
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Warn("Message send failed", "message_id", tempID, "error", err)
}

func (m *Manager) setErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// applyUpdate reacts to the server's per-exchange session signal: advance
// one phase when told to, otherwise make sure we are not behind the
// server's confirmed phase.
func (m *Manager) applyUpdate(ctx context.Context, update api.SessionUpdate) {
	if update.ShouldAdvance {
		m.rings.Advance()
	} else {
		m.rings.Sync(update.RingPhase)
	}

	m.mu.Lock()
	m.sess.RingPhase = m.rings.Phase()
	m.mu.Unlock()

	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	if m.repo == nil {
		return
	}
	m.mu.Lock()
	id := m.sess.ID
	m.mu.Unlock()
	if id == "" {
		return
	}
	if err := m.repo.SaveConversationState(ctx, id, m.rings.Phase()); err != nil {
		m.logger.Warn("Failed to persist conversation state", "error", err)
	}
}
