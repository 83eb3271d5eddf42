package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbbuilder-org/quento/internal/api"
	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/ring"
)

// fakeGateway scripts the remote side of the send contract.
type fakeGateway struct {
	createErr error
	sendErr   error
	update    api.SessionUpdate

	created  int
	sent     []string
	detail   *domain.ConversationSession
	sequence int
}

func (f *fakeGateway) CreateConversation(context.Context) (*domain.ConversationSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &domain.ConversationSession{
		ID:        "conv-1",
		RingPhase: domain.RingCore,
		Status:    domain.ConversationActive,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeGateway) GetConversation(_ context.Context, id string) (*domain.ConversationSession, error) {
	if f.detail == nil {
		return nil, errors.New("not found")
	}
	detail := *f.detail
	detail.ID = id
	detail.Messages = append([]domain.Message(nil), f.detail.Messages...)
	return &detail, nil
}

func (f *fakeGateway) SendMessage(_ context.Context, conversationID, content string) (*api.SendMessageResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, content)
	f.sequence++
	return &api.SendMessageResult{
		UserMessage: domain.Message{
			ID:      fmt.Sprintf("srv-user-%d", f.sequence),
			Role:    domain.RoleUser,
			Content: content,
		},
		AssistantMessage: domain.Message{
			ID:      fmt.Sprintf("srv-assistant-%d", f.sequence),
			Role:    domain.RoleAssistant,
			Content: "reply to " + content,
		},
		SessionUpdate: f.update,
	}, nil
}

func (f *fakeGateway) ListConversations(context.Context, int, int) ([]domain.ConversationSession, *api.Pagination, error) {
	return nil, nil, nil
}

func (f *fakeGateway) SetRingPhase(_ context.Context, _ string, phase domain.RingPhase) (*domain.ConversationSession, error) {
	return &domain.ConversationSession{ID: "conv-1", RingPhase: phase}, nil
}

func (f *fakeGateway) DeleteConversation(context.Context, string) error {
	return nil
}

type fakeSaver struct {
	saves  int
	lastID string
	phase  domain.RingPhase
}

func (f *fakeSaver) SaveConversationState(_ context.Context, id string, phase domain.RingPhase) error {
	f.saves++
	f.lastID = id
	f.phase = phase
	return nil
}

func newTestManager(gw Gateway) (*Manager, *fakeSaver) {
	repo := &fakeSaver{}
	return NewManager(gw, ring.NewTracker(), repo, nil), repo
}

func TestSendMessageLazyCreatesAndConfirms(t *testing.T) {
	gw := &fakeGateway{}
	m, repo := newTestManager(gw)

	reply, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	assert.Equal(t, 1, gw.created)

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.True(t, msgs[0].Confirmed())
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	// No temporary id survives reconciliation.
	for _, msg := range msgs {
		assert.False(t, strings.HasPrefix(msg.ID, localIDPrefix), "message %s still temporary", msg.ID)
	}

	assert.Positive(t, repo.saves)
	assert.Equal(t, "conv-1", repo.lastID)
}

func TestSendMessageEmptyContent(t *testing.T) {
	m, _ := newTestManager(&fakeGateway{})
	_, err := m.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, m.Messages())
}

func TestSendFailureRetainsFailedMessage(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("network down")}
	m, _ := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "hello")
	require.Error(t, err)

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.DeliveryFailed, msgs[0].Delivery)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Error(t, m.Err())
}

func TestCreateFailureAbortsSend(t *testing.T) {
	gw := &fakeGateway{createErr: errors.New("service down")}
	m, _ := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, gw.sent, "message must not be submitted without a conversation")

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.DeliveryFailed, msgs[0].Delivery)
}

func TestRetryResendsInPlace(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("network down")}
	m, _ := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "first")
	require.Error(t, err)
	failedID := m.Messages()[0].ID

	gw.sendErr = nil
	reply, err := m.Retry(context.Background(), failedID)
	require.NoError(t, err)
	assert.Equal(t, "reply to first", reply.Content)

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Confirmed())
	assert.Equal(t, "first", msgs[0].Content)
}

func TestRetryUnknownMessage(t *testing.T) {
	m, _ := newTestManager(&fakeGateway{})
	_, err := m.Retry(context.Background(), "nope")
	assert.Error(t, err)
}

func TestOrderingPreservedAcrossFailure(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "one")
	require.NoError(t, err)

	gw.sendErr = errors.New("blip")
	_, err = m.SendMessage(context.Background(), "two")
	require.Error(t, err)

	gw.sendErr = nil
	_, err = m.SendMessage(context.Background(), "three")
	require.NoError(t, err)

	var contents []string
	for _, msg := range m.Messages() {
		if msg.Role == domain.RoleUser {
			contents = append(contents, msg.Content)
		}
	}
	assert.Equal(t, []string{"one", "two", "three"}, contents)

	msgs := m.Messages()
	for _, msg := range msgs {
		if msg.Content == "two" {
			assert.Equal(t, domain.DeliveryFailed, msg.Delivery)
		}
	}
}

func TestShouldAdvanceMovesRingOneStep(t *testing.T) {
	gw := &fakeGateway{update: api.SessionUpdate{RingPhase: domain.RingCore, ShouldAdvance: true}}
	m, repo := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, domain.RingDiscover, m.Phase())
	assert.Equal(t, domain.RingDiscover, m.Session().RingPhase)
	assert.Equal(t, domain.RingDiscover, repo.phase)
}

func TestServerPhaseSyncNeverRegresses(t *testing.T) {
	gw := &fakeGateway{update: api.SessionUpdate{RingPhase: domain.RingPlan}}
	m, _ := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.RingPlan, m.Phase())

	// A later, earlier-phase report is ignored.
	gw.update = api.SessionUpdate{RingPhase: domain.RingCore}
	_, err = m.SendMessage(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, domain.RingPlan, m.Phase())
}

func TestLoadSessionReplacesHistory(t *testing.T) {
	gw := &fakeGateway{detail: &domain.ConversationSession{
		RingPhase: domain.RingExecute,
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleUser, Content: "old"},
			{ID: "m2", Role: domain.RoleAssistant, Content: "older reply"},
		},
	}}
	m, repo := newTestManager(gw)

	require.NoError(t, m.LoadSession(context.Background(), "conv-9"))

	msgs := m.Messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.Equal(t, domain.DeliveryConfirmed, msg.Delivery)
	}
	assert.Equal(t, domain.RingExecute, m.Phase())
	assert.Equal(t, "conv-9", repo.lastID)
}

func TestDeleteResetsState(t *testing.T) {
	gw := &fakeGateway{}
	m, _ := newTestManager(gw)

	_, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	require.NoError(t, m.Delete(context.Background()))
	assert.Empty(t, m.Messages())
	assert.Equal(t, domain.RingCore, m.Phase())
	sess := m.Session()
	assert.False(t, sess.Started())

	assert.ErrorIs(t, m.Delete(context.Background()), ErrNoSession)
}

func TestHintsFollowPhase(t *testing.T) {
	gw := &fakeGateway{update: api.SessionUpdate{ShouldAdvance: true}}
	m, _ := newTestManager(gw)

	before := m.Hints()
	_, err := m.SendMessage(context.Background(), "hello")
	require.NoError(t, err)

	after := m.Hints()
	assert.NotEqual(t, before.Title, after.Title)
}
