package stub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbbuilder-org/quento/internal/api"
	"github.com/dbbuilder-org/quento/internal/config"
	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/ring"
	"github.com/dbbuilder-org/quento/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *api.Client) {
	t.Helper()
	srv := httptest.NewServer(NewServer(config.StubConfig{
		JWTSecret:      "test-secret",
		AccessTokenTTL: time.Minute,
		Typing:         true,
	}, nil).Router())
	t.Cleanup(srv.Close)

	creds := api.NewCredentialStore(domain.Credentials{}, nil)
	client := api.New(api.Config{BaseURL: srv.URL + "/api/v1", Timeout: 5 * time.Second}, creds)
	return srv, client
}

func register(t *testing.T, client *api.Client) *domain.User {
	t.Helper()
	user, err := client.Register(context.Background(), api.RegisterRequest{
		Email:    "kim@example.com",
		Password: "hunter2",
		FullName: "Kim Doe",
	})
	require.NoError(t, err)
	return user
}

func TestAuthFlow(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	user := register(t, client)
	assert.Equal(t, "kim@example.com", user.Email)
	assert.True(t, client.Credentials().Authenticated())

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)

	// Wrong password is a typed auth failure.
	_, err = client.Login(ctx, "kim@example.com", "wrong")
	var ae *api.AuthError
	require.ErrorAs(t, err, &ae)

	_, err = client.Login(ctx, "kim@example.com", "hunter2")
	require.NoError(t, err)

	require.NoError(t, client.Logout(ctx))
	assert.False(t, client.Credentials().Authenticated())
}

func TestGarbledAccessTokenRecoversViaRefresh(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()

	register(t, client)
	good := client.Credentials().Get()

	// Simulate an expired access token with a live refresh token.
	client.Credentials().Set(ctx, domain.Credentials{
		AccessToken:  "expired-garbage",
		RefreshToken: good.RefreshToken,
	})

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", me.Email)
	assert.NotEqual(t, "expired-garbage", client.Credentials().Get().AccessToken)
}

func TestConversationLifecycle(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	register(t, client)

	conv, err := client.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RingCore, conv.RingPhase)

	// The advance heuristic fires on the third user message.
	for i := 0; i < 2; i++ {
		res, err := client.SendMessage(ctx, conv.ID, "tell you about my business")
		require.NoError(t, err)
		assert.False(t, res.SessionUpdate.ShouldAdvance)
		assert.Equal(t, domain.RingCore, res.SessionUpdate.RingPhase)
	}
	res, err := client.SendMessage(ctx, conv.ID, "and one more thing")
	require.NoError(t, err)
	assert.True(t, res.SessionUpdate.ShouldAdvance)
	assert.Equal(t, domain.RingDiscover, res.SessionUpdate.RingPhase)
	assert.Equal(t, domain.RoleAssistant, res.AssistantMessage.Role)

	detail, err := client.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Messages, 6)
	assert.Equal(t, domain.RingDiscover, detail.RingPhase)

	updated, err := client.SetRingPhase(ctx, conv.ID, domain.RingPlan)
	require.NoError(t, err)
	assert.Equal(t, domain.RingPlan, updated.RingPhase)

	list, page, err := client.ListConversations(ctx, 10, 0)
	require.NoError(t, err)
	require.NotNil(t, page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Messages, "list view omits message bodies")

	require.NoError(t, client.DeleteConversation(ctx, conv.ID))
	_, err = client.GetConversation(ctx, conv.ID)
	re, ok := api.IsRequestError(err)
	require.True(t, ok)
	assert.True(t, re.NotFound())
}

func TestAnalysisAndStrategyPipeline(t *testing.T) {
	_, client := newTestServer(t)
	ctx := context.Background()
	register(t, client)

	job, err := client.StartAnalysis(ctx, api.StartAnalysisRequest{WebsiteURL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, domain.AnalysisPending, job.Status)

	// Strategy generation refuses an incomplete analysis.
	_, err = client.GenerateStrategy(ctx, api.GenerateStrategyRequest{AnalysisID: job.ID})
	re, ok := api.IsRequestError(err)
	require.True(t, ok)
	assert.Equal(t, "analysis_incomplete", re.Code)

	// Each status poll advances the scripted pipeline.
	var last domain.AnalysisStatus
	lastProgress := -1
	for i := 0; i < 10; i++ {
		st, err := client.AnalysisStatus(ctx, job.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, st.Progress, lastProgress, "progress must not regress")
		lastProgress = st.Progress
		last = st.Status
		if st.Status.Terminal() {
			break
		}
	}
	require.Equal(t, domain.AnalysisCompleted, last)

	full, err := client.GetAnalysis(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, full.Results)
	assert.Positive(t, full.Results.OverallScore)
	assert.NotEmpty(t, full.Results.QuickWins)

	st, err := client.GenerateStrategy(ctx, api.GenerateStrategyRequest{AnalysisID: job.ID})
	require.NoError(t, err)
	assert.True(t, st.Status.Generating())

	for i := 0; i < 5 && st.Status.Generating(); i++ {
		st, err = client.GetStrategy(ctx, st.ID)
		require.NoError(t, err)
	}
	require.Equal(t, domain.StrategyDraft, st.Status)
	require.NotEmpty(t, st.ActionItems)

	// Single update resolves completion with a timestamp.
	item, err := client.UpdateAction(ctx, st.ActionItems[0].ID, domain.ActionCompleted, "")
	require.NoError(t, err)
	assert.NotNil(t, item.CompletedAt)

	// Batch updates are validated before anything is touched.
	_, err = client.BatchUpdateActions(ctx, []api.ActionUpdate{
		{ActionID: st.ActionItems[1].ID, Status: domain.ActionInProgress},
		{ActionID: "missing", Status: domain.ActionInProgress},
	})
	require.Error(t, err)
	fresh, err := client.GetStrategy(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, fresh.Action(st.ActionItems[1].ID).Status)

	out, err := client.BatchUpdateActions(ctx, []api.ActionUpdate{
		{ActionID: st.ActionItems[1].ID, Status: domain.ActionInProgress},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.ActionInProgress, out[0].Status)

	md, err := client.ExportStrategy(ctx, st.ID, "markdown", nil)
	require.NoError(t, err)
	assert.Contains(t, md.Content, "# Growth Strategy")
	assert.Equal(t, "text/markdown", md.ContentType)

	pdf, err := client.ExportStrategy(ctx, st.ID, "pdf", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, pdf.URL)

	_, err = client.ExportStrategy(ctx, st.ID, "docx", nil)
	require.Error(t, err)
}

func TestChatStreamEndToEnd(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()
	register(t, client)

	mgr := session.NewManager(client, ring.NewTracker(), nil, nil)

	// First exchange over HTTP forces conversation creation.
	_, err := mgr.SendMessage(ctx, "hello over http")
	require.NoError(t, err)

	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	typing := make(chan bool, 8)
	stream, err := mgr.Connect(ctx, wsBase, client.Credentials().Get().AccessToken, func(on bool) {
		typing <- on
	})
	require.NoError(t, err)
	defer func() {
		require.NoError(t, stream.Close())
	}()

	require.NoError(t, stream.Send(ctx, "hello over the stream"))

	// The optimistic message reconciles asynchronously via the read loop.
	require.Eventually(t, func() bool {
		msgs := mgr.Messages()
		if len(msgs) != 4 {
			return false
		}
		for _, m := range msgs {
			if !m.Confirmed() {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "stream exchange never reconciled")

	select {
	case on := <-typing:
		assert.True(t, on)
	case <-time.After(2 * time.Second):
		t.Fatal("typing indicator never arrived")
	}

	msgs := mgr.Messages()
	assert.Equal(t, "hello over the stream", msgs[2].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[3].Role)
}

func TestStreamRejectsBadToken(t *testing.T) {
	srv, client := newTestServer(t)
	ctx := context.Background()
	register(t, client)

	mgr := session.NewManager(client, ring.NewTracker(), nil, nil)
	_, err := mgr.SendMessage(ctx, "hello")
	require.NoError(t, err)

	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	_, err = mgr.Connect(ctx, wsBase, "bad-token", nil)
	require.Error(t, err, "handshake must fail without a valid token")
}
