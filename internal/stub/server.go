// Package stub is an in-memory rendition of the Quento coaching service,
// used for local development and end-to-end tests of the client. It speaks
// the same REST envelope and chat stream contract as the real service but
// keeps all state in process and scripts its long-running jobs.
package stub

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dbbuilder-org/quento/internal/config"
	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/middleware"
)

// account is a registered user plus its password and live refresh token.
type account struct {
	user         domain.User
	password     string
	refreshToken string
}

// conversation is one chat session plus the advance heuristic's counter.
type conversation struct {
	sess            domain.ConversationSession
	ownerID         string
	userMsgsInPhase int
}

// analysisRun scripts an analysis job: each status poll advances it one
// step until the script runs out and the job completes.
type analysisRun struct {
	job     domain.AnalysisJob
	ownerID string
	step    int
}

// strategyRun scripts strategy generation the same way.
type strategyRun struct {
	strategy domain.Strategy
	ownerID  string
	polls    int
}

// Server is the stub coaching service.
type Server struct {
	cfg    config.StubConfig
	logger *slog.Logger

	mu            sync.Mutex
	accounts      map[string]*account // keyed by email
	conversations map[string]*conversation
	analyses      map[string]*analysisRun
	strategies    map[string]*strategyRun
}

// NewServer creates a stub service. logger may be nil.
func NewServer(cfg config.StubConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:           cfg,
		logger:        logger,
		accounts:      make(map[string]*account),
		conversations: make(map[string]*conversation),
		analyses:      make(map[string]*analysisRun),
		strategies:    make(map[string]*strategyRun),
	}
}

// Router builds the full HTTP surface under /api/v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Post("/chat/conversations", s.handleCreateConversation)
			r.Get("/chat/conversations", s.handleListConversations)
			r.Get("/chat/conversations/{id}", s.handleGetConversation)
			r.Delete("/chat/conversations/{id}", s.handleDeleteConversation)
			r.Post("/chat/conversations/{id}/messages", s.handleSendMessage)
			r.Patch("/chat/conversations/{id}/ring", s.handleSetRingPhase)

			r.Post("/analysis", s.handleStartAnalysis)
			r.Get("/analysis", s.handleListAnalyses)
			r.Get("/analysis/{id}", s.handleGetAnalysis)
			r.Get("/analysis/{id}/status", s.handleAnalysisStatus)

			r.Post("/strategy/generate", s.handleGenerateStrategy)
			r.Get("/strategy", s.handleListStrategies)
			r.Get("/strategy/{id}", s.handleGetStrategy)
			r.Post("/strategy/{id}/export", s.handleExportStrategy)
			r.Patch("/strategy/actions", s.handleBatchUpdateActions)
			r.Patch("/strategy/actions/{actionID}", s.handleUpdateAction)
		})

		// The chat stream authenticates via query parameter, not header.
		r.Get("/ws/chat/{id}", s.handleChatStream)
	})

	return r
}
