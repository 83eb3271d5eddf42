// Quento - guided-growth coaching client.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dbbuilder-org/quento/internal/actions"
	"github.com/dbbuilder-org/quento/internal/analysis"
	"github.com/dbbuilder-org/quento/internal/api"
	"github.com/dbbuilder-org/quento/internal/config"
	"github.com/dbbuilder-org/quento/internal/domain"
	"github.com/dbbuilder-org/quento/internal/export"
	"github.com/dbbuilder-org/quento/internal/poller"
	"github.com/dbbuilder-org/quento/internal/ring"
	"github.com/dbbuilder-org/quento/internal/session"
	"github.com/dbbuilder-org/quento/internal/store"
)

const usage = `usage: quento <command> [args]

commands:
  register <email> <password>   create an account
  login <email> <password>      sign in
  logout                        sign out and clear local credentials
  status                        show account and session state
  chat                          interactive coaching chat (HTTP)
  stream                        interactive coaching chat (websocket)
  analyze <url>                 run a web-presence analysis
  strategy                      generate a strategy from the last analysis
  actions                       list the strategy's action items
  cycle <action-id>             advance an action item one status step
  export <format>               export the strategy (pdf|markdown|notion|trello)
`

// app bundles the wired subsystems for the command handlers.
type app struct {
	cfg      *config.Config
	repo     store.Repository
	client   *api.Client
	rings    *ring.Tracker
	sessions *session.Manager
	analyses *analysis.Manager
	acts     *actions.Manager
	logger   *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quento: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quento: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := a.repo.Close(); closeErr != nil {
			logger.Error("Failed to close state store", "error", closeErr)
		}
	}()

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "quento: %v\n", err)
		os.Exit(1)
	}
}

// wire builds the subsystem graph: store, credential rehydration, gateway,
// ring tracker and the three managers.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	repo, err := store.NewSQLite(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := repo.Ping(ctx); err != nil {
		return nil, fmt.Errorf("state store health check: %w", err)
	}

	var saved domain.Credentials
	if auth, err := repo.LoadCredentials(ctx); err != nil {
		logger.Warn("Failed to load persisted credentials", "error", err)
	} else if auth != nil {
		saved = auth.Credentials
	}

	creds := api.NewCredentialStore(saved, repo)
	client := api.New(api.Config{
		BaseURL: cfg.APIBaseURL,
		Timeout: cfg.HTTPTimeout,
		Logger:  logger,
	}, creds)

	rings := ring.NewTracker()
	if conv, err := repo.LoadConversationState(ctx); err != nil {
		logger.Warn("Failed to load persisted conversation state", "error", err)
	} else if conv != nil {
		rings.Load(conv.RingPhase)
	}

	poll := poller.Config{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
		Logger:   logger,
	}

	return &app{
		cfg:      cfg,
		repo:     repo,
		client:   client,
		rings:    rings,
		sessions: session.NewManager(client, rings, repo, logger),
		analyses: analysis.NewManager(client, poll, repo, logger),
		acts:     actions.NewManager(client, poll, repo, logger),
		logger:   logger,
	}, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return a.cmdRegister(ctx, args)
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout(ctx)
	case "status":
		return a.cmdStatus(ctx)
	case "chat":
		return a.cmdChat(ctx)
	case "stream":
		return a.cmdStream(ctx)
	case "analyze":
		return a.cmdAnalyze(ctx, args)
	case "strategy":
		return a.cmdStrategy(ctx)
	case "actions":
		return a.cmdActions(ctx)
	case "cycle":
		return a.cmdCycle(ctx, args)
	case "export":
		return a.cmdExport(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("register needs <email> <password>")
	}
	user, err := a.client.Register(ctx, api.RegisterRequest{Email: args[0], Password: args[1]})
	if err != nil {
		return err
	}
	fmt.Printf("Registered and signed in as %s\n", user.Email)
	return nil
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("login needs <email> <password>")
	}
	user, err := a.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", user.Email)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		// Credentials are cleared locally either way.
		a.logger.Warn("Server logout failed", "error", err)
	}
	fmt.Println("Signed out")
	return nil
}

func (a *app) cmdStatus(ctx context.Context) error {
	if !a.client.Credentials().Authenticated() {
		fmt.Println("Not signed in")
		return nil
	}
	user, err := a.client.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", user.Email)
	if conv, err := a.repo.LoadConversationState(ctx); err == nil && conv != nil {
		fmt.Printf("Conversation %s at phase %s\n", conv.ConversationID, conv.RingPhase)
	}
	if an, err := a.repo.LoadAnalysisState(ctx); err == nil && an != nil {
		fmt.Printf("Last analysis %s for %s\n", an.AnalysisID, an.WebsiteURL)
	}
	return nil
}

// resumeConversation rehydrates the persisted conversation, if any.
func (a *app) resumeConversation(ctx context.Context) {
	conv, err := a.repo.LoadConversationState(ctx)
	if err != nil || conv == nil {
		return
	}
	if err := a.sessions.LoadSession(ctx, conv.ConversationID); err != nil {
		a.logger.Warn("Could not resume conversation, starting fresh", "error", err)
	}
}

func (a *app) cmdChat(ctx context.Context) error {
	a.resumeConversation(ctx)
	printHints(a.sessions.Hints())

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		default:
			reply, err := a.sessions.SendMessage(ctx, line)
			if err != nil {
				fmt.Printf("(send failed: %v - message kept for retry)\n", err)
				break
			}
			fmt.Printf("[%s] %s\n", a.sessions.Phase(), reply.Content)
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func (a *app) cmdStream(ctx context.Context) error {
	a.resumeConversation(ctx)
	if _, err := a.sessions.SendMessage(ctx, "Hello"); err != nil {
		// A first exchange forces lazy conversation creation before dialing.
		return fmt.Errorf("open conversation: %w", err)
	}

	stream, err := a.sessions.Connect(ctx, a.cfg.WSBaseURL, a.client.Credentials().Get().AccessToken, func(typing bool) {
		if typing {
			fmt.Println("(coach is typing...)")
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			a.logger.Warn("Stream close failed", "error", closeErr)
		}
	}()

	printHints(a.sessions.Hints())
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		default:
			if err := stream.Send(ctx, line); err != nil {
				fmt.Printf("(send failed: %v - message kept for retry)\n", err)
			}
		}
		fmt.Print("> ")
	}
	return scanner.Err()
}

func (a *app) cmdAnalyze(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("analyze needs <url>")
	}
	sessionID := a.sessions.Session().ID

	if _, err := a.analyses.Start(ctx, args[0], sessionID); err != nil {
		return err
	}
	job, err := a.analyses.Await(ctx, func(progress int, step string) {
		fmt.Printf("  %3d%%  %s\n", progress, step)
	})
	if err != nil {
		if errors.Is(err, poller.ErrTimeout) {
			fmt.Println("Analysis is taking longer than expected; run `quento status` later or try again.")
			return nil
		}
		return err
	}
	fmt.Printf("Analysis complete: overall score %d\n", job.Results.OverallScore)
	for _, win := range job.Results.QuickWins {
		fmt.Printf("  quick win: %s\n", win)
	}
	return nil
}

func (a *app) cmdStrategy(ctx context.Context) error {
	an, err := a.repo.LoadAnalysisState(ctx)
	if err != nil {
		return err
	}
	if an == nil {
		return errors.New("no analysis yet; run `quento analyze <url>` first")
	}

	st, err := a.acts.Generate(ctx, an.AnalysisID, a.sessions.Session().ID, func(progress int, step string) {
		fmt.Printf("  %3d%%  %s\n", progress, step)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Strategy ready: %s (%d action items)\n", st.Title, len(st.ActionItems))
	return nil
}

func (a *app) cmdActions(ctx context.Context) error {
	st, err := a.loadStrategy(ctx)
	if err != nil {
		return err
	}
	for _, item := range st.ActionItems {
		fmt.Printf("%-36s  %-12s  %s\n", item.ID, item.Status, item.Title)
	}
	return nil
}

func (a *app) cmdCycle(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("cycle needs <action-id>")
	}
	if _, err := a.loadStrategy(ctx); err != nil {
		return err
	}
	item, err := a.acts.CycleStatus(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %s\n", item.Title, item.Status)
	return nil
}

func (a *app) cmdExport(ctx context.Context, args []string) error {
	if len(args) < 1 || !export.ValidFormat(args[0]) {
		return errors.New("export needs a format: pdf, markdown, notion or trello")
	}
	st, err := a.loadStrategy(ctx)
	if err != nil {
		return err
	}

	if args[0] == export.FormatMarkdown {
		// Render locally; the strategy snapshot is already canonical.
		fmt.Print(export.Markdown(st))
		return nil
	}

	res, err := a.acts.Export(ctx, args[0], nil)
	if err != nil {
		return err
	}
	if res.URL != "" {
		fmt.Printf("Export ready: %s\n", res.URL)
	} else {
		fmt.Print(res.Content)
	}
	return nil
}

// loadStrategy returns the in-memory strategy, rehydrating from the
// persisted snapshot when the process has just started.
func (a *app) loadStrategy(ctx context.Context) (*domain.Strategy, error) {
	if st := a.acts.Strategy(); st != nil {
		return st, nil
	}
	snap, err := a.repo.LoadStrategySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("no strategy yet; run `quento strategy` first")
	}
	return a.acts.Load(ctx, snap.ID)
}

func printHints(h ring.Hints) {
	fmt.Printf("-- %s --\n", h.Title)
	for _, q := range h.QuickReplies {
		fmt.Printf("   try: %s\n", q)
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
