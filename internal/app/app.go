// Package app wires byte's components into a runnable application: config,
// logging, PostgreSQL, the Gemini client, the capability set, the dialogue
// loop, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/bytesec/byte/db"
	"github.com/bytesec/byte/internal/agent"
	"github.com/bytesec/byte/internal/auth"
	"github.com/bytesec/byte/internal/chat"
	"github.com/bytesec/byte/internal/config"
	"github.com/bytesec/byte/internal/gemini"
	"github.com/bytesec/byte/internal/knowledge"
	"github.com/bytesec/byte/internal/log"
	"github.com/bytesec/byte/internal/security"
	"github.com/bytesec/byte/internal/server"
	"github.com/bytesec/byte/internal/thread"
	"github.com/bytesec/byte/internal/tools"
	"github.com/bytesec/byte/internal/user"
)

// modelRequestsPerSecond paces calls to the Gemini API across all users.
const modelRequestsPerSecond = 5

// App holds every long-lived component of a running byte instance.
type App struct {
	cfg    *config.Config
	logger log.Logger

	pool      *pgxpool.Pool
	gemini    *gemini.Client
	users     *user.Store
	threads   *thread.Store
	knowledge *knowledge.Store
	loop      *agent.Loop
	chat      *chat.Service
	server    *server.Server
}

// New builds the full application from configuration. Migrations run before
// any store touches the database.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}

	if err := db.Migrate(cfg.DatabaseURL(), logger); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	app, err := build(ctx, cfg, logger, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return app, nil
}

func build(ctx context.Context, cfg *config.Config, logger log.Logger, pool *pgxpool.Pool) (*App, error) {
	model, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:        cfg.GeminiAPIKey,
		Model:         cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	users := user.NewStore(pool, logger)
	threads := thread.NewStore(pool, logger)
	kb := knowledge.NewStore(pool, model, logger)

	dispatcher := agent.NewDispatcher(logger, capabilities(cfg, users, kb)...)

	loop, err := agent.NewLoop(agent.Config{
		Model:          model,
		Dispatcher:     dispatcher,
		Logger:         logger,
		MaxIterations:  cfg.MaxIterations,
		ThinkingBudget: cfg.ThinkingBudget,
		RateLimiter:    rate.NewLimiter(rate.Limit(modelRequestsPerSecond), modelRequestsPerSecond),
		Breaker:        agent.NewCircuitBreaker(agent.CircuitBreakerConfig{}),
	})
	if err != nil {
		return nil, fmt.Errorf("create dialogue loop: %w", err)
	}

	chatSvc, err := chat.NewService(chat.Config{
		Loop:      loop,
		Threads:   threads,
		Profiles:  users,
		ToolNames: dispatcher.Names(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat service: %w", err)
	}

	srv, err := server.New(server.Config{
		Addr:    cfg.ServerAddr,
		Auth:    auth.NewManager(cfg.JWTSecret, auth.DefaultTokenTTL),
		Users:   users,
		Threads: threads,
		Chat:    chatSvc,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create HTTP server: %w", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		gemini:    model,
		users:     users,
		threads:   threads,
		knowledge: kb,
		loop:      loop,
		chat:      chatSvc,
		server:    srv,
	}, nil
}

// capabilities assembles the tool set in the order it is announced to the
// model. Outbound requests go through the SSRF guard: lookup targets are
// model-chosen, so redirects and DNS answers are not trusted.
func capabilities(cfg *config.Config, users *user.Store, kb *knowledge.Store) []agent.Tool {
	guard := security.NewURLGuard()
	client := &http.Client{
		Timeout:       agent.DefaultToolTimeout,
		Transport:     guard.Transport(),
		CheckRedirect: guard.CheckRedirect,
	}
	return []agent.Tool{
		tools.NewVirusTotal(cfg.VirusTotalAPIKey, client, ""),
		tools.NewGreyNoise(cfg.GreyNoiseAPIKey, client, ""),
		tools.NewWhoisXML(cfg.WhoisXMLAPIKey, client, ""),
		tools.NewPhishTank(cfg.PhishTankAPIKey, client, ""),
		tools.NewShodan(cfg.ShodanAPIKey, client, ""),
		tools.NewKnowledgeQuery(kb, cfg.KnowledgeTopK),
		tools.NewProfileUpdate(users),
	}
}

// Knowledge exposes the knowledge store for the ingest command.
func (a *App) Knowledge() *knowledge.Store {
	return a.knowledge
}

// Run serves HTTP until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("byte starting",
		"model", a.cfg.ModelName,
		"addr", a.cfg.ServerAddr,
		"max_iterations", a.cfg.MaxIterations)
	return a.server.Run(ctx)
}

// Close releases the application's long-lived resources.
func (a *App) Close() {
	a.pool.Close()
}
