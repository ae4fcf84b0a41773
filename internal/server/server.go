// Package server exposes byte over HTTP: token-based auth, thread and
// history queries, a synchronous chat endpoint, an SSE stream, and the
// WebSocket chat channel the web client uses.
//
// Endpoints:
//
//	POST /auth/signup        create an account, returns a bearer token
//	POST /auth/login         exchange credentials for a bearer token
//	GET  /auth/me            identify the calling user
//	GET  /chat/threads       list the user's threads
//	GET  /chat/threads/{id}  one thread's conversation log
//	GET  /chat/history       recent messages across all threads
//	GET  /tools/history      recent tool invocations
//	POST /tools/history      record a tool invocation
//	POST /chat               one synchronous exchange
//	POST /chat/stream        one exchange as Server-Sent Events
//	GET  /ws/chat            persistent WebSocket chat channel
//	GET  /health             liveness probe
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bytesec/byte/internal/auth"
	"github.com/bytesec/byte/internal/chat"
	"github.com/bytesec/byte/internal/log"
	"github.com/bytesec/byte/internal/thread"
	"github.com/bytesec/byte/internal/user"
)

const (
	// DefaultAddr is where the server listens when none is configured.
	DefaultAddr = ":8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout = 10 * time.Second

	// IdleTimeout bounds keep-alive connections between requests.
	IdleTimeout = 120 * time.Second
)

var (
	// ErrNilAuth indicates the server was built without a token manager.
	ErrNilAuth = errors.New("server: auth manager is required")

	// ErrNilUsers indicates the server was built without a user directory.
	ErrNilUsers = errors.New("server: user directory is required")

	// ErrNilThreads indicates the server was built without a thread reader.
	ErrNilThreads = errors.New("server: thread reader is required")

	// ErrNilChat indicates the server was built without a chat service.
	ErrNilChat = errors.New("server: chat service is required")
)

// UserDirectory is the slice of the user store the server needs.
// *user.Store satisfies it.
type UserDirectory interface {
	Create(ctx context.Context, email, name, passwordHash string) (*user.User, error)
	GetByEmail(ctx context.Context, email string) (*user.User, error)
}

// ThreadReader serves the thread and history endpoints. *thread.Store
// satisfies it.
type ThreadReader interface {
	List(ctx context.Context, userID int64) ([]thread.Thread, error)
	Logs(ctx context.Context, userID int64, threadID string) ([]thread.LogEntry, error)
	RecentLogs(ctx context.Context, userID int64, limit int) ([]thread.LogEntry, error)
	ToolHistory(ctx context.Context, userID int64, limit int) ([]thread.ToolRecord, error)
	RecordToolUse(ctx context.Context, userID int64, toolName, input, output string) error
}

// ChatService runs assistant exchanges. *chat.Service satisfies it.
type ChatService interface {
	Stream(ctx context.Context, req chat.Request) (*chat.Exchange, error)
	Respond(ctx context.Context, req chat.Request) (*chat.Reply, error)
}

// Config assembles a Server.
type Config struct {
	Addr    string
	Auth    *auth.Manager
	Users   UserDirectory
	Threads ThreadReader
	Chat    ChatService
	Logger  log.Logger
}

// Server is byte's HTTP front end.
type Server struct {
	addr    string
	router  chi.Router
	auth    *auth.Manager
	users   UserDirectory
	threads ThreadReader
	chat    ChatService
	logger  log.Logger
}

// New validates the config, builds the server, and registers all routes.
func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil {
		return nil, ErrNilAuth
	}
	if cfg.Users == nil {
		return nil, ErrNilUsers
	}
	if cfg.Threads == nil {
		return nil, ErrNilThreads
	}
	if cfg.Chat == nil {
		return nil, ErrNilChat
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		addr:    cfg.Addr,
		auth:    cfg.Auth,
		users:   cfg.Users,
		threads: cfg.Threads,
		chat:    cfg.Chat,
		logger:  cfg.Logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoverer, s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/signup", s.handleSignup)
	r.Post("/auth/login", s.handleLogin)

	// The WebSocket handshake cannot carry an Authorization header from a
	// browser, so it authenticates via query parameter inside the handler.
	r.Get("/ws/chat", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/me", s.handleMe)
		r.Get("/chat/threads", s.handleListThreads)
		r.Get("/chat/threads/{threadID}", s.handleThreadLogs)
		r.Get("/chat/history", s.handleHistory)
		r.Get("/tools/history", s.handleToolHistory)
		r.Post("/tools/history", s.handleRecordToolUse)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)
	})

	return r
}

// Handler returns the fully wired HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
