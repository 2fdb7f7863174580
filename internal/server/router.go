package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/steward-platform/apiserver/internal/auth"
	"github.com/steward-platform/apiserver/internal/handlers"
	"github.com/steward-platform/apiserver/internal/realtime"
	"github.com/steward-platform/apiserver/internal/services"
)

const requestTimeout = 60 * time.Second

// Deps is everything the HTTP surface needs.
type Deps struct {
	Users    *services.UserService
	Accounts *services.AccountService
	Tasks    *services.TaskService
	Issuer   *auth.Issuer
	Hub      *realtime.Hub
	Logger   *slog.Logger

	// Verbose returns internal error details to clients.
	Verbose bool
}

// NewRouter mounts every route on a fresh chi router.
func NewRouter(d Deps) *chi.Mux {
	authMiddleware := handlers.RequireAuth(d.Issuer, d.Logger)
	socket := realtime.NewServer(d.Hub, d.Accounts, d.Logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(d.Logger),
		middleware.Recoverer,
	)
	router.NotFound(handlers.NotFound)
	router.Get("/healthz", handlers.Healthz)

	// Websocket connections outlive any request timeout.
	router.With(handlers.RequireSocketAuth(d.Issuer, d.Logger)).Get("/ws", handlers.Socket(socket))

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, handlers.NewAuthHandler(d.Users, d.Issuer, d.Logger, d.Verbose), authMiddleware)
		})
		r.Route("/accounts", func(r chi.Router) {
			handlers.AccountRouter(r, handlers.NewAccountHandler(d.Accounts, d.Logger, d.Verbose), authMiddleware)
		})
		r.Route("/tasks", func(r chi.Router) {
			handlers.TaskRouter(r, handlers.NewTaskHandler(d.Tasks, d.Logger, d.Verbose), authMiddleware)
		})
	})

	return router
}

// slogFormatter binds chi's request logging to the process logger.
type slogFormatter struct {
	logger *slog.Logger
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.RequestLogger(&slogFormatter{logger: logger})
}

func (f *slogFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &slogEntry{logger: f.logger.With(
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"request_id", middleware.GetReqID(r.Context()),
	)}
}

type slogEntry struct {
	logger *slog.Logger
}

func (e *slogEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	e.logger.Info("http request", "status", status, "bytes", bytes, "duration_ms", elapsed.Milliseconds())
}

func (e *slogEntry) Panic(v any, stack []byte) {
	e.logger.Error("http panic", "panic", v, "stack", string(stack))
}
