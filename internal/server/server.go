package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/steward-platform/apiserver/config"
	"github.com/steward-platform/apiserver/internal/auth"
	"github.com/steward-platform/apiserver/internal/cipher"
	"github.com/steward-platform/apiserver/internal/db"
	"github.com/steward-platform/apiserver/internal/mq"
	"github.com/steward-platform/apiserver/internal/realtime"
	"github.com/steward-platform/apiserver/internal/services"
	"github.com/steward-platform/apiserver/internal/store"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server, router and the optional event relay.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	relay      *realtime.Relay
	broker     *mq.MQ
	logger     *slog.Logger
}

// New connects every dependency named by cfg and builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ttl, err := auth.ParseTTL(cfg.Auth.JWTExpiresIn)
	if err != nil {
		return nil, fmt.Errorf("JWT_EXPIRES_IN: %w", err)
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	credentials := cipher.New(cfg.Auth.EncryptionKey)
	if credentials.Normalized() {
		logger.Warn("ENCRYPTION_KEY is not 32 bytes; it was padded or truncated")
	}

	userRepo := store.NewUserRepository(dbConn)
	accountRepo := store.NewAccountRepository(dbConn)
	taskRepo := store.NewTaskRepository(dbConn)

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, ttl)
	logger.Info("token issuer configured", "ttl", issuer.TTL())

	hub := realtime.NewHub(logger)

	var (
		relay  *realtime.Relay
		broker *mq.MQ
	)
	if cfg.Realtime.Relay != "" {
		instance := uuid.NewString()
		broker, err = mq.Open(ctx, cfg.Realtime, instance)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		relay = realtime.NewRelay(hub, broker, cfg.Realtime.Channel, instance, logger)
		logger.Info("realtime relay enabled", "backend", broker.Name(), "channel", cfg.Realtime.Channel, "instance", instance)
	}

	router := NewRouter(Deps{
		Users:    services.NewUserService(userRepo, logger),
		Accounts: services.NewAccountService(accountRepo, userRepo, credentials, hub, logger),
		Tasks:    services.NewTaskService(taskRepo, accountRepo, userRepo, hub, logger),
		Issuer:   issuer,
		Hub:      hub,
		Logger:   logger,
		Verbose:  cfg.Dev(),
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		relay:      relay,
		broker:     broker,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start serves HTTP and runs the relay until ctx is cancelled or either
// fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	if s.relay != nil {
		g.Go(func() error {
			return s.relay.Run(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return s.Shutdown()
	})

	return g.Wait()
}

// Shutdown drains in-flight requests and releases the database and broker.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.broker != nil {
		err = errors.Join(err, s.broker.Close())
	}
	if s.db != nil {
		err = errors.Join(err, s.db.Close())
	}
	return err
}
