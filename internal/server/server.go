package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/wallet-ledger/internal/config"
	"github.com/congo-pay/wallet-ledger/internal/middleware"
	"github.com/congo-pay/wallet-ledger/internal/routes"
)

// Server wraps the Fiber application, shared dependencies and the
// background workers that expire holds and reconcile settlements.
type Server struct {
	app        *fiber.App
	cfg        config.Config
	logger     *slog.Logger
	components *components

	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New builds every component and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	comps, err := build(cfg, db, cache, logger)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: middleware.ErrorHandler(logger),
	})

	if err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Identity: comps.identity,
		Tokens:   comps.tokens,
		Wallet:   comps.wallet,
		Savings:  comps.savings,
		Webhooks: comps.webhooks,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, logger: logger, components: comps}, nil
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start launches the hold sweeper and the reconciliation poller. They stop
// when ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.workers.Add(2)
	go func() {
		defer s.workers.Done()
		s.components.holds.Run(ctx, s.cfg.HoldSweepInterval)
	}()
	go func() {
		defer s.workers.Done()
		s.components.reconciler.Run(ctx, s.cfg.ReconcileInterval, s.cfg.ReconcileAfter)
	}()
	s.logger.Info("background workers started",
		slog.Duration("hold_sweep_interval", s.cfg.HoldSweepInterval),
		slog.Duration("reconcile_interval", s.cfg.ReconcileInterval))
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server, then the workers, then flushes
// the notifiers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.workers.Wait()
	for _, closeFn := range s.components.closers {
		if cerr := closeFn(); cerr != nil {
			s.logger.Warn("close component", slog.Any("error", cerr))
		}
	}
	return err
}
