package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lumakit/relay"
	"github.com/lumakit/relay/api/handlers"
	"github.com/lumakit/relay/config"
	"github.com/lumakit/relay/delegation"
	"github.com/lumakit/relay/internal/database"
	"github.com/lumakit/relay/internal/server"
	"github.com/lumakit/relay/interrupt"
)

// Server wires the relay core to its HTTP and metrics listeners.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	core           *relay.Core
	redisStore     *interrupt.RedisStore
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer creates an unstarted server.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// Start builds the core and brings up both listeners.
func (s *Server) Start() error {
	store, err := s.buildStore()
	if err != nil {
		return fmt.Errorf("build interrupt store: %w", err)
	}

	bud, err := s.cfg.Budget.Resolve()
	if err != nil {
		return fmt.Errorf("resolve budget: %w", err)
	}

	s.core, err = relay.New(
		relay.WithLogger(s.logger),
		relay.WithInterruptStore(store),
		relay.WithBudget(bud),
		relay.WithDelegationConfig(delegation.Config{
			Timeout:         s.cfg.Delegation.Timeout,
			HistoryTTL:      s.cfg.Delegation.HistoryTTL,
			KeyIncludesTask: s.cfg.Delegation.KeyIncludesTask,
		}),
	)
	if err != nil {
		return fmt.Errorf("build core: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// buildStore selects the durable interrupt store: Redis when enabled,
// otherwise the configured SQL database.
func (s *Server) buildStore() (interrupt.DurableStore, error) {
	if s.cfg.Redis.Enabled {
		store, err := interrupt.NewRedisStore(interrupt.RedisConfig{
			Addr:      s.cfg.Redis.Addr,
			Password:  s.cfg.Redis.Password,
			DB:        s.cfg.Redis.DB,
			KeyPrefix: s.cfg.Redis.KeyPrefix,
			TTL:       s.cfg.Redis.TTL,
		}, s.logger)
		if err != nil {
			return nil, err
		}
		s.redisStore = store
		s.logger.Info("interrupt store: redis", zap.String("addr", s.cfg.Redis.Addr))
		return store, nil
	}

	db, err := database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), database.DefaultPoolConfig(), s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("interrupt store: database", zap.String("driver", s.cfg.Database.Driver))
	return interrupt.NewGormStore(db, s.logger)
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	limiter := rate.NewLimiter(rate.Limit(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst)
	handlers.NewInterruptHandler(s.core.Interrupts, s.logger, limiter).Register(mux)
	handlers.NewDelegationHandler(s.core.Coordinator, s.logger).Register(mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteSuccess(w, map[string]string{"status": "ok", "version": Version})
	})

	s.httpManager = server.NewManager(
		handlers.RequestLogger(s.logger, mux),
		server.Config{
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.WriteTimeout,
			IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		},
		s.logger,
	)
	return s.httpManager.Start()
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{},
	))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	return s.metricsManager.Start()
}

// WaitForShutdown blocks until a signal arrives, then shuts everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops both listeners and closes the store.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")
	ctx := context.Background()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
	if s.redisStore != nil {
		if err := s.redisStore.Close(); err != nil {
			s.logger.Error("redis store close error", zap.Error(err))
		}
	}

	s.logger.Info("graceful shutdown completed")
}
