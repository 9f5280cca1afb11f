package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgov/api/handlers"
	"github.com/BaSui01/agentgov/config"
	"github.com/BaSui01/agentgov/evaluator"
	"github.com/BaSui01/agentgov/events"
	"github.com/BaSui01/agentgov/internal/metrics"
	"github.com/BaSui01/agentgov/internal/scheduler"
	"github.com/BaSui01/agentgov/internal/server"
	"github.com/BaSui01/agentgov/notify"
	"github.com/BaSui01/agentgov/penalty"
	"github.com/BaSui01/agentgov/retraining"
	"github.com/BaSui01/agentgov/store"
)

// Server assembles the governance core and serves its API on two ports:
// the governance API plus the WebSocket notification endpoint on one, the
// Prometheus scrape endpoint on the other.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler     *handlers.HealthHandler
	governanceHandler *handlers.GovernanceHandler

	collector  *metrics.Collector
	archive    *store.Archive
	exchange   events.Exchange
	dispatcher *events.Dispatcher
	hub        *notify.Hub
	sched      *scheduler.Scheduler
	retrainer  *retraining.Manager
	governor   *penalty.Manager

	// monitor supplies raw fleet metrics; nil disables periodic evaluation
	// until a caller wires one in.
	monitor penalty.MonitorSource

	rateLimiterCancel context.CancelFunc
	wg                sync.WaitGroup
}

// NewServer creates the server. monitor may be nil; the API and sweep still
// run, but fleet-wide evaluation stays idle.
func NewServer(cfg *config.Config, monitor penalty.MonitorSource, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		monitor: monitor,
		logger:  logger,
	}
}

// Governor exposes the assembled penalty manager for embedded callers.
func (s *Server) Governor() *penalty.Manager {
	return s.governor
}

// Start brings everything up: collaborators, governance core, HTTP and
// metrics servers.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("agentgov", s.logger)

	if err := s.initGovernance(); err != nil {
		return fmt.Errorf("failed to init governance core: %w", err)
	}

	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("redis_exchange", s.cfg.Redis.Enabled),
		zap.Bool("archive", s.archive != nil),
	)
	return nil
}

// initGovernance wires the archive, event exchange, dispatcher, notification
// hub, evaluator, retraining manager, and penalty manager together.
func (s *Server) initGovernance() error {
	// Archive is best-effort: a missing database degrades history and
	// persistence, never the governance loop itself.
	archive, err := store.Open(s.cfg.Database, s.logger)
	if err != nil {
		s.logger.Warn("archive unavailable, running without durable history", zap.Error(err))
	} else {
		s.archive = archive
	}

	// The exchange is the bus collaborator. Redis when configured, an
	// in-process exchange otherwise so embedded consumers still see events.
	if s.cfg.Redis.Enabled {
		exchange, err := events.NewRedisExchange(events.RedisConfig{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			MaxRetries:   s.cfg.Redis.MaxRetries,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("redis exchange: %w", err)
		}
		s.exchange = exchange
	} else {
		s.exchange = events.NewInProcExchange()
	}

	s.dispatcher = events.NewDispatcher(s.cfg.Governance.Dispatcher, s.exchange, s.logger)
	s.dispatcher.OnError(func(string) {
		s.collector.RecordPublishFailure()
	})

	s.hub = notify.NewHub(s.cfg.Governance.Notify, s.logger)
	s.sched = scheduler.New(s.logger)

	eval := evaluator.New(s.cfg.Governance.Evaluator, s.logger)

	s.retrainer = retraining.NewManager(s.cfg.Governance.Retraining, retraining.Deps{
		Dispatcher: s.dispatcher,
		Notifier:   s.hub,
		Scheduler:  s.sched,
		Logger:     s.logger,
	})

	var archiver penalty.Archiver
	if s.archive != nil {
		archiver = s.archive
	}
	s.governor = penalty.NewManager(s.cfg.Governance.Penalty, penalty.Deps{
		Monitor:    s.monitor,
		Evaluator:  eval,
		Dispatcher: s.dispatcher,
		Notifier:   s.hub,
		Scheduler:  s.sched,
		Archiver:   archiver,
		Metrics:    s.collector,
		Logger:     s.logger,
	})
	s.governor.AttachRetraining(s.retrainer)
	s.governor.Start()

	if s.monitor != nil && s.cfg.Governance.EvaluateInterval > 0 {
		s.sched.Every(s.cfg.Governance.EvaluateInterval, func(ctx context.Context) {
			if err := s.governor.EvaluateFleet(ctx); err != nil {
				s.logger.Warn("fleet evaluation failed", zap.Error(err))
			}
		})
		s.logger.Info("fleet evaluation scheduled",
			zap.Duration("interval", s.cfg.Governance.EvaluateInterval))
	} else {
		s.logger.Info("no monitor source attached, periodic evaluation disabled")
	}

	return nil
}

// initHandlers creates the HTTP handlers over the governance core.
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.archive != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.archive.Ping))
	}

	var history handlers.History
	if s.archive != nil {
		history = s.archive
	}
	s.governanceHandler = handlers.NewGovernanceHandler(s.governor, history, s.logger)
}

// startHTTPServer mounts the routes, builds the middleware chain, and starts
// the API listener.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	s.governanceHandler.RegisterRoutes(mux)

	// Agents attach their notification channel here.
	mux.Handle("GET /ws/agents/{agentId}", s.hub)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	}
	if s.cfg.Telemetry.Enabled {
		chain = append(chain, OTelTracing())
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	if s.cfg.JWT.Enabled {
		chain = append(chain, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, chain...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if s.cfg.Server.TLSCertFile != "" {
		if err := s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile); err != nil {
			return err
		}
	} else if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// startMetricsServer exposes /metrics on its own port.
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// WaitForShutdown blocks until a termination signal, then shuts down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops everything in reverse dependency order: listeners first so
// no new work arrives, then the governance loop, then the event queue drain,
// then the external connections.
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

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

	if s.governor != nil {
		s.governor.Stop()
	}
	if s.retrainer != nil {
		s.retrainer.Stop()
	}
	if s.sched != nil {
		s.sched.Stop()
	}
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}
	if s.hub != nil {
		if err := s.hub.Close(); err != nil {
			s.logger.Error("notification hub close error", zap.Error(err))
		}
	}
	if s.exchange != nil {
		if err := s.exchange.Close(); err != nil {
			s.logger.Error("exchange close error", zap.Error(err))
		}
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			s.logger.Error("archive close error", zap.Error(err))
		}
	}

	s.wg.Wait()
	s.logger.Info("graceful shutdown completed")
}
