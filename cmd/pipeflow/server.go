package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/pipeflow/config"
	"github.com/BaSui01/pipeflow/engine"
	"github.com/BaSui01/pipeflow/events"
	"github.com/BaSui01/pipeflow/internal/cache"
	"github.com/BaSui01/pipeflow/internal/database"
	"github.com/BaSui01/pipeflow/internal/metrics"
	"github.com/BaSui01/pipeflow/internal/telemetry"
	"github.com/BaSui01/pipeflow/internal/tlsutil"
	"github.com/BaSui01/pipeflow/store"
)

// Server owns every long-lived component of the service and their
// startup and shutdown order.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	collector   *metrics.Collector
	pool        *database.PoolManager
	redisClient *redis.Client
	cacheMgr    *cache.Manager
	broadcaster *events.Broadcaster
	router      *engine.EventRouter
	timeouts    *engine.TimeoutScheduler
	cleanup     *store.CleanupJob
	httpServer  *http.Server

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer builds the full component graph without starting anything.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) (*Server, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Metrics.Namespace, registry, logger)

	pool, err := database.Open(database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	st := store.NewGormStore(pool.DB(), logger)
	if err := st.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	redisOpts := &redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
	if cfg.Redis.TLS {
		redisOpts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	redisClient := redis.NewClient(redisOpts)

	publisher := events.NewRedisPublisher(redisClient, logger)
	broadcaster := events.NewBroadcaster(publisher, logger, events.BroadcasterOptions{
		BufferSize:    cfg.Publisher.BufferSize,
		QueueCapacity: cfg.Publisher.QueueCapacity,
		MaxRetries:    cfg.Publisher.MaxRetries,
		RetryInterval: cfg.Publisher.RetryInterval,
		DefaultTopic:  cfg.Publisher.Channel,
		Metrics:       collector,
	})

	cacheMgr := cache.NewManagerWithClient(redisClient, cache.Config{
		Addr: cfg.Redis.Addr,
	}, logger)
	definitions := cache.NewDefinitionCache(cacheMgr, st, collector, 0, logger)

	handlers := engine.NewRegistry()
	engine.RegisterBuiltins(handlers, logger)

	orchestrator := engine.NewOrchestrator(st, handlers, broadcaster, logger, engine.Options{
		Metrics:            collector,
		NonStrictTemplates: cfg.Engine.NonStrictTemplates,
		DefaultStepTimeout: cfg.Engine.DefaultStepTimeout,
		Definitions:        definitions,
	})
	router := engine.NewEventRouter(st, handlers, orchestrator, logger)
	timeouts := engine.NewTimeoutScheduler(st, orchestrator, cfg.Engine.TimeoutSweepEvery, collector, logger)

	var cleanup *store.CleanupJob
	if cfg.Retention.Enabled {
		cleanup = store.NewCleanupJob(st, cfg.Retention.MaxAge, cfg.Retention.Interval, logger)
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		otel:        otel,
		collector:   collector,
		pool:        pool,
		redisClient: redisClient,
		cacheMgr:    cacheMgr,
		broadcaster: broadcaster,
		router:      router,
		timeouts:    timeouts,
		cleanup:     cleanup,
		done:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start brings up the background loops and the metrics listener.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.broadcaster.Start()
	s.timeouts.Start()
	if s.cleanup != nil {
		s.cleanup.Start()
	}

	go s.consumeInbound(ctx)
	go s.reportPoolStats(ctx)

	go func() {
		s.logger.Info("metrics listener started", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then stops everything
// in reverse dependency order.
func (s *Server) WaitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	s.logger.Info("shutdown signal received", zap.String("signal", received.String()))

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics listener shutdown failed", zap.Error(err))
	}

	s.timeouts.Stop()
	if s.cleanup != nil {
		s.cleanup.Stop()
	}
	s.broadcaster.Stop()

	if err := s.cacheMgr.Close(); err != nil {
		s.logger.Warn("cache shutdown failed", zap.Error(err))
	}
	if err := s.pool.Close(); err != nil {
		s.logger.Warn("database shutdown failed", zap.Error(err))
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}

	close(s.done)
}

// consumeInbound feeds external completion events from the inbound
// Redis channel into the event router.
func (s *Server) consumeInbound(ctx context.Context) {
	channel := s.cfg.Publisher.InboundChannel
	if channel == "" {
		return
	}

	pubsub := s.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()
	s.logger.Info("inbound event consumer started", zap.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var event engine.InboundEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.logger.Warn("malformed inbound event, discarded", zap.Error(err))
				continue
			}
			if err := s.router.OnEvent(ctx, event); err != nil {
				s.logger.Error("inbound event processing failed",
					zap.String("external_workflow_id", event.ExternalWorkflowID),
					zap.Error(err))
			}
		}
	}
}

func (s *Server) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pool.ReportStats(s.collector)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if err := s.pool.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = err.Error()
	}
	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["redis"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
