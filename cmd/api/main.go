package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/config"
	"github.com/finsight/riskdash-back/internal/events"
	httpserver "github.com/finsight/riskdash-back/internal/http"
	"github.com/finsight/riskdash-back/internal/http/handlers"
	"github.com/finsight/riskdash-back/internal/logging"
	"github.com/finsight/riskdash-back/internal/metrics"
	"github.com/finsight/riskdash-back/internal/platform"
	"github.com/finsight/riskdash-back/internal/predcache"
	"github.com/finsight/riskdash-back/internal/repository"
	"github.com/finsight/riskdash-back/internal/session"
	"github.com/finsight/riskdash-back/internal/tracker"
)

func main() {
	_ = godotenv.Load(".env", ".env.local")
	cfg := config.Load()

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	bus, busCloser := setupBus(ctx, cfg, logger)
	defer busCloser()

	client := platform.NewHTTPClient(platform.HTTPClientConfig{
		BaseURL:    cfg.PlatformBaseURL,
		APIKey:     cfg.PlatformServiceKey,
		Timeout:    time.Duration(cfg.PlatformTimeoutMS) * time.Millisecond,
		MaxRetries: cfg.PlatformMaxRetries,
	})

	var instrumentation *metrics.Metrics
	if cfg.MetricsEnabled {
		instrumentation = metrics.New()
	}

	sessions := session.NewRegistry(client, repo, bus, logger, session.RegistryConfig{
		IdleTTL: time.Duration(cfg.SessionIdleTTLMinutes) * time.Minute,
		Tracker: tracker.Config{
			PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
			MissingGrace: time.Duration(cfg.PollMissingGraceSec) * time.Second,
			ListLimit:    cfg.PollListLimit,
		},
		Cache: predcache.Config{
			Freshness:    time.Duration(cfg.CacheFreshnessMinutes) * time.Minute,
			PageSize:     cfg.CachePageSize,
			MaxPages:     cfg.CacheMaxPages,
			OrgLookupTTL: time.Duration(cfg.OrgLookupTTLSeconds) * time.Second,
		},
	})
	defer sessions.Close()

	go logEvents(ctx, bus, logger, instrumentation)

	api := handlers.NewAPI(sessions, instrumentation, logger)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		Metrics:        instrumentation,
		JWTSecret:      cfg.JWTSecret,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("api listening", zap.String("port", cfg.Port))
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (repository.UploadJobsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryUploadJobsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresUploadJobsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("failed to initialize postgres repository, fallback to memory", zap.Error(err))
		return repository.NewMemoryUploadJobsRepository(), func() {}
	}
	logger.Info("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupBus(
	ctx context.Context,
	cfg config.Config,
	logger *zap.Logger,
) (events.Bus, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not configured, using local event bus")
		return events.NewLocalBus(64, logger), func() {}
	}

	redisBus, err := events.NewRedisBus(ctx, events.RedisBusConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.RedisChannel,
	}, logger)
	if err != nil {
		logger.Warn("failed to initialize redis event bus, fallback to local", zap.Error(err))
		return events.NewLocalBus(64, logger), func() {}
	}
	logger.Info("redis event bus initialized")
	return redisBus, func() {
		_ = redisBus.Close()
	}
}

// logEvents drains the bus into the log and keeps the terminal-job
// counters moving. It is the only standing subscriber in a single
// instance deployment.
func logEvents(ctx context.Context, bus events.Bus, logger *zap.Logger, m *metrics.Metrics) {
	eventsChan, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventsChan:
			if !ok {
				return
			}
			logger.Debug("event",
				zap.String("kind", string(event.Kind)),
				zap.String("user_id", event.UserID),
				zap.String("job_id", event.JobID),
				zap.String("job_status", string(event.JobStatus)),
			)
			if m == nil {
				continue
			}
			switch event.Kind {
			case events.KindJobUpdated:
				m.JobUpdates.Inc()
			case events.KindJobCompleted, events.KindJobFailed:
				m.JobsFinished.WithLabelValues(string(event.JobStatus)).Inc()
			}
		}
	}
}
