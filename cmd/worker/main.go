package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/care-access/internal/config"
	"github.com/jwalitptl/care-access/internal/handler/health"
	"github.com/jwalitptl/care-access/internal/handler/prometheus"
	"github.com/jwalitptl/care-access/internal/middleware"
	"github.com/jwalitptl/care-access/internal/repository/postgres"
	internalWorker "github.com/jwalitptl/care-access/internal/worker"
	"github.com/jwalitptl/care-access/pkg/clock"
	"github.com/jwalitptl/care-access/pkg/logger"
	"github.com/jwalitptl/care-access/pkg/messaging/redis"
	"github.com/jwalitptl/care-access/pkg/metrics"
	"github.com/jwalitptl/care-access/pkg/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.NewLogger(nil).Fatal(err, "Failed to load config")
	}

	l := logger.Setup(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.Format == "json",
		Service:    "care-access-worker",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, l); err != nil {
		l.Fatal(err, "Worker failed")
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, l *logger.Logger) error {
	if cfg.Database.Driver != "postgres" {
		return errors.New("the worker requires database.driver postgres")
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	broker, err := redis.NewRedisBroker(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, *l.Zerolog())
	if err != nil {
		return err
	}
	defer broker.Close()

	prom := prometheus.New(cfg.Server.MetricsPrefix)
	m := metrics.NewMetrics(cfg.Server.MetricsPrefix, "worker", prom.Registry())

	repos := postgres.NewRepositories(db)
	processor, err := worker.NewOutboxProcessor(
		repos.Outbox,
		broker,
		worker.OutboxProcessorConfig{
			Channel:       cfg.Redis.Channel,
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval,
			RetryAttempts: cfg.Outbox.RetryAttempts,
			RetryDelay:    cfg.Outbox.RetryDelay,
		},
		clock.Real{},
		l.WithFields(map[string]interface{}{"component": "outbox"}),
		m,
	)
	if err != nil {
		return err
	}
	sweeper := internalWorker.NewSessionSweeper(repos.Sessions, clock.Real{}, m, cfg.Sweeper.Retention, cfg.Sweeper.Interval)

	srv := healthServer(cfg.Worker.HealthPort, prom, health.PingFunc(func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		return broker.Ping(ctx)
	}))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "Health check server failed")
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			l.Info("Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		sweeper.Start(ctx)
	}()
	wg.Wait()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}

func healthServer(port int, prom *prometheus.Handler, ready health.Pinger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())

	rg := engine.Group("")
	health.NewHandler(ready).RegisterRoutes(rg)
	rg.GET("/health/metrics", prom.Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
}
