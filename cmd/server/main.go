package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/nathanyu/matching-engine/internal/catalog"
	"github.com/nathanyu/matching-engine/internal/config"
	"github.com/nathanyu/matching-engine/internal/domain"
	"github.com/nathanyu/matching-engine/internal/feed"
	"github.com/nathanyu/matching-engine/internal/handler"
	"github.com/nathanyu/matching-engine/internal/marketdata"
	"github.com/nathanyu/matching-engine/internal/matching"
	"github.com/nathanyu/matching-engine/internal/middleware"
	"github.com/nathanyu/matching-engine/internal/ordermanager"
	"github.com/nathanyu/matching-engine/internal/repository"
	"github.com/nathanyu/matching-engine/internal/router"
	"github.com/nathanyu/matching-engine/internal/telemetry"
)

const serviceName = "matching-engine"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := telemetry.InitLogger(serviceName, telemetry.ParseLevel(cfg.LogLevel))
	if err := run(cfg, logger); err != nil {
		logger.Error("service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting matching engine service",
		slog.Any("instruments", cfg.Instruments),
		slog.String("market_remainder", cfg.MarketRemainder.String()),
		slog.String("ledger", cfg.Ledger.Backend),
		slog.String("feed", cfg.Feed.Backend))

	shutdownTracer, err := telemetry.InitTracer(telemetry.TracingConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer()

	// --- Core components ---

	// One engine per listed security; listing later creates the book.
	securities := catalog.New(cfg.Instruments)
	engines := router.New(nil, matching.WithMarketRemainder(cfg.MarketRemainder))
	securities.OnList(func(symbol string) {
		engines.Listen(symbol)
		logger.Info("instrument listed", slog.String("symbol", symbol))
	})

	ledger, err := openLedger(cfg, logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	var cache *repository.BookCache
	if cfg.Redis.Addr != "" {
		cache = repository.NewBookCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), 24*time.Hour)
		defer cache.Close()
	}

	publisherFeed, err := openFeed(cfg)
	if err != nil {
		return err
	}
	defer publisherFeed.Close()

	manager := ordermanager.NewManager(engines, ledger, cfg.BufferSize)
	publisher := marketdata.NewPublisher(cfg.BufferSize)
	publisher.Start()

	// Order manager → [Events] → market data, execution feed, book cache
	var dispatchWG sync.WaitGroup
	dispatchWG.Add(1)
	go func() {
		defer dispatchWG.Done()
		dispatchEvents(manager.Events, publisher, publisherFeed, cache)
	}()

	// --- HTTP Server ---
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Tracing(), middleware.PrometheusMiddleware())
	handler.NewHandler(manager, engines, securities, publisher).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	// --- Metrics Server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("metrics server listening", slog.Int("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case runErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown error", slog.String("error", err.Error()))
	}

	// Handlers still running after a timed-out Shutdown drop their events.
	manager.Close()
	dispatchWG.Wait()
	publisher.Stop()

	logger.Info("matching engine service stopped")
	return runErr
}

func openLedger(cfg *config.Config, logger *slog.Logger) (repository.OrderLedger, error) {
	if cfg.Ledger.Backend != config.LedgerPostgres {
		return repository.NewMemoryLedger(), nil
	}

	db, err := repository.OpenPostgres(cfg.Ledger.DSN)
	if err != nil {
		return nil, err
	}

	const maxRetries = 10
	for i := range maxRetries {
		if err = db.Ping(); err == nil {
			break
		}
		logger.Warn("waiting for database", slog.Int("attempt", i+1), slog.Int("max", maxRetries))
		time.Sleep(3 * time.Second)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("database not available after retries: %w", err)
	}

	ledger := repository.NewPostgresLedger(db)
	if err := ledger.Migrate(context.Background()); err != nil {
		ledger.Close()
		return nil, err
	}
	logger.Info("connected to PostgreSQL order ledger")
	return ledger, nil
}

func openFeed(cfg *config.Config) (feed.Publisher, error) {
	switch cfg.Feed.Backend {
	case config.FeedNATS:
		return feed.NewNATSPublisher(cfg.Feed.NATSURL, cfg.Feed.Topic)
	case config.FeedKafka:
		return feed.NewKafkaPublisher(cfg.Feed.Brokers, cfg.Feed.Topic), nil
	default:
		return feed.Noop{}, nil
	}
}

// dispatchEvents fans execution events out to market data, the execution feed
// and the book cache until events is closed. Events arrive in match order per
// instrument, so each sink sees one instrument's executions in sequence.
func dispatchEvents(events <-chan *domain.ExecutionEvent, publisher *marketdata.Publisher, out feed.Publisher, cache *repository.BookCache) {
	for event := range events {
		select {
		case publisher.ExecutionIn <- event:
		default:
			telemetry.FeedPublishErrorsTotal.WithLabelValues("marketdata").Inc()
			slog.Warn("market data execution channel full", slog.String("component", "dispatch"))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		symbol := event.Result.Symbol
		if len(event.Result.Executions) > 0 {
			if err := out.Publish(ctx, symbol, event.Result.Executions); err != nil {
				telemetry.FeedPublishErrorsTotal.WithLabelValues("feed").Inc()
				slog.Error("failed to publish executions",
					slog.String("component", "dispatch"),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()))
			}
		}
		if cache != nil && event.Depth != nil {
			if err := cache.StoreDepth(ctx, event.Depth); err != nil {
				telemetry.FeedPublishErrorsTotal.WithLabelValues("cache").Inc()
				slog.Error("failed to cache book depth",
					slog.String("component", "dispatch"),
					slog.String("symbol", symbol),
					slog.String("error", err.Error()))
			}
		}
		cancel()
	}
}
