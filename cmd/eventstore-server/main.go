// Command eventstore-server serves the business event store over HTTP.
//
// Configuration is read from the environment and an optional .env file, see internal/config.
// Prometheus metrics are served on METRICS_ADDR under /metrics.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore/httpapi"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/query"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/schemaregistry"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/tracker"
	"github.com/AntonStoeckl/business-eventstore-go/eventstore/validation"
	"github.com/AntonStoeckl/business-eventstore-go/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel, os.Stdout)
	slog.SetDefault(logger)

	if err = run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var closers closerStack
	defer closers.closeAll(logger)

	tel, err := newTelemetry(cfg, logger)
	if err != nil {
		return err
	}
	closers.push("telemetry", tel.shutdown)

	store, err := openStorage(ctx, cfg, tel)
	if err != nil {
		return err
	}
	closers.push("storage", store.close)

	registryOptions := []schemaregistry.Option{schemaregistry.WithLogger(logger)}
	if cfg.RedisURL != "" {
		cache, closeCache, cacheErr := newSchemaCache(ctx, cfg, logger)
		if cacheErr != nil {
			return cacheErr
		}
		closers.push("schema cache", closeCache)
		registryOptions = append(registryOptions, schemaregistry.WithCache(cache))
	}

	registry, err := schemaregistry.NewRegistry(store.schemas, registryOptions...)
	if err != nil {
		return err
	}

	trackerOptions := []tracker.Option{
		tracker.WithLogger(logger),
		tracker.WithContextualLogger(tel.contextualLogger),
		tracker.WithMetrics(tel.metrics),
		tracker.WithTracing(tel.tracing),
	}

	feed, err := openChangeFeed(cfg)
	if err != nil {
		return err
	}
	if feed != nil {
		closers.push("change feed", feed.close)
		trackerOptions = append(trackerOptions, tracker.WithChangeFeed(feed.publisher, store.events))
	}

	eventTracker, err := tracker.NewEventTracker(registry, validation.NewJSONSchemaValidator(), store.transactions, trackerOptions...)
	if err != nil {
		return err
	}

	queryOptions := []query.Option{
		query.WithLogger(logger),
		query.WithContextualLogger(tel.contextualLogger),
		query.WithMetrics(tel.metrics),
		query.WithTracing(tel.tracing),
		query.WithDefaultSearchLimit(cfg.DefaultSearchLimit),
	}
	if cfg.PostgresReplicaDSN != "" {
		queryOptions = append(queryOptions, query.WithEventualConsistency())
	}

	queries, err := query.NewEngine(store.events, queryOptions...)
	if err != nil {
		return err
	}

	api, err := httpapi.NewServer(
		registry,
		eventTracker,
		queries,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(httpapi.NewMetrics(prometheus.DefaultRegisterer)),
		httpapi.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		httpapi.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return err
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	apiServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serve := func(name string, server *http.Server) {
		logger.Info("starting server", "server", name, "addr", server.Addr)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("server failed", "server", name, "error", serveErr)
			stop()
		}
	}

	go serve("metrics", metricsServer)
	go serve("api", apiServer)

	<-ctx.Done()
	logger.Info("shutting down servers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err = apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}

	if err = metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")

	return nil
}

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// closerStack closes resources in reverse order of their creation.
type closerStack []closer

func (s *closerStack) push(name string, close func(ctx context.Context) error) {
	*s = append(*s, closer{name: name, close: close})
}

func (s *closerStack) closeAll(logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := len(*s) - 1; i >= 0; i-- {
		c := (*s)[i]
		if err := c.close(ctx); err != nil {
			logger.Warn("closing resource failed", "resource", c.name, "error", err)
		}
	}
}
