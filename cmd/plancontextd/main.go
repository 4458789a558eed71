// Command plancontextd serves a plan context store as MCP tools, with a
// background sweep, Prometheus metrics and optional OpenTelemetry tracing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/run-bigpig/plan-context/pkg/config"
	"github.com/run-bigpig/plan-context/pkg/contextstore"
	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
	"github.com/run-bigpig/plan-context/pkg/mcp"
	"github.com/run-bigpig/plan-context/pkg/metrics"
	"github.com/run-bigpig/plan-context/pkg/tracing"
)

const version = "0.1.0"

// defaultTimeoutSetter is implemented by both store backends
type defaultTimeoutSetter interface {
	SetDefaultTimeout(time.Duration) error
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults are used when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "plancontextd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	logOptions := []logging.Option{logging.WithLevel(cfg.Logging.Level)}
	if cfg.Logging.JSON {
		logOptions = append(logOptions, logging.WithJSON())
	}
	// stdout belongs to the stdio transport
	logOptions = append(logOptions, logging.WithOutput(os.Stderr))
	logger := logging.New(logOptions...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	store, closeStore, err := openStore(ctx, cfg.ContextStore, logger, collector)
	if err != nil {
		return err
	}
	defer closeStore()

	tracer, err := tracing.NewOTelTracer(tracing.OTelConfig{
		Enabled:           cfg.Tracing.Enabled,
		ServiceName:       cfg.Tracing.ServiceName,
		CollectorEndpoint: cfg.Tracing.CollectorEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "tracer shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	var wrapped interfaces.ContextStore = metrics.NewContextStoreMetricsMiddleware(store, collector)
	wrapped = tracing.NewContextStoreOTelMiddleware(wrapped, tracer)

	sweeper := contextstore.NewSweeper(wrapped, cfg.ContextStore.SweepInterval, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	if configPath != "" {
		go watchConfig(ctx, configPath, store, logger)
	}

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(ctx, cfg.Metrics.Addr, collector, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.MCP.Transport == config.TransportNone {
		logger.Info(ctx, "plancontextd running without MCP transport", nil)
		<-ctx.Done()
		return nil
	}

	transport, err := mcp.NewTransport(cfg.MCP.Transport, cfg.MCP.Addr)
	if err != nil {
		return err
	}
	tools := mcp.NewContextTools(wrapped, mcp.WithToolsLogger(logger), mcp.WithBaseContext(ctx))
	server, err := mcp.NewServer(transport, tools, version)
	if err != nil {
		return err
	}

	logger.Info(ctx, "serving MCP tools", map[string]interface{}{
		"transport": cfg.MCP.Transport,
		"addr":      cfg.MCP.Addr,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve()
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down", nil)
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP server stopped: %w", err)
		}
		// stdio Serve returns immediately and handles requests in the background
		<-ctx.Done()
		return nil
	}
}

// openStore builds the configured backend and wires its size into the collector
func openStore(ctx context.Context, cfg config.ContextStoreConfig, logger logging.Logger, collector *metrics.Collector) (interfaces.ContextStore, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		store, err := contextstore.NewRedisStoreFromConfig(ctx, contextstore.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		},
			contextstore.WithRedisKeyPrefix(cfg.Redis.KeyPrefix),
			contextstore.WithRedisDefaultTimeout(cfg.DefaultTimeout),
			contextstore.WithRedisLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		logger.Info(ctx, "using redis context store", map[string]interface{}{"url": cfg.Redis.URL})
		return store, func() { _ = store.Close() }, nil

	default:
		store, err := contextstore.New(
			contextstore.WithDefaultTimeout(cfg.DefaultTimeout),
			contextstore.WithSweepInterval(cfg.SweepInterval),
			contextstore.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		collector.SetStoredCount(store.Len)
		logger.Info(ctx, "using in-memory context store", map[string]interface{}{
			"default_timeout": cfg.DefaultTimeout.String(),
		})
		return store, func() {}, nil
	}
}

func watchConfig(ctx context.Context, path string, store interfaces.ContextStore, logger logging.Logger) {
	setter, ok := store.(defaultTimeoutSetter)
	if !ok {
		return
	}
	err := config.Watch(ctx, path, logger, func(cfg *config.Config) {
		if err := setter.SetDefaultTimeout(cfg.ContextStore.DefaultTimeout); err != nil {
			logger.Warn(ctx, "ignoring reloaded default timeout", map[string]interface{}{"error": err.Error()})
			return
		}
		logger.Info(ctx, "default timeout updated", map[string]interface{}{
			"default_timeout": cfg.ContextStore.DefaultTimeout.String(),
		})
	})
	if err != nil {
		logger.Error(ctx, "config watch stopped", map[string]interface{}{"error": err.Error()})
	}
}

func serveMetrics(ctx context.Context, addr string, collector *metrics.Collector, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(ctx, "serving metrics", map[string]interface{}{"addr": addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	return srv
}
