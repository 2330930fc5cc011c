package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	appLogger "github.com/FACorreiaa/go-location-resolver/app/logger"
	"github.com/FACorreiaa/go-location-resolver/app/observability/metrics"
	"github.com/FACorreiaa/go-location-resolver/app/tracer"
	"github.com/FACorreiaa/go-location-resolver/config"
	"github.com/FACorreiaa/go-location-resolver/internal/container"
	"github.com/FACorreiaa/go-location-resolver/internal/router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Use standard log until slog is configured, in case godotenv fails
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := appLogger.New(os.Stdout, cfg.Mode)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Application stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down complete.")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Providers first, so the instruments bind to the real MeterProvider.
	telemetry, err := tracer.InitTracingAndMetrics(cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	metrics.InitAppMetrics()

	c, err := container.NewContainer(ctx, &cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	defer c.Close()

	handler := router.SetupRouter(&router.Config{
		LocationHandler: c.LocationHandler,
		Logger:          logger,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		SearchRateLimit: cfg.Server.SearchRateLimit,
		RequestTimeout:  cfg.Server.Timeout,
	})

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", telemetry.MetricsHandler)
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Handlers.Prometheus.Port),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Engine.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", apiServer.Addr))
		return listen(apiServer)
	})
	g.Go(func() error {
		logger.Info("Starting metrics server", slog.String("address", metricsServer.Addr))
		return listen(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, starting graceful shutdown...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return errors.Join(
			apiServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
			telemetry.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s: %w", srv.Addr, err)
	}
	return nil
}
