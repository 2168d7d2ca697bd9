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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/flowviz/flowviz/internal/api"
	"github.com/flowviz/flowviz/internal/auth"
	"github.com/flowviz/flowviz/internal/config"
	"github.com/flowviz/flowviz/internal/database"
	"github.com/flowviz/flowviz/internal/pipeline"
	"github.com/flowviz/flowviz/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline and the telemetry API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	logger := config.InitLogger(cfg.Logging)
	logger.Info("Starting flowviz",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"producers", cfg.Pipeline.Producers,
		"combiners", cfg.Pipeline.Combiners,
		"processors", cfg.Pipeline.Processors,
	)

	var (
		reg  *prometheus.Registry
		opts []pipeline.Option
	)
	if cfg.Telemetry.MetricsEnabled {
		reg = prometheus.NewRegistry()
		batchMetrics := telemetry.NewBatchMetrics()
		reg.MustRegister(batchMetrics)
		opts = append(opts, pipeline.WithBatchHook(batchMetrics.Observe))
	}

	p, err := pipeline.New(cfg.Pipeline, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	var metricsHandler http.Handler
	if reg != nil {
		reg.MustRegister(
			telemetry.NewCollector(p),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var background sync.WaitGroup
	goBackground := func(fn func()) {
		background.Add(1)
		go func() {
			defer background.Done()
			fn()
		}()
	}

	if cfg.Database.Enabled {
		pool, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("DB init failed: %w", err)
		}
		defer pool.Close()

		if err := database.RunMigrations(pool); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}

		writer := database.NewSampleWriter(pool, p, cfg.Database.SampleInterval(), logger)
		goBackground(func() {
			if err := writer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Sample writer error", "error", err)
			}
		})
		logger.Info("Telemetry persistence enabled", "run_id", writer.RunID().String())
	}

	var authService *auth.Service
	if cfg.Auth.Enabled {
		authService, err = auth.NewService(
			cfg.Auth.JWTSecret,
			cfg.Auth.AdminUsername,
			cfg.Auth.AdminPassword,
			cfg.Auth.JWTExpiry(),
		)
		if err != nil {
			return fmt.Errorf("failed to initialize auth service: %w", err)
		}
	}

	history := telemetry.NewHistory(p, cfg.Telemetry.HistoryLength, cfg.Telemetry.HistoryInterval(), logger)
	goBackground(func() { history.Run(ctx) })

	if err := p.Start(ctx); err != nil {
		return err
	}

	router := api.NewRouter(api.Dependencies{
		Pipeline: p,
		History:  history,
		Auth:     authService,
		Metrics:  metricsHandler,
		CORS:     cfg.CORS,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		logger.Info("Shutting down", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
		runErr = err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	drainPipeline(shutdownCtx, p, logger)

	// the sample writer flushes a final reading after the drain
	cancel()
	background.Wait()

	logger.Info("flowviz stopped")
	return runErr
}

func drainPipeline(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger) {
	p.Stop()
	select {
	case <-p.Done():
	case <-ctx.Done():
		logger.Warn("Pipeline did not drain before the shutdown deadline",
			"batch_size", p.Tuning().BatchSize(),
			"processing_delay", p.Tuning().ProcessingDelay())
	}
}
