package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dukerupert/courier/internal"
	"github.com/dukerupert/courier/internal/email"
	"github.com/dukerupert/courier/internal/handler"
	"github.com/dukerupert/courier/internal/jobs"
	"github.com/dukerupert/courier/internal/middleware"
	"github.com/dukerupert/courier/internal/progress"
	"github.com/dukerupert/courier/internal/router"
	"github.com/dukerupert/courier/internal/service"
	"github.com/dukerupert/courier/internal/storage"
	"github.com/dukerupert/courier/internal/telemetry"
	"github.com/dukerupert/courier/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	started := time.Now()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize Sentry
	flushSentry, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:         cfg.Sentry.DSN,
		Enabled:     cfg.Sentry.Enabled,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		SampleRate:  cfg.Sentry.SampleRate,
		Debug:       cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer flushSentry()

	// Metrics registry shared by the HTTP and dispatch collectors
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics := middleware.NewHTTPMetrics("courier", reg)
	dispatchMetrics := telemetry.NewDispatchMetrics("courier", reg)

	// Upload staging
	workspace, err := storage.NewWorkspace(cfg.UploadDir)
	if err != nil {
		return err
	}

	// Durable run log
	runLog, err := jobs.OpenRunLog(cfg.RunLogPath)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer runLog.Close()

	// Post-run hooks
	var hooks []jobs.Hook
	if cfg.Admin.NotifyEnabled {
		hooks = append(hooks, jobs.NewAdminNotifier(cfg.Admin.NotifyEmail))
		logger.Info("Admin summary enabled", "to", cfg.Admin.NotifyEmail)
	}
	archive, err := storage.NewArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("failed to initialize run archive: %w", err)
	}
	if archive != nil {
		hooks = append(hooks, jobs.NewArchiver(archive))
		logger.Info("Run archive enabled", "provider", cfg.Archive.Provider)
	}

	// Progress fan-out: SSE subscribers, optional NATS, debug log
	broker := progress.NewBroker(logger)
	sinks := progress.Multi{broker, progress.LogSink{Logger: logger}}
	if cfg.NATS.URL != "" {
		natsSink, err := progress.NewNATSSink(progress.NATSConfig{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
		logger.Info("Publishing progress to NATS", "prefix", cfg.NATS.SubjectPrefix)
	}

	dispatcher := service.NewDispatcher(service.DispatcherConfig{
		Concurrency: cfg.Dispatch.Concurrency,
		StatsOrder:  worker.StatsOrder(cfg.Dispatch.StatsOrder),
		RunLog:      runLog,
		Hooks:       hooks,
		Metrics:     dispatchMetrics,
	}, func(c email.SMTPConfig) email.Transport {
		return email.NewSMTPSender(c, logger)
	}, sinks, logger)

	sendHandler := handler.NewSendHandler(dispatcher, workspace, handler.SendConfig{
		MaxUploadMB:       int64(cfg.MaxUploadMB),
		SMTPTimeout:       cfg.SMTP.Timeout,
		SMTPAllowInsecure: cfg.SMTP.AllowInsecure,
	}, logger)

	// ==========================================================================
	// Routes
	// ==========================================================================

	r := router.New(
		telemetry.SentryMiddleware(),
		router.Recovery(logger),
		middleware.RequestID,
		router.CORS(cfg.CORSOrigins),
		httpMetrics.Middleware,
		router.Logger(logger),
		middleware.WithRequestLogger(logger),
	)
	r.Preflight()

	r.Post("/send-email", sendHandler.SendEmail)
	r.Post("/send-test-email", sendHandler.SendTestEmail)
	r.Handle(http.MethodGet, "/progress/{runID}", handler.NewProgressHandler(broker))
	r.Handle(http.MethodGet, "/smtp/check", handler.NewSMTPCheckHandler(nil, cfg.SMTP.AllowInsecure, logger))

	// Metrics endpoint (unauthenticated; restrict at the network edge)
	r.Handle(http.MethodGet, "/metrics", httpMetrics.Handler())
	r.Get("/healthz", handler.Health(started))
	r.NotFound(handler.NotFoundResponse)

	// ==========================================================================
	// Serve
	// ==========================================================================

	// No write timeout: send requests stay open for the whole run and
	// progress streams stay open until the client leaves.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
