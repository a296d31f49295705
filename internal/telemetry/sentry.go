package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool
	Environment string // dev, prod
	Release     string

	// SampleRate is the share of errors sent, 0.0 to 1.0. Zero means 1.0.
	SampleRate float64

	// Debug enables SDK debug logging
	Debug bool
}

const flushTimeout = 2 * time.Second

var enabled atomic.Bool

// InitSentry initializes the global Sentry client. The returned function
// flushes buffered events and must be called on shutdown. Reporting stays
// off when cfg is disabled or has no DSN.
func InitSentry(cfg SentryConfig, logger *slog.Logger) (func(), error) {
	noop := func() {}
	enabled.Store(false)

	switch {
	case !cfg.Enabled:
		logger.Info("Sentry disabled")
		return noop, nil
	case cfg.DSN == "":
		logger.Warn("Sentry enabled without a DSN, error tracking stays off")
		return noop, nil
	}

	rate := cfg.SampleRate
	if rate == 0 {
		rate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  rate,
		Debug:       cfg.Debug,
		BeforeSend:  scrubRequest,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled.Store(true)

	logger.Info("Sentry initialized",
		"environment", cfg.Environment,
		"release", cfg.Release,
		"sample_rate", rate,
	)
	return func() { sentry.Flush(flushTimeout) }, nil
}

// scrubRequest drops request bodies and the SMTP password header, which
// carry sender credentials.
func scrubRequest(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		event.Request.Data = ""
		delete(event.Request.Headers, "X-Smtp-Password")
		delete(event.Request.Headers, "X-SMTP-Password")
	}
	return event
}

// IsEnabled reports whether events are being sent.
func IsEnabled() bool {
	return enabled.Load()
}

func hubFrom(ctx context.Context) *sentry.Hub {
	if ctx != nil {
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			return hub
		}
	}
	return sentry.CurrentHub()
}

// CaptureError reports err with optional extras, using the request hub on
// ctx when there is one. It is a no-op when Sentry is off.
func CaptureError(ctx context.Context, err error, extras map[string]any) {
	if !IsEnabled() || err == nil {
		return
	}
	hub := hubFrom(ctx)
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetExtras(extras)
		hub.CaptureException(err)
	})
}

// CaptureTaskFault reports a panic recovered inside a send task, tagged by
// run so every fault of one run groups together.
func CaptureTaskFault(runID, recipient string, recovered any) {
	if !IsEnabled() {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", runID)
		scope.SetExtra("recipient", recipient)
		scope.SetLevel(sentry.LevelError)
	})
	hub.Recover(recovered)
}

// SentryMiddleware gives every request its own hub carrying the request as
// context. Panics are left to the recovery middleware, which reports them
// through CaptureError.
func SentryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(r)
			next.ServeHTTP(w, r.WithContext(sentry.SetHubOnContext(r.Context(), hub)))
		})
	}
}
