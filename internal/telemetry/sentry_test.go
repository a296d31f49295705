package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSentry_Disabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for name, cfg := range map[string]SentryConfig{
		"disabled":    {Enabled: false, DSN: "https://key@example.com/1"},
		"missing dsn": {Enabled: true},
	} {
		t.Run(name, func(t *testing.T) {
			flush, err := InitSentry(cfg, logger)
			require.NoError(t, err)
			require.NotNil(t, flush)
			flush()
			assert.False(t, IsEnabled())
		})
	}
}

func TestCaptureHelpers_NoopWhenDisabled(t *testing.T) {
	enabled.Store(false)

	assert.NotPanics(t, func() {
		CaptureError(context.Background(), errors.New("boom"), map[string]any{"path": "/send-email"})
		CaptureTaskFault("run-1", "a@example.com", "panic value")
	})
}

func TestScrubRequest(t *testing.T) {
	event := &sentry.Event{Request: &sentry.Request{
		Data:    "sender_password=hunter2",
		Headers: map[string]string{"X-Smtp-Password": "hunter2", "Accept": "application/json"},
	}}

	got := scrubRequest(event, nil)

	assert.Empty(t, got.Request.Data)
	assert.NotContains(t, got.Request.Headers, "X-Smtp-Password")
	assert.Equal(t, "application/json", got.Request.Headers["Accept"])
}

func TestSentryMiddleware_PassThroughWhenDisabled(t *testing.T) {
	enabled.Store(false)

	var called bool
	h := SentryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Nil(t, sentry.GetHubFromContext(r.Context()))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, called)
}
