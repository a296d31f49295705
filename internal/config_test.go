package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, 5, cfg.Dispatch.Concurrency)
	assert.Equal(t, "completion", cfg.Dispatch.StatsOrder)
	assert.Equal(t, 30*time.Second, cfg.SMTP.Timeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "none", cfg.Archive.Provider)
}

func TestNewConfig_Overrides(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("STATS_ORDER", "submission")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SMTP_TIMEOUT_SECONDS", "10")
	t.Setenv("ADMIN_NOTIFY_ENABLED", "true")
	t.Setenv("ADMIN_NOTIFY_EMAIL", "ops@example.com")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Dispatch.Concurrency)
	assert.Equal(t, "submission", cfg.Dispatch.StatsOrder)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.SMTP.Timeout)
	assert.True(t, cfg.Admin.NotifyEnabled)
}

func TestNewConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")
	t.Setenv("STATS_ORDER", "random")
	t.Setenv("LOG_LEVEL", "verbose")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Dispatch.Concurrency)
	assert.Equal(t, "completion", cfg.Dispatch.StatsOrder)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestNewConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "admin notify without address",
			env:  map[string]string{"ADMIN_NOTIFY_ENABLED": "true"},
		},
		{
			name: "r2 archive without account",
			env:  map[string]string{"ARCHIVE_PROVIDER": "r2"},
		},
		{
			name: "r2 archive without bucket",
			env: map[string]string{
				"ARCHIVE_PROVIDER":     "r2",
				"R2_ACCOUNT_ID":        "acct",
				"R2_ACCESS_KEY_ID":     "key",
				"R2_SECRET_ACCESS_KEY": "secret",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := NewConfig()
			assert.Error(t, err)
		})
	}
}
