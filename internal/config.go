package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	LogLevel string
	Port     uint16

	// UploadDir holds one staging directory per run, removed when the run ends.
	UploadDir string
	// RunLogPath is the append-only log of every delivery attempt.
	RunLogPath string

	CORSOrigins []string
	MaxUploadMB int

	Dispatch DispatchConfig
	SMTP     SMTPConfig
	Admin    AdminConfig
	NATS     NATSConfig
	Archive  ArchiveConfig
	Sentry   SentryConfig
}

// DispatchConfig controls the send pool.
type DispatchConfig struct {
	// Concurrency is the number of sends in flight per run.
	Concurrency int
	// StatsOrder is "completion" or "submission".
	StatsOrder string
}

// SMTPConfig holds transport settings that are not part of a send request.
// Host and credentials arrive with every request.
type SMTPConfig struct {
	Timeout       time.Duration
	AllowInsecure bool // opportunistic TLS, for local relays such as Mailpit
}

// AdminConfig controls the post-run summary email.
type AdminConfig struct {
	NotifyEnabled bool
	NotifyEmail   string
}

// NATSConfig enables publishing progress events to NATS when URL is set.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// ArchiveConfig selects where finished run logs are copied.
type ArchiveConfig struct {
	Provider      string // "none", "local" or "r2"
	LocalPath     string
	R2AccountID   string
	R2AccessKeyID string
	R2SecretKey   string
	R2BucketName  string
	R2PublicURL   string
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
}

func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	cfg := &Config{
		Env:         getEnv("ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Port:        getEnvInt("PORT", 5000),
		UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
		RunLogPath:  getEnv("RUN_LOG_PATH", "./email_log.txt"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		MaxUploadMB: int(getEnvInt("MAX_UPLOAD_MB", 64)),
		Dispatch: DispatchConfig{
			Concurrency: int(getEnvInt("WORKER_CONCURRENCY", 5)),
			StatsOrder:  getEnv("STATS_ORDER", "completion"),
		},
		SMTP: SMTPConfig{
			Timeout:       time.Duration(getEnvInt("SMTP_TIMEOUT_SECONDS", 30)) * time.Second,
			AllowInsecure: getEnvBool("SMTP_ALLOW_INSECURE", false),
		},
		Admin: AdminConfig{
			NotifyEnabled: getEnvBool("ADMIN_NOTIFY_ENABLED", false),
			NotifyEmail:   getEnv("ADMIN_NOTIFY_EMAIL", ""),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "courier.progress"),
		},
		Archive: ArchiveConfig{
			Provider:      getEnv("ARCHIVE_PROVIDER", "none"),
			LocalPath:     getEnv("ARCHIVE_LOCAL_PATH", "./archive"),
			R2AccountID:   getEnv("R2_ACCOUNT_ID", ""),
			R2AccessKeyID: getEnv("R2_ACCESS_KEY_ID", ""),
			R2SecretKey:   getEnv("R2_SECRET_ACCESS_KEY", ""),
			R2BucketName:  getEnv("R2_BUCKET_NAME", ""),
			R2PublicURL:   getEnv("R2_PUBLIC_URL", ""),
		},
		Sentry: SentryConfig{
			DSN:         getEnv("SENTRY_DSN", ""),
			Enabled:     getEnvBool("SENTRY_ENABLED", false), // Disabled by default for development
			Environment: getEnv("SENTRY_ENVIRONMENT", "development"),
			Release:     getEnv("SENTRY_RELEASE", ""),
			SampleRate:  getEnvFloat("SENTRY_SAMPLE_RATE", 1.0),
			Debug:       getEnvBool("SENTRY_DEBUG", false),
		},
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.Dispatch.Concurrency < 1 {
		slog.Default().Warn("Invalid worker concurrency. Using default: 5", slog.Int("value", cfg.Dispatch.Concurrency))
		cfg.Dispatch.Concurrency = 5
	}

	if cfg.Dispatch.StatsOrder != "completion" && cfg.Dispatch.StatsOrder != "submission" {
		slog.Default().Warn("Invalid stats order. Using default: completion", slog.String("value", cfg.Dispatch.StatsOrder))
		cfg.Dispatch.StatsOrder = "completion"
	}

	if cfg.Admin.NotifyEnabled && cfg.Admin.NotifyEmail == "" {
		return nil, fmt.Errorf("ADMIN_NOTIFY_EMAIL required when ADMIN_NOTIFY_ENABLED is set")
	}

	// Validate R2 configuration when archiving to R2
	if cfg.Archive.Provider == "r2" {
		if cfg.Archive.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID required when archiving to R2")
		}
		if cfg.Archive.R2AccessKeyID == "" || cfg.Archive.R2SecretKey == "" {
			return nil, fmt.Errorf("R2 credentials required when archiving to R2")
		}
		if cfg.Archive.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME required when archiving to R2")
		}
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue uint16) uint16 {
	if value := os.Getenv(key); value != "" {
		var intValue uint16
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var floatValue float64
		if _, err := fmt.Sscanf(value, "%f", &floatValue); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
