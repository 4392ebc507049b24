package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	TargetDir   string `envconfig:"TARGET_DIR" required:"true"`
	DBPath      string `envconfig:"DB_PATH" default:"catalog.db"`
	MaxParallel int    `envconfig:"MAX_PARALLEL" default:"4"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"INFO"`

	ReadBufferSize      int           `envconfig:"READ_BUFFER_SIZE" default:"32768"`
	ProgressReportReads int           `envconfig:"PROGRESS_REPORT_READS" default:"20"`
	HTTPConnectTimeout  time.Duration `envconfig:"HTTP_CONNECT_TIMEOUT" default:"15s"`
	HTTPReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`

	KeepCompletedFor time.Duration `envconfig:"KEEP_COMPLETED_FOR" default:"0"`
	CleanupInterval  time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`

	WebhookURL string `envconfig:"WEBHOOK_URL"`

	API struct {
		Username string `split_words:"true"`
		Password string `split_words:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8080"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}

	Telemetry struct {
		Enabled        bool   `split_words:"true" default:"true"`
		ServiceName    string `split_words:"true" default:"offline_downloader"`
		ServiceVersion string `split_words:"true" default:"dev"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
