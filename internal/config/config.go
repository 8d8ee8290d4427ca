// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Telemetry exporters.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds all configuration for the application.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"console"`

	// TelegramBotToken enables the voting bot and chat notifications when set.
	TelegramBotToken     string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramNotifyChatID int64  `env:"TELEGRAM_NOTIFY_CHAT_ID"`

	ExchangeAPIURL      string        `env:"EXCHANGE_API_URL" envDefault:"https://api.frankfurter.app"`
	ExchangeTimeout     time.Duration `env:"EXCHANGE_TIMEOUT" envDefault:"5s"`
	ExchangeCacheTTL    time.Duration `env:"EXCHANGE_CACHE_TTL" envDefault:"12h"`
	RateStalenessWindow time.Duration `env:"RATE_STALENESS_WINDOW" envDefault:"96h"`
	AcceptLastKnownRate bool          `env:"ACCEPT_LAST_KNOWN_RATE"`

	// RulesFile points at a YAML approval configuration that replaces the
	// database-backed rule store.
	RulesFile    string `env:"RULES_FILE"`
	NotifyBuffer int    `env:"NOTIFY_BUFFER" envDefault:"256"`

	OTelExporter string `env:"OTEL_EXPORTER" envDefault:"none"`
	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"expense-approval"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.OTelExporter = strings.ToLower(strings.TrimSpace(cfg.OTelExporter))

	// Validate required configuration.
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks that all required configuration is present.
func (c *Config) validate() error {
	var errs []string

	if c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be console or json")
	}

	if c.TelegramNotifyChatID != 0 && c.TelegramBotToken == "" {
		errs = append(errs, "TELEGRAM_NOTIFY_CHAT_ID requires TELEGRAM_BOT_TOKEN")
	}

	if c.RateStalenessWindow <= 0 {
		errs = append(errs, "RATE_STALENESS_WINDOW must be positive")
	}

	if c.NotifyBuffer <= 0 {
		errs = append(errs, "NOTIFY_BUFFER must be positive")
	}

	exporters := []string{ExporterNone, ExporterStdout, ExporterOTLPGRPC, ExporterOTLPHTTP}
	if !slices.Contains(exporters, c.OTelExporter) {
		errs = append(errs, "OTEL_EXPORTER must be one of "+strings.Join(exporters, ", "))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// BotEnabled reports whether the Telegram integration is configured.
func (c *Config) BotEnabled() bool {
	return c.TelegramBotToken != ""
}
