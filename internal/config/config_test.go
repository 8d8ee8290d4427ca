package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads required config with defaults", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
		require.Equal(t, "info", cfg.LogLevel)
		require.Equal(t, "console", cfg.LogFormat)
		require.Equal(t, 96*time.Hour, cfg.RateStalenessWindow)
		require.Equal(t, 12*time.Hour, cfg.ExchangeCacheTTL)
		require.Equal(t, ExporterNone, cfg.OTelExporter)
		require.Equal(t, 256, cfg.NotifyBuffer)
		require.False(t, cfg.BotEnabled())
	})

	t.Run("parses durations and flags", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("RATE_STALENESS_WINDOW", "24h")
		t.Setenv("EXCHANGE_TIMEOUT", "2s")
		t.Setenv("ACCEPT_LAST_KNOWN_RATE", "true")
		t.Setenv("RULES_FILE", "rules.yaml")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 24*time.Hour, cfg.RateStalenessWindow)
		require.Equal(t, 2*time.Second, cfg.ExchangeTimeout)
		require.True(t, cfg.AcceptLastKnownRate)
		require.Equal(t, "rules.yaml", cfg.RulesFile)
	})

	t.Run("normalizes case of enums", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("LOG_FORMAT", " JSON ")
		t.Setenv("OTEL_EXPORTER", "OTLP-GRPC")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, "json", cfg.LogFormat)
		require.Equal(t, ExporterOTLPGRPC, cfg.OTelExporter)
	})

	t.Run("enables bot with token", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("TELEGRAM_BOT_TOKEN", "token")
		t.Setenv("TELEGRAM_NOTIFY_CHAT_ID", "-100123")

		cfg, err := Load()
		require.NoError(t, err)
		require.True(t, cfg.BotEnabled())
		require.Equal(t, int64(-100123), cfg.TelegramNotifyChatID)
	})

	t.Run("fails without database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "DATABASE_URL is required")
	})

	t.Run("collects every validation problem", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		t.Setenv("LOG_FORMAT", "xml")
		t.Setenv("OTEL_EXPORTER", "zipkin")
		t.Setenv("TELEGRAM_NOTIFY_CHAT_ID", "42")
		t.Setenv("TELEGRAM_BOT_TOKEN", "")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "DATABASE_URL is required")
		require.Contains(t, err.Error(), "LOG_FORMAT")
		require.Contains(t, err.Error(), "OTEL_EXPORTER")
		require.Contains(t, err.Error(), "TELEGRAM_NOTIFY_CHAT_ID requires")
	})

	t.Run("rejects malformed duration", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("RATE_STALENESS_WINDOW", "soon")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("rejects non-positive buffer", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://localhost/test")
		t.Setenv("NOTIFY_BUFFER", "0")

		_, err := Load()
		require.Error(t, err)
		require.Contains(t, err.Error(), "NOTIFY_BUFFER")
	})
}
