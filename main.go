// Package main is the entry point for the expense claim approval service.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/yelinaung/expense-approval/internal/approval"
	"gitlab.com/yelinaung/expense-approval/internal/bot"
	"gitlab.com/yelinaung/expense-approval/internal/config"
	"gitlab.com/yelinaung/expense-approval/internal/database"
	"gitlab.com/yelinaung/expense-approval/internal/exchange"
	"gitlab.com/yelinaung/expense-approval/internal/logger"
	"gitlab.com/yelinaung/expense-approval/internal/notify"
	"gitlab.com/yelinaung/expense-approval/internal/repository"
	"gitlab.com/yelinaung/expense-approval/internal/ruleconfig"
	"gitlab.com/yelinaung/expense-approval/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("expense-approval %s (commit: %s, built: %s)\n", version, commit, date)
			return
		case "check-rules":
			os.Exit(checkRules(os.Args[2:]))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	logger.InitHashSalt()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Fatal().Err(err).Msg("Service stopped with error")
	}
	logger.Log.Info().Msg("Shut down cleanly")
}

// checkRules validates a rules file and reports the result on stdout.
func checkRules(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: expense-approval check-rules <rules.yaml>")
		return 2
	}
	if _, err := ruleconfig.Load(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "invalid rules: %v\n", err)
		return 1
	}
	fmt.Println("rules OK")
	return 0
}

func run(ctx context.Context, cfg *config.Config) error {
	providers, err := telemetry.Setup(ctx, telemetry.Options{
		Exporter:    cfg.OTelExporter,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error().Err(err).Msg("Failed to flush telemetry")
		}
	}()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Log.Info().Msg("Database initialized successfully")

	users := repository.NewUserRepository(pool)
	claims := repository.NewClaimRepository(pool)
	events := repository.NewEventRepository(pool)

	var rules approval.RuleConfigStore = repository.NewRuleConfigRepository(pool)
	if cfg.RulesFile != "" {
		store, err := ruleconfig.Load(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("failed to load rules file: %w", err)
		}
		rules = store
		logger.Log.Info().Str("path", cfg.RulesFile).Msg("Using file-based approval rules")
		go reloadRulesOnHangup(ctx, store)
	}

	rates := exchange.NewCachedProvider(
		exchange.NewFrankfurterClient(cfg.ExchangeAPIURL, cfg.ExchangeTimeout),
		cfg.ExchangeCacheTTL,
	)

	dispatcher := notify.NewDispatcher(cfg.NotifyBuffer, notify.LogSink{}, notify.SinkFunc(events.Insert))

	engine := approval.NewEngine(approval.Deps{
		Claims:         claims,
		Companies:      repository.NewCompanyRepository(pool),
		Rules:          rules,
		Directory:      users,
		Normalizer:     exchange.NewNormalizer(rates, cfg.RateStalenessWindow),
		Events:         dispatcher,
		TracerProvider: providers.TracerProvider,
		MeterProvider:  providers.MeterProvider,
	}, approval.SubmitPolicy{AcceptLastKnownRate: cfg.AcceptLastKnownRate})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.BotEnabled() {
		telegramBot, err := bot.New(cfg, engine, users, claims)
		if err != nil {
			return fmt.Errorf("failed to create bot: %w", err)
		}
		dispatcher.Register(bot.NewNotifier(telegramBot.API(), cfg.TelegramNotifyChatID, claims, users))
		g.Go(func() error {
			telegramBot.Start(gctx)
			return gctx.Err()
		})
	} else {
		logger.Log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, running without the voting bot")
	}

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	logger.Log.Info().Str("version", version).Msg("Expense approval service started")
	err = g.Wait()
	if dropped := dispatcher.Dropped(); dropped > 0 {
		logger.Log.Warn().Int64("dropped", dropped).Msg("Step events were dropped while the notifier was saturated")
	}
	return err
}

// reloadRulesOnHangup re-reads the rules file on SIGHUP.
func reloadRulesOnHangup(ctx context.Context, store *ruleconfig.Store) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(); err != nil {
				logger.Log.Error().Err(err).Msg("Failed to reload rules, keeping previous configuration")
				continue
			}
			logger.Log.Info().Msg("Approval rules reloaded")
		}
	}
}
