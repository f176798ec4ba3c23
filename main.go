package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"upbit-trading-bot/config"
	"upbit-trading-bot/internal/advisor"
	"upbit-trading-bot/internal/api"
	"upbit-trading-bot/internal/bot"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/execution"
	"upbit-trading-bot/internal/fees"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/state"
	"upbit-trading-bot/internal/upbit"
	"upbit-trading-bot/internal/vault"
)

// dryRunSeed is the virtual KRW balance for simulated trading.
const dryRunSeed = 10_000_000

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	generateConfig := flag.Bool("generate-config", false, "write a sample configuration file and exit")
	flag.Parse()

	if *generateConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			log.Fatalf("Failed to generate sample config: %v", err)
		}
		fmt.Printf("Sample configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().
		Str("ticker", cfg.TradingConfig.Ticker).
		Bool("dry_run", cfg.TradingConfig.DryRun).
		Msg("Starting trading engine")

	ctx := context.Background()

	store, err := buildStateStore(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize state store")
	}

	limits, err := cfg.RiskConfig.ToLimits()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid risk configuration")
	}
	calc, err := risk.NewCalculator(limits)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build risk calculator")
	}
	manager, err := risk.NewManager(calc, store, cfg.TradingConfig.Ticker, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build risk manager")
	}

	feeCalc, err := fees.NewCalculator(
		money.PctFromFloat(cfg.FeesConfig.Rate),
		money.FromInt(cfg.FeesConfig.MinKRW, money.KRW))
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid fee configuration")
	}

	venue, err := buildVenue(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize venue client")
	}
	port := execution.NewLive(venue, cfg.TradingConfig.Ticker, logger)

	adviser := advisor.NewClient(cfg.AdvisorConfig.BaseURL,
		time.Duration(cfg.AdvisorConfig.TimeoutSeconds)*time.Second, logger)

	var (
		db      *database.DB
		journal *database.Journal
	)
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(cfg.DatabaseConfig.Config, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
		journal = database.NewJournal(db)
		logger.Info().Msg("Trade journal enabled")
	}

	var journalSink bot.Journal
	if journal != nil {
		journalSink = journal
	}

	tradingBot, err := bot.New(bot.Options{
		Ticker:        cfg.TradingConfig.Ticker,
		Interval:      time.Duration(cfg.TradingConfig.IntervalSeconds) * time.Second,
		CandleUnit:    cfg.TradingConfig.CandleUnitMins,
		MinConfidence: cfg.TradingConfig.MinConfidence,
		Slippage:      money.PctFromFloat(cfg.TradingConfig.SlippagePct),
	}, venue, port, manager, feeCalc, adviser, journalSink, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build trading bot")
	}

	if cfg.TradingConfig.AdoptHolding {
		if err := tradingBot.AdoptHolding(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to adopt pre-existing holding")
		}
	}

	var stream *upbit.TickerStream
	if !cfg.TradingConfig.DryRun {
		wsURL := cfg.UpbitConfig.WSURL
		if wsURL == "" {
			wsURL = upbit.DefaultWSURL
		}
		stream = upbit.NewTickerStream(wsURL, []string{cfg.TradingConfig.Ticker}, logger)
		stream.Start()
		go func() {
			for update := range stream.Updates() {
				logger.Debug().
					Str("ticker", update.Ticker).
					Str("price", update.Price.String()).
					Msg("Ticker update")
			}
		}()
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var trades api.TradeSource
		if journal != nil {
			trades = journal
		}
		server = api.NewServer(cfg.ServerConfig.ServerConfig, cfg.TradingConfig.Ticker,
			manager, tradingBot, trades, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("API server failed")
			}
		}()
	}

	tradingBot.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	tradingBot.Stop()
	if stream != nil {
		stream.Stop()
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API server shutdown failed")
		}
	}
	logger.Info().Msg("Shutdown complete")
}

// buildStateStore selects the risk state backend.
func buildStateStore(cfg *config.Config, logger zerolog.Logger) (state.Store, error) {
	switch cfg.StateConfig.Backend {
	case "file":
		return state.NewFileStore(cfg.StateConfig.FilePath, logger)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.StateConfig.Redis.Address,
			Password: cfg.StateConfig.Redis.Password,
			DB:       cfg.StateConfig.Redis.DB,
		})
		return state.NewRedisStore(client, cfg.TradingConfig.Ticker, logger), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateConfig.Backend)
	}
}

// buildVenue returns a simulated exchange in dry-run mode, else the real
// client with keys from Vault when enabled, falling back to the config.
func buildVenue(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (upbit.Exchange, error) {
	if cfg.TradingConfig.DryRun {
		logger.Info().Int("seed_krw", dryRunSeed).Msg("Dry run: using simulated exchange")
		return upbit.NewMockClient(
			money.FromInt(dryRunSeed, money.KRW),
			money.PctFromFloat(cfg.FeesConfig.Rate)), nil
	}

	accessKey := cfg.UpbitConfig.AccessKey
	secretKey := cfg.UpbitConfig.SecretKey

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return nil, err
	}
	if vaultClient.IsEnabled() {
		creds, err := vaultClient.LoadCredentials(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load credentials from vault: %w", err)
		}
		accessKey = creds.AccessKey
		secretKey = creds.SecretKey
		logger.Info().Msg("Venue credentials loaded from Vault")
	}
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("venue credentials are not configured")
	}

	return upbit.NewClient(accessKey, secretKey, cfg.UpbitConfig.BaseURL, logger), nil
}
