package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rebalancer/internal/agent"
	"rebalancer/internal/config"
	"rebalancer/internal/core"
	"rebalancer/internal/exchange"
	"rebalancer/internal/feed"
	"rebalancer/internal/guard"
	"rebalancer/internal/portfolio"
	"rebalancer/internal/telemetry"
	"rebalancer/pkg/concurrency"
	"rebalancer/pkg/logging"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

// paperEquity is the reserve balance a dry run starts with.
const paperEquity = 10_000.0

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("rebalancer version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// Load .env before the config so ${VAR} expansion sees the values.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)
	defer logger.Sync()

	logger.Info("Starting rebalancer",
		"version", version,
		"symbols", cfg.Portfolio.Symbols,
		"reserve", cfg.Portfolio.ReserveSymbol,
		"interval", cfg.CycleInterval(),
		"dry_run", cfg.System.DryRun,
	)

	if err := run(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Rebalancer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Rebalancer stopped")
}

func run(cfg *config.Config, logger core.Logger) error {
	clock := core.RealClock{}

	policy := guard.Policy{
		MaxSlippagePct:         cfg.Guards.MaxSlippagePct,
		MaxPriceAge:            time.Duration(cfg.Guards.MaxPriceAgeSeconds) * time.Second,
		MinNotionalQuote:       cfg.Guards.MinNotionalQuote,
		MinBaseAmount:          1e-8,
		MaxPriceImpactPct:      cfg.Guards.MaxPriceImpactPct,
		SplitThresholdQuote:    cfg.Guards.SplitThresholdQuote,
		SplitParts:             cfg.Guards.SplitParts,
		MaxRetries:             cfg.Guards.MaxRetries,
		Backoff:                time.Duration(cfg.Guards.BackoffMillis) * time.Millisecond,
		MaxConsecutiveFailures: cfg.Guards.MaxConsecutiveFailures,
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("invalid guard policy: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Market data stream and independent reference oracle.
	priceFeed := feed.NewPriceFeed(cfg.Feed.WebsocketURL, cfg.Feed.Tickers, clock, logger)
	priceFeed.Start()
	defer priceFeed.Stop()

	oracle := exchange.NewBinanceOracle(logger)
	seedFeed(ctx, cfg, priceFeed, oracle, logger)

	// Venue. A dry run trades against an in-memory paper venue fed by the
	// same market data stream.
	var (
		quotes   core.QuoteSource
		sender   core.OrderSender
		balances core.BalanceSource
	)
	if cfg.System.DryRun {
		paper := exchange.NewPaperVenue(priceFeed, clock, map[string]float64{
			cfg.Portfolio.ReserveSymbol: paperEquity,
		}, logger)
		quotes, sender, balances = paper, paper, paper
	} else {
		recall := exchange.NewRecallClient(cfg.Venue.BaseURL, cfg.Venue.APIKey, logger)
		if err := recall.CheckHealth(ctx); err != nil {
			logger.Warn("Venue health check failed (will continue)", "error", err)
		}
		quotes, sender, balances = recall, recall, recall
	}

	// Position tracking and persistence.
	tracker := portfolio.NewTracker(portfolio.ExitRules{
		StopLossPct:   cfg.Guards.StopLossPct,
		TakeProfitPct: cfg.Guards.TakeProfitPct,
		TrailingPct:   cfg.Guards.TrailingStopPct,
	}, clock, logger)

	var journal agent.Journal
	if cfg.Portfolio.DatabasePath != "" {
		store, err := portfolio.NewStore(cfg.Portfolio.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening position store: %w", err)
		}
		defer store.Close()

		positions, err := store.LoadPositions(ctx)
		if err != nil {
			return fmt.Errorf("restoring positions: %w", err)
		}
		tracker.Restore(positions)
		journal = store
		logger.Info("Positions restored", "count", len(positions))
	}

	// Guard pipeline.
	sanitizer := guard.NewSanitizer(cfg.Portfolio.Symbols, cfg.Guards.MaxPerAsset, cfg.Guards.ReserveFloor, cfg.Portfolio.ReserveSymbol)
	limiter := guard.NewExecutionRateLimiter(
		time.Duration(cfg.Guards.MinTradeGapSeconds)*time.Second,
		cfg.Guards.MaxTradesPerHour,
		clock,
	)
	checker := guard.NewPreTradeChecker(
		sanitizer,
		limiter,
		cfg.Guards.MaxTurnover,
		policy.MaxPriceAge,
		cfg.Guards.MaxSlippagePct,
		cfg.Guards.VolatilityHalt,
		clock,
	)
	breaker := guard.NewFailureBreaker("execution",
		cfg.Guards.MaxConsecutiveFailures,
		time.Duration(cfg.Guards.BreakerCooloffSeconds)*time.Second,
		clock,
	)
	validator := guard.NewValidator(policy, balances, clock, cfg.Venue.Spender, logger)
	executor := guard.NewExecutor(quotes, sender, oracle, validator, breaker, policy, clock, logger)

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:       "snapshot",
		MaxWorkers: 4,
	}, logger)
	defer pool.Stop()

	rebalancer := agent.NewRebalancer(
		agent.Config{
			Symbols:  cfg.Portfolio.Symbols,
			Reserve:  cfg.Portfolio.ReserveSymbol,
			Band:     cfg.Portfolio.RebalanceBandPct,
			Interval: cfg.CycleInterval(),
		},
		policy,
		agent.Deps{
			Proposer: buildProposer(cfg, priceFeed),
			Checker:  checker,
			Executor: executor,
			Limiter:  limiter,
			Balances: balances,
			Market:   priceFeed,
			Oracle:   oracle,
			Sender:   sender,
			Tracker:  tracker,
			Journal:  journal,
			Pool:     pool,
			Clock:    clock,
			Logger:   logger,
		},
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Telemetry.EnableMetrics {
		metricsServer := telemetry.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		return rebalancer.Run(ctx)
	})

	return g.Wait()
}

// buildProposer selects the allocation strategy from the config. With no
// explicit target weights the portfolio is split equally.
func buildProposer(cfg *config.Config, market core.MarketData) core.AllocationProposer {
	targets := make(core.Allocation, len(cfg.Portfolio.Symbols))
	if len(cfg.Portfolio.TargetWeights) > 0 {
		for symbol, weight := range cfg.Portfolio.TargetWeights {
			targets[symbol] = weight
		}
	} else {
		equal := 1.0 / float64(len(cfg.Portfolio.Symbols))
		for _, symbol := range cfg.Portfolio.Symbols {
			targets[symbol] = equal
		}
	}

	if strings.EqualFold(cfg.Portfolio.Strategy, "momentum") {
		tilt := cfg.Portfolio.MomentumTilt
		if tilt <= 0 {
			tilt = 0.08
		}
		return agent.NewMomentumProposer(targets, market, cfg.Portfolio.ReserveSymbol, tilt)
	}
	return agent.NewStaticProposer(targets)
}

// seedFeed primes the price feed from the reference oracle so the first
// cycle does not have to wait for the stream to tick.
func seedFeed(ctx context.Context, cfg *config.Config, priceFeed *feed.PriceFeed, oracle core.ReferenceOracle, logger core.Logger) {
	for _, symbol := range cfg.Portfolio.Symbols {
		if symbol == cfg.Portfolio.ReserveSymbol {
			continue
		}
		if price := oracle.ReferencePrice(ctx, symbol, cfg.Portfolio.ReserveSymbol); price > 0 {
			priceFeed.Record(symbol, price)
		} else {
			logger.Warn("No seed price for symbol", "symbol", symbol)
		}
	}
}
