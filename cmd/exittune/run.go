package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cryptoedge/exittune/internal/application"
	"github.com/cryptoedge/exittune/internal/config"
	"github.com/cryptoedge/exittune/internal/persistence"
	"github.com/cryptoedge/exittune/internal/persistence/postgres"
	"github.com/cryptoedge/exittune/internal/pricecache"
	"github.com/cryptoedge/exittune/internal/telemetry"
)

// loadConfig reads the config file named by --config, falling back to
// defaults, and applies the pair override flags.
func loadConfig(cmd *cobra.Command) (*config.EngineConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.EngineConfig
	if path == "" {
		def := config.DefaultEngineConfig()
		cfg = &def
	} else {
		loaded, err := config.LoadEngineConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	assetClass, _ := cmd.Flags().GetString("asset-class")
	algo, _ := cmd.Flags().GetString("algo")
	if assetClass != "" || algo != "" {
		if assetClass == "" || algo == "" {
			return nil, fmt.Errorf("--asset-class and --algo must be given together")
		}
		cfg.Pairs = []config.Pair{{AssetClass: assetClass, AlgorithmName: algo}}
	}
	if len(cfg.Pairs) == 0 {
		return nil, fmt.Errorf("no pairs to run: configure pairs or pass --asset-class and --algo")
	}

	return cfg, nil
}

// buildRunner wires the result store and price cache behind a runner.
func buildRunner(cfg *config.EngineConfig) (*application.Runner, func(), error) {
	db, err := postgres.Connect(cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	provider, err := pricecache.Connect(cfg.PriceCache)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	repo := postgres.NewRepository(db, time.Duration(cfg.Postgres.QueryTimeout))
	runner := application.NewRunner(repo, provider, *cfg, telemetry.NewDefault())
	cleanup := func() { db.Close() }
	return runner, cleanup, nil
}

// parseWindow resolves --from/--to into the population time range. The
// default is the trailing year.
func parseWindow(cmd *cobra.Command) (persistence.TimeRange, error) {
	now := time.Now().UTC()
	tr := persistence.TimeRange{From: now.AddDate(-1, 0, 0), To: now}

	if s, _ := cmd.Flags().GetString("from"); s != "" {
		t, err := parseFlagTime(s)
		if err != nil {
			return tr, fmt.Errorf("invalid --from: %w", err)
		}
		tr.From = t
	}
	if s, _ := cmd.Flags().GetString("to"); s != "" {
		t, err := parseFlagTime(s)
		if err != nil {
			return tr, fmt.Errorf("invalid --to: %w", err)
		}
		tr.To = t
	}
	if !tr.From.Before(tr.To) {
		return tr, fmt.Errorf("--from must precede --to")
	}
	return tr, nil
}

func parseFlagTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// runContext installs signal-driven cancellation for a batch run.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tr, err := parseWindow(cmd)
	if err != nil {
		return err
	}

	calcDate := time.Now().UTC().Truncate(24 * time.Hour)
	if s, _ := cmd.Flags().GetString("date"); s != "" {
		calcDate, err = time.Parse("2006-01-02", s)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	runner, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := runContext()
	defer cancel()

	for _, pair := range cfg.Pairs {
		result, err := runner.RunOptimization(ctx, pair, calcDate, tr)
		if err != nil {
			return fmt.Errorf("optimize %s/%s: %w", pair.AssetClass, pair.AlgorithmName, err)
		}
		log.Info().
			Str("asset_class", pair.AssetClass).
			Str("algorithm", pair.AlgorithmName).
			Str("params", result.Best.String()).
			Str("verdict", string(result.Verdict)).
			Msg("Recommendation stored")
	}
	return nil
}

func runWalkForward(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tr, err := parseWindow(cmd)
	if err != nil {
		return err
	}

	runner, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := runContext()
	defer cancel()

	for _, pair := range cfg.Pairs {
		splits, err := runner.RunWalkForward(ctx, pair, tr)
		if err != nil {
			return fmt.Errorf("walkforward %s/%s: %w", pair.AssetClass, pair.AlgorithmName, err)
		}
		for _, s := range splits {
			log.Info().
				Time("train_start", s.TrainStart).
				Time("test_end", s.TestEnd).
				Float64("sharpe_decay_pct", s.SharpeDecayPct).
				Bool("is_overfit", s.IsOverfit).
				Msg("Split recorded")
		}
	}
	return nil
}

func runRegimes(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	tr, err := parseWindow(cmd)
	if err != nil {
		return err
	}

	runner, cleanup, err := buildRunner(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := runContext()
	defer cancel()

	for _, pair := range cfg.Pairs {
		stats, err := runner.RunRegimeStats(ctx, pair, tr)
		if err != nil {
			return fmt.Errorf("regimes %s/%s: %w", pair.AssetClass, pair.AlgorithmName, err)
		}
		for _, s := range stats {
			log.Info().
				Str("regime", s.RegimeLabel).
				Int("trades", s.TradeCount).
				Float64("win_rate_pct", s.WinRatePct).
				Msg("Regime bucket")
		}
	}
	return nil
}
