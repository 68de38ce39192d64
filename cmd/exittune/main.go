package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "exittune"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Exit-parameter optimization and validation engine",
		Version: version,
		Long: `exittune sweeps take-profit / stop-loss / max-hold grids over historical
trade populations, validates winners walk-forward against unseen windows and
tracks win rates per market regime.

Runs are batch jobs: invoke a subcommand from a scheduler or by hand. The
engine reads closed trades and cached price paths, and writes recommendations
to the result store.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to engine config YAML (defaults apply when omitted)")
	rootCmd.PersistentFlags().String("asset-class", "", "Asset class to run (overrides configured pairs)")
	rootCmd.PersistentFlags().String("algo", "", "Algorithm name to run (overrides configured pairs)")
	rootCmd.PersistentFlags().String("from", "", "Population window start (RFC3339 or YYYY-MM-DD)")
	rootCmd.PersistentFlags().String("to", "", "Population window end (RFC3339 or YYYY-MM-DD)")

	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run the grid search and store recommendations",
		Long:  "Sweep the configured TP/SL/hold grid over each pair's trade history and upsert the winning configuration for the calculation date.",
		RunE:  runOptimize,
	}
	optimizeCmd.Flags().String("date", "", "Calculation date (YYYY-MM-DD, default today UTC)")

	walkforwardCmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Run walk-forward validation and append split rows",
		Long:  "Split each pair's history into train/test windows, re-fit on train, score on test and flag overfit configurations.",
		RunE:  runWalkForward,
	}

	regimesCmd := &cobra.Command{
		Use:   "regimes",
		Short: "Recompute win rates per market regime",
		Long:  "Group recorded trade outcomes by regime label and replace the stored win-rate rows.",
		RunE:  runRegimes,
	}

	rootCmd.AddCommand(optimizeCmd, walkforwardCmd, regimesCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
