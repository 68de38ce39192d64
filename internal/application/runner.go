package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cryptoedge/exittune/internal/config"
	"github.com/cryptoedge/exittune/internal/optimizer"
	"github.com/cryptoedge/exittune/internal/persistence"
	"github.com/cryptoedge/exittune/internal/pricecache"
	"github.com/cryptoedge/exittune/internal/regime"
	"github.com/cryptoedge/exittune/internal/telemetry"
	"github.com/cryptoedge/exittune/internal/walkforward"
)

// Runner orchestrates whole engine runs for (algorithm, asset class) pairs:
// load the trade population, resolve price paths, run the engine, persist.
// Repos are only written after an engine call completes, so an aborted run
// leaves no partial state behind. The runner has no internal locking;
// concurrent runs for the same key are the scheduler's problem.
type Runner struct {
	repo    *persistence.Repository
	prices  pricecache.Provider
	config  config.EngineConfig
	metrics *telemetry.Metrics
}

// NewRunner wires a runner over its collaborators.
func NewRunner(repo *persistence.Repository, prices pricecache.Provider, cfg config.EngineConfig, metrics *telemetry.Metrics) *Runner {
	return &Runner{
		repo:    repo,
		prices:  prices,
		config:  cfg,
		metrics: metrics,
	}
}

// loadPopulation pairs each trade with its price path. Missing paths stay
// nil; the optimizer counts them as skipped.
func (r *Runner) loadPopulation(ctx context.Context, pair config.Pair, tr persistence.TimeRange) ([]optimizer.TradeWithPath, error) {
	trades, err := r.repo.Trades.ListByPair(ctx, pair.AssetClass, pair.AlgorithmName, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	maxHold := r.config.Grid.MaxHoldHours()
	population := make([]optimizer.TradeWithPath, 0, len(trades))
	for _, trade := range trades {
		path, err := r.prices.PathFor(ctx, trade.Symbol, trade.AssetClass, trade.EntryTime, maxHold)
		if err != nil {
			return nil, fmt.Errorf("price path lookup for %s failed: %w", trade.Symbol, err)
		}
		population = append(population, optimizer.TradeWithPath{Trade: trade, Path: path})
	}

	return population, nil
}

// RunOptimization executes one grid search for a pair and upserts the result
// under the given calculation date.
func (r *Runner) RunOptimization(ctx context.Context, pair config.Pair, calcDate time.Time, tr persistence.TimeRange) (*optimizer.Result, error) {
	runID := uuid.New()
	started := time.Now()

	logger := log.With().
		Str("run_id", runID.String()).
		Str("asset_class", pair.AssetClass).
		Str("algorithm", pair.AlgorithmName).
		Logger()

	population, err := r.loadPopulation(ctx, pair, tr)
	if err != nil {
		return nil, err
	}

	result, err := optimizer.Optimize(ctx, optimizer.Input{
		AlgorithmName: pair.AlgorithmName,
		AssetClass:    pair.AssetClass,
		ParamSource:   "grid_search",
		CalcDate:      calcDate,
		Trades:        population,
		Grid:          r.config.Grid,
		Policy:        r.config.Optimizer,
	})
	if err != nil {
		return nil, fmt.Errorf("optimization failed: %w", err)
	}

	if err := r.repo.Optimizations.Upsert(ctx, rowFromResult(result)); err != nil {
		return nil, fmt.Errorf("failed to persist optimization result: %w", err)
	}

	r.metrics.OptimizationRuns.WithLabelValues(pair.AssetClass, pair.AlgorithmName, string(result.Verdict)).Inc()
	r.metrics.SkippedTrades.WithLabelValues(pair.AssetClass, pair.AlgorithmName).Add(float64(result.SkippedTrades))
	r.metrics.RunDurationSeconds.WithLabelValues("optimization").Observe(time.Since(started).Seconds())

	logger.Info().
		Str("best", result.Best.String()).
		Str("verdict", string(result.Verdict)).
		Int("trades", result.BestStats.TradesTested).
		Int("skipped", result.SkippedTrades).
		Int("profitable_combos", result.ProfitableCombos).
		Dur("elapsed", time.Since(started)).
		Msg("Optimization run complete")

	return result, nil
}

// RunWalkForward validates a pair's configuration stability and appends the
// split rows.
func (r *Runner) RunWalkForward(ctx context.Context, pair config.Pair, tr persistence.TimeRange) ([]walkforward.Split, error) {
	runID := uuid.New()
	started := time.Now()

	population, err := r.loadPopulation(ctx, pair, tr)
	if err != nil {
		return nil, err
	}

	splits, err := walkforward.Validate(ctx, walkforward.Input{
		AlgorithmName: pair.AlgorithmName,
		AssetClass:    pair.AssetClass,
		Trades:        population,
		Grid:          r.config.Grid,
		Policy:        r.config.WalkForward,
		Optimizer:     r.config.Optimizer,
	})
	if err != nil {
		return nil, fmt.Errorf("walk-forward validation failed: %w", err)
	}

	rows := make([]persistence.WalkForwardRow, 0, len(splits))
	for _, s := range splits {
		rows = append(rows, rowFromSplit(s))
	}
	if err := r.repo.WalkForward.Insert(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to persist walk-forward splits: %w", err)
	}

	r.metrics.WalkForwardRuns.WithLabelValues(pair.AssetClass, pair.AlgorithmName).Inc()
	r.metrics.RunDurationSeconds.WithLabelValues("walk_forward").Observe(time.Since(started).Seconds())

	overfit := 0
	for _, s := range splits {
		if s.IsOverfit {
			overfit++
		}
	}
	log.Info().
		Str("run_id", runID.String()).
		Str("asset_class", pair.AssetClass).
		Str("algorithm", pair.AlgorithmName).
		Int("splits", len(splits)).
		Int("overfit", overfit).
		Dur("elapsed", time.Since(started)).
		Msg("Walk-forward run complete")

	return splits, nil
}

// RunRegimeStats recomputes win rates per regime for a pair and replaces the
// stored rows.
func (r *Runner) RunRegimeStats(ctx context.Context, pair config.Pair, tr persistence.TimeRange) ([]regime.Stat, error) {
	started := time.Now()

	labeled, err := r.repo.Trades.ListLabeledOutcomes(ctx, pair.AssetClass, pair.AlgorithmName, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to load labeled outcomes: %w", err)
	}

	stats := regime.Track(labeled)
	if err := r.repo.RegimeStats.Replace(ctx, pair.AssetClass, pair.AlgorithmName, stats); err != nil {
		return nil, fmt.Errorf("failed to persist regime stats: %w", err)
	}

	r.metrics.RegimeRuns.WithLabelValues(pair.AssetClass, pair.AlgorithmName).Inc()
	r.metrics.RunDurationSeconds.WithLabelValues("regime").Observe(time.Since(started).Seconds())

	log.Info().
		Str("asset_class", pair.AssetClass).
		Str("algorithm", pair.AlgorithmName).
		Int("buckets", len(stats)).
		Msg("Regime stats run complete")

	return stats, nil
}

// RunAll runs optimization, walk-forward and regime stats for every
// configured pair. A failing pair is logged and skipped; the remaining pairs
// still run. The first error is returned after all pairs were attempted.
func (r *Runner) RunAll(ctx context.Context, calcDate time.Time, tr persistence.TimeRange) error {
	var firstErr error
	for _, pair := range r.config.Pairs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := r.RunOptimization(ctx, pair, calcDate, tr); err != nil {
			log.Error().Err(err).
				Str("asset_class", pair.AssetClass).
				Str("algorithm", pair.AlgorithmName).
				Msg("Optimization run failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := r.RunWalkForward(ctx, pair, tr); err != nil {
			log.Error().Err(err).
				Str("asset_class", pair.AssetClass).
				Str("algorithm", pair.AlgorithmName).
				Msg("Walk-forward run failed")
			if firstErr == nil {
				firstErr = err
			}
		}
		if _, err := r.RunRegimeStats(ctx, pair, tr); err != nil {
			log.Error().Err(err).
				Str("asset_class", pair.AssetClass).
				Str("algorithm", pair.AlgorithmName).
				Msg("Regime stats run failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func rowFromResult(result *optimizer.Result) persistence.OptimizationRow {
	return persistence.OptimizationRow{
		AssetClass:       result.AssetClass,
		AlgorithmName:    result.AlgorithmName,
		ParamSource:      result.ParamSource,
		CalcDate:         result.CalcDate,
		TPPct:            result.Best.TPPct,
		SLPct:            result.Best.SLPct,
		MaxHoldHours:     result.Best.MaxHoldHours,
		TradesTested:     result.BestStats.TradesTested,
		Wins:             result.BestStats.Wins,
		Losses:           result.BestStats.Losses,
		Expired:          result.BestStats.Expired,
		TotalReturnPct:   result.BestStats.TotalReturnPct,
		AvgReturnPct:     result.BestStats.AvgReturnPct,
		WinRatePct:       result.BestStats.WinRatePct,
		ProfitFactor:     result.BestStats.ProfitFactor,
		BestTradePct:     result.BestStats.BestTradePct,
		WorstTradePct:    result.BestStats.WorstTradePct,
		AvgHoldHours:     result.BestStats.AvgHoldHours,
		ProfitableCombos: result.ProfitableCombos,
		TotalCombos:      result.TotalCombos,
		SkippedTrades:    result.SkippedTrades,
		Verdict:          string(result.Verdict),
	}
}

func rowFromSplit(s walkforward.Split) persistence.WalkForwardRow {
	return persistence.WalkForwardRow{
		AlgorithmName:  s.AlgorithmName,
		AssetClass:     s.AssetClass,
		TrainStart:     s.TrainStart,
		TrainEnd:       s.TrainEnd,
		TestStart:      s.TestStart,
		TestEnd:        s.TestEnd,
		TPPct:          s.Params.TPPct,
		SLPct:          s.Params.SLPct,
		MaxHoldHours:   s.Params.MaxHoldHours,
		TrainStats:     s.TrainStats,
		TestStats:      s.TestStats,
		TrainSharpe:    s.TrainSharpe,
		TestSharpe:     s.TestSharpe,
		SharpeDecayPct: s.SharpeDecayPct,
		IsOverfit:      s.IsOverfit,
	}
}
