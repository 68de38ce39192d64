package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/sim"
)

// Verdict categorizes an optimization result for downstream gating. Callers
// must check the verdict before applying a configuration.
type Verdict string

const (
	VerdictAdopt            Verdict = "adopt"
	VerdictNoImprovement    Verdict = "no_improvement"
	VerdictInsufficientData Verdict = "insufficient_data"
)

// Policy holds the externally supplied optimization thresholds. Nothing in
// this package reads process-wide configuration; every call carries its own
// policy so concurrent runs for different pairs can use different ones.
type Policy struct {
	// MinSampleSize gates the verdict: below this count the run still
	// completes but is tagged insufficient_data.
	MinSampleSize int `yaml:"min_sample_size"`

	// Ranking is the comparison order for picking the winner. Empty means
	// DefaultRanking.
	Ranking []RankCriterion `yaml:"ranking"`
}

// RankCriterion names one comparison in the winner-selection order.
type RankCriterion string

const (
	RankProfitFactor RankCriterion = "profit_factor"
	RankWinRate      RankCriterion = "win_rate"
	RankTotalReturn  RankCriterion = "total_return"
)

// DefaultRanking is profit factor first, then win rate, then total return.
// Ties after all three resolve by canonical grid enumeration order.
func DefaultRanking() []RankCriterion {
	return []RankCriterion{RankProfitFactor, RankWinRate, RankTotalReturn}
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{MinSampleSize: 10, Ranking: DefaultRanking()}
}

// TradeWithPath pairs a historical trade with its price path. A nil or empty
// path marks a data gap; the trade is skipped and counted, never fatal.
type TradeWithPath struct {
	Trade domain.HistoricalTrade
	Path  *domain.PricePath
}

// ComboStats is the per-configuration aggregate produced by the sweep.
type ComboStats struct {
	Params domain.ParameterSet       `json:"params"`
	Stats  domain.ConfigurationStats `json:"stats"`
	// Index is the configuration's position in canonical grid order, the
	// final deterministic tie-break.
	Index int `json:"index"`
}

// Result is one optimizer run over a single (algorithm, asset class) pair.
type Result struct {
	AlgorithmName    string                    `json:"algorithm_name"`
	AssetClass       string                    `json:"asset_class"`
	ParamSource      string                    `json:"param_source"`
	CalcDate         time.Time                 `json:"calc_date"`
	Best             domain.ParameterSet       `json:"best_params"`
	BestStats        domain.ConfigurationStats `json:"best_stats"`
	ProfitableCombos int                       `json:"profitable_combos"`
	TotalCombos      int                       `json:"total_combos"`
	SkippedTrades    int                       `json:"skipped_trades"`
	Verdict          Verdict                   `json:"verdict"`
}

// Input carries everything one optimization run needs.
type Input struct {
	AlgorithmName string
	AssetClass    string
	ParamSource   string
	CalcDate      time.Time
	Trades        []TradeWithPath
	Grid          domain.ParameterGrid
	Policy        Policy
}

// Optimize sweeps the full Cartesian grid over the trade population and picks
// the winning configuration under a deterministic total order. The run is
// all-or-nothing: a cancelled context returns an error and no partial result.
func Optimize(ctx context.Context, input Input) (*Result, error) {
	if err := input.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameter grid: %w", err)
	}

	policy := input.Policy
	if len(policy.Ranking) == 0 {
		policy.Ranking = DefaultRanking()
	}
	if policy.MinSampleSize <= 0 {
		policy.MinSampleSize = DefaultPolicy().MinSampleSize
	}

	usable, skipped := partitionUsable(input.Trades)

	combos := input.Grid.Combinations()
	swept := make([]ComboStats, 0, len(combos))
	for i, params := range combos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var acc domain.StatsAccumulator
		for _, tw := range usable {
			acc.Add(sim.Simulate(tw.Trade, *tw.Path, params))
		}
		swept = append(swept, ComboStats{Params: params, Stats: acc.Stats(), Index: i})
	}

	best := swept[0]
	profitable := 0
	for _, cs := range swept {
		if cs.Stats.TotalReturnPct > 0 {
			profitable++
		}
		if Better(cs, best, policy.Ranking) {
			best = cs
		}
	}

	result := &Result{
		AlgorithmName:    input.AlgorithmName,
		AssetClass:       input.AssetClass,
		ParamSource:      input.ParamSource,
		CalcDate:         input.CalcDate,
		Best:             best.Params,
		BestStats:        best.Stats,
		ProfitableCombos: profitable,
		TotalCombos:      len(combos),
		SkippedTrades:    skipped,
		Verdict:          verdictFor(best.Stats, policy),
	}

	log.Debug().
		Str("algorithm", input.AlgorithmName).
		Str("asset_class", input.AssetClass).
		Int("trades", len(usable)).
		Int("skipped", skipped).
		Int("combos", len(combos)).
		Str("best", best.Params.String()).
		Str("verdict", string(result.Verdict)).
		Msg("Grid search complete")

	return result, nil
}

// Sweep runs the grid without picking a winner, returning every per-config
// aggregate in canonical order. The walk-forward validator uses this to score
// a fixed configuration on a test window.
func Sweep(ctx context.Context, trades []TradeWithPath, grid domain.ParameterGrid) ([]ComboStats, int, error) {
	if err := grid.Validate(); err != nil {
		return nil, 0, fmt.Errorf("invalid parameter grid: %w", err)
	}

	usable, skipped := partitionUsable(trades)
	combos := grid.Combinations()
	swept := make([]ComboStats, 0, len(combos))
	for i, params := range combos {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		var acc domain.StatsAccumulator
		for _, tw := range usable {
			acc.Add(sim.Simulate(tw.Trade, *tw.Path, params))
		}
		swept = append(swept, ComboStats{Params: params, Stats: acc.Stats(), Index: i})
	}
	return swept, skipped, nil
}

func partitionUsable(trades []TradeWithPath) (usable []TradeWithPath, skipped int) {
	usable = make([]TradeWithPath, 0, len(trades))
	for _, tw := range trades {
		if !tw.Path.Usable() {
			skipped++
			continue
		}
		usable = append(usable, tw)
	}
	return usable, skipped
}

func verdictFor(best domain.ConfigurationStats, policy Policy) Verdict {
	if best.TradesTested < policy.MinSampleSize {
		return VerdictInsufficientData
	}
	if best.TotalReturnPct <= 0 {
		return VerdictNoImprovement
	}
	return VerdictAdopt
}

// Better reports whether a should rank ahead of b under the given criteria.
// Exact equality on a criterion falls through to the next one; the canonical
// grid index breaks any remaining tie, so the order is total.
func Better(a, b ComboStats, ranking []RankCriterion) bool {
	for _, crit := range ranking {
		av, bv := criterionValue(a.Stats, crit), criterionValue(b.Stats, crit)
		if av != bv {
			return av > bv
		}
	}
	return a.Index < b.Index
}

// criterionValue maps a criterion to its comparable value. A population with
// wins and zero gross losses stores profit factor 0 by convention but ranks
// as unbeatable, otherwise an all-win configuration would lose to any mixed
// one.
func criterionValue(s domain.ConfigurationStats, crit RankCriterion) float64 {
	switch crit {
	case RankProfitFactor:
		if s.ProfitFactor == 0 && s.TotalReturnPct > 0 {
			return math.Inf(1)
		}
		return s.ProfitFactor
	case RankWinRate:
		return s.WinRatePct
	case RankTotalReturn:
		return s.TotalReturnPct
	default:
		return 0
	}
}
