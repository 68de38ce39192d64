package walkforward

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/optimizer"
	"github.com/cryptoedge/exittune/internal/sim"
)

const sharpeEpsilon = 1e-9

// WindowPolicy is the externally configured split policy. The engine treats
// it as data, not as an invariant.
type WindowPolicy struct {
	// Splits is the number of rolling (train, test) segments the available
	// date range is divided into.
	Splits int `yaml:"splits"`

	// TrainFraction is the share of each segment used for training, the
	// remainder is the test window.
	TrainFraction float64 `yaml:"train_fraction"`

	// MinTestTrades flags a split as overfit when the test window holds
	// fewer trades than this, regardless of decay.
	MinTestTrades int `yaml:"min_test_trades"`

	// DecayThresholdPct flags a split as overfit when Sharpe decays by more
	// than this percentage from train to test.
	DecayThresholdPct float64 `yaml:"decay_threshold_pct"`
}

// DefaultWindowPolicy returns the production split policy.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		Splits:            3,
		TrainFraction:     0.8,
		MinTestTrades:     5,
		DecayThresholdPct: 50,
	}
}

func (p WindowPolicy) validate() error {
	if p.Splits < 1 {
		return fmt.Errorf("splits must be >= 1, got %d", p.Splits)
	}
	if p.TrainFraction <= 0 || p.TrainFraction >= 1 {
		return fmt.Errorf("train fraction must be in (0, 1), got %f", p.TrainFraction)
	}
	return nil
}

// Split is one walk-forward validation row: the configuration fit on the
// train window and its realized performance on the unseen test window.
type Split struct {
	AlgorithmName  string                    `json:"algorithm_name"`
	AssetClass     string                    `json:"asset_class"`
	TrainStart     time.Time                 `json:"train_start"`
	TrainEnd       time.Time                 `json:"train_end"`
	TestStart      time.Time                 `json:"test_start"`
	TestEnd        time.Time                 `json:"test_end"`
	Params         domain.ParameterSet       `json:"params"`
	TrainStats     domain.ConfigurationStats `json:"train_stats"`
	TestStats      domain.ConfigurationStats `json:"test_stats"`
	TrainSharpe    float64                   `json:"train_sharpe"`
	TestSharpe     float64                   `json:"test_sharpe"`
	SharpeDecayPct float64                   `json:"sharpe_decay_pct"`
	IsOverfit      bool                      `json:"is_overfit"`
}

// Input carries one validation run.
type Input struct {
	AlgorithmName string
	AssetClass    string
	Trades        []optimizer.TradeWithPath
	Grid          domain.ParameterGrid
	Policy        WindowPolicy
	Optimizer     optimizer.Policy
}

// Validate partitions the trade history into chronological (train, test)
// windows, re-fits the optimizer on each train window and scores the selected
// configuration on the unseen test window. A split with zero test trades
// still emits a row flagged overfit; absence of data is a finding, not a
// fault.
func Validate(ctx context.Context, input Input) ([]Split, error) {
	if err := input.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameter grid: %w", err)
	}
	policy := input.Policy
	if policy.Splits == 0 {
		policy = DefaultWindowPolicy()
	}
	if err := policy.validate(); err != nil {
		return nil, fmt.Errorf("invalid window policy: %w", err)
	}
	if len(input.Trades) == 0 {
		return nil, nil
	}

	trades := make([]optimizer.TradeWithPath, len(input.Trades))
	copy(trades, input.Trades)
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Trade.EntryTime.Before(trades[j].Trade.EntryTime)
	})

	first := trades[0].Trade.EntryTime
	last := trades[len(trades)-1].Trade.EntryTime
	span := last.Sub(first)
	if span <= 0 {
		// All trades share one entry timestamp: no chronology to split.
		return nil, nil
	}

	segment := span / time.Duration(policy.Splits)
	splits := make([]Split, 0, policy.Splits)

	for i := 0; i < policy.Splits; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		segStart := first.Add(time.Duration(i) * segment)
		segEnd := segStart.Add(segment)
		if i == policy.Splits-1 {
			segEnd = last.Add(time.Nanosecond) // include the final trade
		}
		trainEnd := segStart.Add(time.Duration(float64(segEnd.Sub(segStart)) * policy.TrainFraction))

		train := windowTrades(trades, segStart, trainEnd)
		test := windowTrades(trades, trainEnd, segEnd)

		split, err := evaluateSplit(ctx, input, policy, segStart, trainEnd, segEnd, train, test)
		if err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}

	log.Debug().
		Str("algorithm", input.AlgorithmName).
		Str("asset_class", input.AssetClass).
		Int("splits", len(splits)).
		Msg("Walk-forward validation complete")

	return splits, nil
}

// windowTrades returns trades whose entry time falls in [start, end).
func windowTrades(trades []optimizer.TradeWithPath, start, end time.Time) []optimizer.TradeWithPath {
	out := make([]optimizer.TradeWithPath, 0)
	for _, tw := range trades {
		if !tw.Trade.EntryTime.Before(start) && tw.Trade.EntryTime.Before(end) {
			out = append(out, tw)
		}
	}
	return out
}

func evaluateSplit(ctx context.Context, input Input, policy WindowPolicy,
	trainStart, trainEnd, testEnd time.Time,
	train, test []optimizer.TradeWithPath) (Split, error) {

	split := Split{
		AlgorithmName: input.AlgorithmName,
		AssetClass:    input.AssetClass,
		TrainStart:    trainStart,
		TrainEnd:      trainEnd,
		TestStart:     trainEnd,
		TestEnd:       testEnd,
	}

	optResult, err := optimizer.Optimize(ctx, optimizer.Input{
		AlgorithmName: input.AlgorithmName,
		AssetClass:    input.AssetClass,
		ParamSource:   "walk_forward_train",
		CalcDate:      trainEnd,
		Trades:        train,
		Grid:          input.Grid,
		Policy:        input.Optimizer,
	})
	if err != nil {
		return Split{}, fmt.Errorf("train-window optimization failed: %w", err)
	}
	split.Params = optResult.Best
	split.TrainStats = optResult.BestStats

	// Score the fixed train-window winner on the test window. The optimizer
	// is never consulted here; the point is unseen data.
	var trainReturns, testReturns []float64
	{
		var acc domain.StatsAccumulator
		for _, tw := range train {
			if !tw.Path.Usable() {
				continue
			}
			acc.Add(sim.Simulate(tw.Trade, *tw.Path, split.Params))
		}
		trainReturns = acc.Returns()
	}
	var testAcc domain.StatsAccumulator
	for _, tw := range test {
		if !tw.Path.Usable() {
			continue
		}
		testAcc.Add(sim.Simulate(tw.Trade, *tw.Path, split.Params))
	}
	testReturns = testAcc.Returns()
	split.TestStats = testAcc.Stats()

	split.TrainSharpe = sharpe(trainReturns)
	split.TestSharpe = sharpe(testReturns)
	split.SharpeDecayPct = sharpeDecayPct(split.TrainSharpe, split.TestSharpe)
	split.IsOverfit = split.SharpeDecayPct > policy.DecayThresholdPct ||
		split.TestStats.TradesTested < policy.MinTestTrades

	return split, nil
}

// sharpe approximates a per-window Sharpe ratio from the raw return series:
// mean over population standard deviation. A constant or empty series scores
// zero.
func sharpe(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	if variance < sharpeEpsilon {
		return 0
	}
	return mean / math.Sqrt(variance)
}

func sharpeDecayPct(train, test float64) float64 {
	denom := math.Abs(train)
	if denom < sharpeEpsilon {
		denom = sharpeEpsilon
	}
	return (train - test) / denom * 100
}
