package walkforward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/optimizer"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func trendTrade(entry time.Time, pctPerHour float64) optimizer.TradeWithPath {
	trade := domain.HistoricalTrade{
		AlgorithmName: "momentum_breakout",
		AssetClass:    "crypto",
		Symbol:        "ETHUSD",
		Direction:     domain.Long,
		EntryPrice:    100,
		EntryTime:     entry,
	}
	points := make([]domain.PricePoint, 12)
	for i := range points {
		points[i] = domain.PricePoint{
			Timestamp: entry.Add(time.Duration(i+1) * time.Hour),
			Price:     100 * (1 + pctPerHour/100*float64(i+1)),
		}
	}
	return optimizer.TradeWithPath{Trade: trade, Path: &domain.PricePath{Symbol: "ETHUSD", Points: points}}
}

// population spans 90 days, one trade per day.
func population(days int, pctPerHour func(day int) float64) []optimizer.TradeWithPath {
	trades := make([]optimizer.TradeWithPath, 0, days)
	for d := 0; d < days; d++ {
		trades = append(trades, trendTrade(baseTime.Add(time.Duration(d)*24*time.Hour), pctPerHour(d)))
	}
	return trades
}

func smallGrid() domain.ParameterGrid {
	return domain.ParameterGrid{
		TPValues:  []float64{1, 2},
		SLValues:  []float64{1, 2},
		HoldHours: []float64{6, 12},
	}
}

func validateInput(trades []optimizer.TradeWithPath, policy WindowPolicy) Input {
	return Input{
		AlgorithmName: "momentum_breakout",
		AssetClass:    "crypto",
		Trades:        trades,
		Grid:          smallGrid(),
		Policy:        policy,
		Optimizer:     optimizer.DefaultPolicy(),
	}
}

func TestValidate_WindowMonotonicity(t *testing.T) {
	trades := population(90, func(int) float64 { return 0.5 })

	splits, err := Validate(context.Background(), validateInput(trades, DefaultWindowPolicy()))
	require.NoError(t, err)
	require.Len(t, splits, 3)

	for i, s := range splits {
		assert.True(t, s.TrainStart.Before(s.TrainEnd), "split %d: train_start < train_end", i)
		assert.False(t, s.TestStart.Before(s.TrainEnd), "split %d: train_end <= test_start", i)
		assert.True(t, s.TestStart.Before(s.TestEnd), "split %d: test_start < test_end", i)
		if i > 0 {
			assert.False(t, s.TrainStart.Before(splits[i-1].TestEnd),
				"split %d overlaps split %d", i, i-1)
		}
	}
}

func TestValidate_StableEdgeNotOverfit(t *testing.T) {
	// Identical behavior in every window: train and test agree, no decay.
	trades := population(90, func(int) float64 { return 0.5 })

	splits, err := Validate(context.Background(), validateInput(trades, DefaultWindowPolicy()))
	require.NoError(t, err)

	for i, s := range splits {
		require.GreaterOrEqual(t, s.TestStats.TradesTested, 5, "split %d needs test trades", i)
		assert.False(t, s.IsOverfit, "split %d flagged overfit for a stable edge", i)
		assert.LessOrEqual(t, s.SharpeDecayPct, DefaultWindowPolicy().DecayThresholdPct)
	}
}

func TestValidate_RegimeBreakFlagsOverfit(t *testing.T) {
	// Edge works for the first 70 days then inverts: the last split's test
	// window sees losses the train window never did.
	trades := population(90, func(day int) float64 {
		if day < 70 {
			return 0.5
		}
		return -0.5
	})

	policy := DefaultWindowPolicy()
	policy.Splits = 1
	policy.TrainFraction = 0.75

	splits, err := Validate(context.Background(), validateInput(trades, policy))
	require.NoError(t, err)
	require.Len(t, splits, 1)

	s := splits[0]
	assert.Greater(t, s.TrainSharpe, s.TestSharpe)
	assert.True(t, s.IsOverfit)
	assert.Greater(t, s.SharpeDecayPct, policy.DecayThresholdPct)
}

func TestValidate_EmptyTestWindowEmitsOverfitRow(t *testing.T) {
	// All trades cluster at the very start; the test windows are empty.
	trades := make([]optimizer.TradeWithPath, 0, 20)
	for i := 0; i < 20; i++ {
		trades = append(trades, trendTrade(baseTime.Add(time.Duration(i)*time.Minute), 0.5))
	}
	// One far-future trade stretches the range so test windows exist.
	trades = append(trades, trendTrade(baseTime.Add(100*24*time.Hour), 0.5))

	policy := DefaultWindowPolicy()
	policy.Splits = 1

	splits, err := Validate(context.Background(), validateInput(trades, policy))
	require.NoError(t, err)
	require.Len(t, splits, 1)

	s := splits[0]
	assert.LessOrEqual(t, s.TestStats.TradesTested, 1)
	assert.True(t, s.IsOverfit, "sparse test window must be flagged, not errored")
}

func TestValidate_NoTrades(t *testing.T) {
	splits, err := Validate(context.Background(), validateInput(nil, DefaultWindowPolicy()))
	require.NoError(t, err)
	assert.Empty(t, splits)
}

func TestValidate_RejectsBadPolicy(t *testing.T) {
	policy := WindowPolicy{Splits: 2, TrainFraction: 1.5, MinTestTrades: 5, DecayThresholdPct: 50}
	trades := population(30, func(int) float64 { return 0.5 })

	_, err := Validate(context.Background(), validateInput(trades, policy))
	assert.Error(t, err)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, sharpe(nil))
	assert.Equal(t, 0.0, sharpe([]float64{1, 1, 1}), "constant series has no risk, scores zero")

	s := sharpe([]float64{1, -1, 1, -1})
	assert.InDelta(t, 0.0, s, 1e-9)

	pos := sharpe([]float64{2, 1, 3, 2})
	assert.Greater(t, pos, 0.0)
}

func TestSharpeDecayPct(t *testing.T) {
	assert.InDelta(t, 50.0, sharpeDecayPct(2.0, 1.0), 1e-9)
	assert.InDelta(t, 0.0, sharpeDecayPct(1.5, 1.5), 1e-9)
	// Improvement on test is negative decay.
	assert.Less(t, sharpeDecayPct(1.0, 2.0), 0.0)
}
