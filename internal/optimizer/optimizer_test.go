package optimizer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/exittune/internal/domain"
)

var entryTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// risingTrade is a LONG entry whose path climbs steadily by pctPerHour,
// producing deterministic wins for small TP values.
func risingTrade(entry time.Time, pctPerHour float64, hours int) TradeWithPath {
	trade := domain.HistoricalTrade{
		AlgorithmName: "momentum_breakout",
		AssetClass:    "crypto",
		Symbol:        "BTCUSD",
		Direction:     domain.Long,
		EntryPrice:    100,
		EntryTime:     entry,
	}
	points := make([]domain.PricePoint, hours)
	for i := 0; i < hours; i++ {
		points[i] = domain.PricePoint{
			Timestamp: entry.Add(time.Duration(i+1) * time.Hour),
			Price:     100 * (1 + pctPerHour/100*float64(i+1)),
		}
	}
	return TradeWithPath{Trade: trade, Path: &domain.PricePath{Symbol: "BTCUSD", Points: points}}
}

// fallingTrade mirrors risingTrade downward, producing losses.
func fallingTrade(entry time.Time, pctPerHour float64, hours int) TradeWithPath {
	tw := risingTrade(entry, pctPerHour, hours)
	for i := range tw.Path.Points {
		tw.Path.Points[i].Price = 200 - tw.Path.Points[i].Price
	}
	return tw
}

func smallGrid() domain.ParameterGrid {
	return domain.ParameterGrid{
		TPValues:  []float64{1, 2},
		SLValues:  []float64{1, 2},
		HoldHours: []float64{4, 8},
	}
}

func optimizeInput(trades []TradeWithPath, grid domain.ParameterGrid) Input {
	return Input{
		AlgorithmName: "momentum_breakout",
		AssetClass:    "crypto",
		ParamSource:   "grid_search",
		CalcDate:      time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Trades:        trades,
		Grid:          grid,
		Policy:        DefaultPolicy(),
	}
}

func TestOptimize_GridCompleteness(t *testing.T) {
	trades := make([]TradeWithPath, 0, 12)
	for i := 0; i < 12; i++ {
		trades = append(trades, risingTrade(entryTime.Add(time.Duration(i)*24*time.Hour), 0.5, 10))
	}

	swept, skipped, err := Sweep(context.Background(), trades, smallGrid())
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, swept, 8) // 2*2*2

	for _, cs := range swept {
		assert.Equal(t, 12, cs.Stats.TradesTested, "every configuration re-simulates every trade")
	}
}

func TestOptimize_Deterministic(t *testing.T) {
	trades := []TradeWithPath{}
	for i := 0; i < 15; i++ {
		if i%3 == 0 {
			trades = append(trades, fallingTrade(entryTime.Add(time.Duration(i)*time.Hour), 0.5, 10))
		} else {
			trades = append(trades, risingTrade(entryTime.Add(time.Duration(i)*time.Hour), 0.5, 10))
		}
	}

	first, err := Optimize(context.Background(), optimizeInput(trades, domain.DefaultGrid()))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		again, err := Optimize(context.Background(), optimizeInput(trades, domain.DefaultGrid()))
		require.NoError(t, err)
		assert.Equal(t, first.Best, again.Best)
		assert.Equal(t, first.BestStats, again.BestStats)
		assert.Equal(t, first.ProfitableCombos, again.ProfitableCombos)
	}
}

func TestOptimize_AllWinBeatsMixed(t *testing.T) {
	// Config A: all 20 trades WIN with +1%. Config B: 10 WIN / 10 LOSS.
	allWin := ComboStats{
		Params: domain.ParameterSet{TPPct: 1, SLPct: 1, MaxHoldHours: 4},
		Stats: domain.ConfigurationStats{
			TradesTested: 20, Wins: 20,
			TotalReturnPct: 20, AvgReturnPct: 1, WinRatePct: 100,
			ProfitFactor: 0, // zero gross losses, stored as 0 by convention
		},
		Index: 0,
	}
	mixed := ComboStats{
		Params: domain.ParameterSet{TPPct: 2, SLPct: 1, MaxHoldHours: 4},
		Stats: domain.ConfigurationStats{
			TradesTested: 20, Wins: 10, Losses: 10,
			TotalReturnPct: 10, AvgReturnPct: 0.5, WinRatePct: 50,
			ProfitFactor: 2,
		},
		Index: 1,
	}

	assert.True(t, Better(allWin, mixed, DefaultRanking()))
	assert.False(t, Better(mixed, allWin, DefaultRanking()))
}

func TestOptimize_TieBreakByGridOrder(t *testing.T) {
	a := ComboStats{Index: 3, Stats: domain.ConfigurationStats{ProfitFactor: 2, WinRatePct: 60, TotalReturnPct: 5}}
	b := ComboStats{Index: 7, Stats: domain.ConfigurationStats{ProfitFactor: 2, WinRatePct: 60, TotalReturnPct: 5}}

	assert.True(t, Better(a, b, DefaultRanking()))
	assert.False(t, Better(b, a, DefaultRanking()))
}

func TestOptimize_InsufficientData(t *testing.T) {
	trades := []TradeWithPath{
		risingTrade(entryTime, 0.5, 10),
		risingTrade(entryTime.Add(time.Hour), 0.5, 10),
		risingTrade(entryTime.Add(2*time.Hour), 0.5, 10),
	}

	result, err := Optimize(context.Background(), optimizeInput(trades, smallGrid()))
	require.NoError(t, err)
	assert.Equal(t, VerdictInsufficientData, result.Verdict)
	assert.Equal(t, 3, result.BestStats.TradesTested)
}

func TestOptimize_DataGapsSkippedNotFatal(t *testing.T) {
	trades := make([]TradeWithPath, 0, 14)
	for i := 0; i < 12; i++ {
		trades = append(trades, risingTrade(entryTime.Add(time.Duration(i)*time.Hour), 0.5, 10))
	}
	trades = append(trades,
		TradeWithPath{Trade: trades[0].Trade, Path: nil},
		TradeWithPath{Trade: trades[0].Trade, Path: &domain.PricePath{Symbol: "BTCUSD"}},
	)

	result, err := Optimize(context.Background(), optimizeInput(trades, smallGrid()))
	require.NoError(t, err)
	assert.Equal(t, 2, result.SkippedTrades)
	assert.Equal(t, 12, result.BestStats.TradesTested)
}

func TestOptimize_ProfitableCombos(t *testing.T) {
	trades := make([]TradeWithPath, 0, 12)
	for i := 0; i < 12; i++ {
		trades = append(trades, risingTrade(entryTime.Add(time.Duration(i)*time.Hour), 0.5, 10))
	}

	result, err := Optimize(context.Background(), optimizeInput(trades, smallGrid()))
	require.NoError(t, err)
	assert.Equal(t, 8, result.TotalCombos)
	// Monotonically rising paths never stop out, every combo is profitable.
	assert.Equal(t, 8, result.ProfitableCombos)
	assert.Equal(t, VerdictAdopt, result.Verdict)
}

func TestOptimize_RejectsDegenerateGrid(t *testing.T) {
	grid := domain.ParameterGrid{TPValues: []float64{1}, SLValues: []float64{0}, HoldHours: []float64{4}}
	_, err := Optimize(context.Background(), optimizeInput(nil, grid))
	assert.Error(t, err)
}

func TestOptimize_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Optimize(ctx, optimizeInput([]TradeWithPath{risingTrade(entryTime, 0.5, 10)}, smallGrid()))
	assert.ErrorIs(t, err, context.Canceled)
}
