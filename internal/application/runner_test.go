package application

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoedge/exittune/internal/config"
	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/optimizer"
	"github.com/cryptoedge/exittune/internal/persistence"
	"github.com/cryptoedge/exittune/internal/regime"
	"github.com/cryptoedge/exittune/internal/telemetry"
)

var testEntry = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

type optKey struct {
	assetClass, algorithm, source string
	calcDate                      time.Time
}

type fakeStore struct {
	trades   []domain.HistoricalTrade
	labeled  []regime.LabeledTrade
	results  map[optKey]persistence.OptimizationRow
	splits   []persistence.WalkForwardRow
	regStats map[string][]regime.Stat
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results:  make(map[optKey]persistence.OptimizationRow),
		regStats: make(map[string][]regime.Stat),
	}
}

func (f *fakeStore) Upsert(_ context.Context, row persistence.OptimizationRow) error {
	key := optKey{row.AssetClass, row.AlgorithmName, row.ParamSource, row.CalcDate}
	f.results[key] = row
	return nil
}

func (f *fakeStore) Latest(_ context.Context, assetClass, algorithmName string) (*persistence.OptimizationRow, error) {
	var latest *persistence.OptimizationRow
	for key, row := range f.results {
		if key.assetClass != assetClass || key.algorithm != algorithmName {
			continue
		}
		row := row
		if latest == nil || row.CalcDate.After(latest.CalcDate) {
			latest = &row
		}
	}
	return latest, nil
}

func (f *fakeStore) ListByPair(_ context.Context, _, _ string, _ int) ([]persistence.OptimizationRow, error) {
	out := make([]persistence.OptimizationRow, 0, len(f.results))
	for _, row := range f.results {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeStore) Insert(_ context.Context, rows []persistence.WalkForwardRow) error {
	f.splits = append(f.splits, rows...)
	return nil
}

func (f *fakeStore) ListByPairWF(_ context.Context, _, _ string, _ int) ([]persistence.WalkForwardRow, error) {
	return f.splits, nil
}

func (f *fakeStore) Replace(_ context.Context, assetClass, algorithmName string, stats []regime.Stat) error {
	f.regStats[assetClass+"/"+algorithmName] = stats
	return nil
}

func (f *fakeStore) ListByPairRegime(_ context.Context, assetClass, algorithmName string) ([]regime.Stat, error) {
	return f.regStats[assetClass+"/"+algorithmName], nil
}

type fakeOptRepo struct{ *fakeStore }
type fakeWFRepo struct{ *fakeStore }
type fakeRegimeRepo struct{ *fakeStore }
type fakeTradesRepo struct{ *fakeStore }

func (f fakeWFRepo) ListByPair(ctx context.Context, a, b string, limit int) ([]persistence.WalkForwardRow, error) {
	return f.ListByPairWF(ctx, a, b, limit)
}

func (f fakeRegimeRepo) ListByPair(ctx context.Context, a, b string) ([]regime.Stat, error) {
	return f.ListByPairRegime(ctx, a, b)
}

func (f fakeTradesRepo) ListByPair(_ context.Context, _, _ string, _ persistence.TimeRange) ([]domain.HistoricalTrade, error) {
	return f.trades, nil
}

func (f fakeTradesRepo) ListLabeledOutcomes(_ context.Context, _, _ string, _ persistence.TimeRange) ([]regime.LabeledTrade, error) {
	return f.labeled, nil
}

// fakeProvider serves synthetic rising paths, with optional gaps.
type fakeProvider struct {
	gapSymbols map[string]bool
}

func (p *fakeProvider) PathFor(_ context.Context, symbol, assetClass string, from time.Time, holdHours float64) (*domain.PricePath, error) {
	if p.gapSymbols[symbol] {
		return nil, nil
	}
	points := make([]domain.PricePoint, 0, int(holdHours))
	for h := 1; h <= int(holdHours); h++ {
		points = append(points, domain.PricePoint{
			Timestamp: from.Add(time.Duration(h) * time.Hour),
			Price:     100 * (1 + 0.005*float64(h)),
		})
	}
	return &domain.PricePath{Symbol: symbol, AssetClass: assetClass, Points: points}, nil
}

func testRunner(store *fakeStore, provider *fakeProvider) *Runner {
	repo := &persistence.Repository{
		Optimizations: fakeOptRepo{store},
		WalkForward:   fakeWFRepo{store},
		RegimeStats:   fakeRegimeRepo{store},
		Trades:        fakeTradesRepo{store},
	}
	cfg := config.DefaultEngineConfig()
	cfg.Grid = domain.ParameterGrid{
		TPValues:  []float64{1, 2},
		SLValues:  []float64{1},
		HoldHours: []float64{6, 12},
	}
	cfg.Pairs = []config.Pair{{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}}
	metrics := telemetry.New(prometheus.NewRegistry())
	return NewRunner(repo, provider, cfg, metrics)
}

func seedTrades(store *fakeStore, n int) {
	for i := 0; i < n; i++ {
		store.trades = append(store.trades, domain.HistoricalTrade{
			AlgorithmName: "momentum_breakout",
			AssetClass:    "crypto",
			Symbol:        "BTCUSD",
			Direction:     domain.Long,
			EntryPrice:    100,
			EntryTime:     testEntry.Add(time.Duration(i) * 24 * time.Hour),
		})
	}
}

func fullRange() persistence.TimeRange {
	return persistence.TimeRange{From: testEntry.Add(-time.Hour), To: testEntry.Add(365 * 24 * time.Hour)}
}

func TestRunner_RunOptimizationPersistsResult(t *testing.T) {
	store := newFakeStore()
	seedTrades(store, 15)
	runner := testRunner(store, &fakeProvider{})

	calcDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	pair := config.Pair{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}

	result, err := runner.RunOptimization(context.Background(), pair, calcDate, fullRange())
	require.NoError(t, err)
	assert.Equal(t, optimizer.VerdictAdopt, result.Verdict)

	require.Len(t, store.results, 1)
	row := store.results[optKey{"crypto", "momentum_breakout", "grid_search", calcDate}]
	assert.Equal(t, result.Best.TPPct, row.TPPct)
	assert.Equal(t, "adopt", row.Verdict)
	assert.Equal(t, 15, row.TradesTested)
}

func TestRunner_RerunReplacesSameKey(t *testing.T) {
	store := newFakeStore()
	seedTrades(store, 15)
	runner := testRunner(store, &fakeProvider{})

	calcDate := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	pair := config.Pair{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}

	_, err := runner.RunOptimization(context.Background(), pair, calcDate, fullRange())
	require.NoError(t, err)
	_, err = runner.RunOptimization(context.Background(), pair, calcDate, fullRange())
	require.NoError(t, err)

	assert.Len(t, store.results, 1, "second run for the same key replaces, never duplicates")
}

func TestRunner_SkipsDataGapTrades(t *testing.T) {
	store := newFakeStore()
	seedTrades(store, 12)
	store.trades = append(store.trades, domain.HistoricalTrade{
		AlgorithmName: "momentum_breakout", AssetClass: "crypto", Symbol: "GAPCOIN",
		Direction: domain.Long, EntryPrice: 50, EntryTime: testEntry.Add(6 * time.Hour),
	})
	runner := testRunner(store, &fakeProvider{gapSymbols: map[string]bool{"GAPCOIN": true}})

	pair := config.Pair{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}
	result, err := runner.RunOptimization(context.Background(), pair,
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), fullRange())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SkippedTrades)
	assert.Equal(t, 12, result.BestStats.TradesTested)
}

func TestRunner_RunWalkForwardPersistsSplits(t *testing.T) {
	store := newFakeStore()
	seedTrades(store, 60)
	runner := testRunner(store, &fakeProvider{})

	pair := config.Pair{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}
	splits, err := runner.RunWalkForward(context.Background(), pair, fullRange())
	require.NoError(t, err)
	require.NotEmpty(t, splits)
	assert.Len(t, store.splits, len(splits))
	assert.Equal(t, splits[0].Params.TPPct, store.splits[0].TPPct)
}

func TestRunner_RunRegimeStatsReplaces(t *testing.T) {
	store := newFakeStore()
	store.labeled = []regime.LabeledTrade{
		{Trade: domain.HistoricalTrade{AlgorithmName: "momentum_breakout", AssetClass: "crypto"},
			RegimeLabel: "bull", RealizedReturnPct: 2, OutcomeRecorded: true},
		{Trade: domain.HistoricalTrade{AlgorithmName: "momentum_breakout", AssetClass: "crypto"},
			RegimeLabel: "bull", RealizedReturnPct: -1, OutcomeRecorded: true},
	}
	runner := testRunner(store, &fakeProvider{})

	pair := config.Pair{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}
	stats, err := runner.RunRegimeStats(context.Background(), pair, fullRange())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 50.0, stats[0].WinRatePct)
	assert.Equal(t, stats, store.regStats["crypto/momentum_breakout"])
}

func TestRunner_CancelledRunWritesNothing(t *testing.T) {
	store := newFakeStore()
	seedTrades(store, 15)
	runner := testRunner(store, &fakeProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pair := config.Pair{AssetClass: "crypto", AlgorithmName: "momentum_breakout"}
	_, err := runner.RunOptimization(ctx, pair, time.Now(), fullRange())
	require.Error(t, err)
	assert.Empty(t, store.results, "aborted runs must not persist partial results")
}

func TestRunner_RunAllCoversConfiguredPairs(t *testing.T) {
	store := newFakeStore()
	seedTrades(store, 30)
	runner := testRunner(store, &fakeProvider{})

	err := runner.RunAll(context.Background(),
		time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), fullRange())
	require.NoError(t, err)

	assert.Len(t, store.results, 1)
	assert.NotEmpty(t, store.splits)
}
