package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/regime"
)

// ErrStoreConflict signals that an upsert raced with another run for the same
// key. The engine never retries internally; the caller decides.
var ErrStoreConflict = errors.New("result store conflict")

// TimeRange is a half-open [From, To) query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// OptimizationRow is one persisted recommendation, unique on
// (asset_class, algorithm_name, param_source, calc_date). Re-running the same
// date replaces the prior row, never duplicates it.
type OptimizationRow struct {
	AssetClass       string    `json:"asset_class" db:"asset_class"`
	AlgorithmName    string    `json:"algorithm_name" db:"algorithm_name"`
	ParamSource      string    `json:"param_source" db:"param_source"`
	CalcDate         time.Time `json:"calc_date" db:"calc_date"`
	TPPct            float64   `json:"tp_pct" db:"tp_pct"`
	SLPct            float64   `json:"sl_pct" db:"sl_pct"`
	MaxHoldHours     float64   `json:"max_hold_hours" db:"max_hold_hours"`
	TradesTested     int       `json:"trades_tested" db:"trades_tested"`
	Wins             int       `json:"wins" db:"wins"`
	Losses           int       `json:"losses" db:"losses"`
	Expired          int       `json:"expired" db:"expired"`
	TotalReturnPct   float64   `json:"total_return_pct" db:"total_return_pct"`
	AvgReturnPct     float64   `json:"avg_return_pct" db:"avg_return_pct"`
	WinRatePct       float64   `json:"win_rate_pct" db:"win_rate_pct"`
	ProfitFactor     float64   `json:"profit_factor" db:"profit_factor"`
	BestTradePct     float64   `json:"best_trade_pct" db:"best_trade_pct"`
	WorstTradePct    float64   `json:"worst_trade_pct" db:"worst_trade_pct"`
	AvgHoldHours     float64   `json:"avg_hold_hours" db:"avg_hold_hours"`
	ProfitableCombos int       `json:"profitable_combos" db:"profitable_combos"`
	TotalCombos      int       `json:"total_combos" db:"total_combos"`
	SkippedTrades    int       `json:"skipped_trades" db:"skipped_trades"`
	Verdict          string    `json:"verdict" db:"verdict"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// WalkForwardRow is one persisted walk-forward split, append-only, keyed by
// the six window columns. History is never rewritten so decay trends stay
// analyzable.
type WalkForwardRow struct {
	AlgorithmName  string                    `json:"algorithm_name" db:"algorithm_name"`
	AssetClass     string                    `json:"asset_class" db:"asset_class"`
	TrainStart     time.Time                 `json:"train_start" db:"train_start"`
	TrainEnd       time.Time                 `json:"train_end" db:"train_end"`
	TestStart      time.Time                 `json:"test_start" db:"test_start"`
	TestEnd        time.Time                 `json:"test_end" db:"test_end"`
	TPPct          float64                   `json:"tp_pct" db:"tp_pct"`
	SLPct          float64                   `json:"sl_pct" db:"sl_pct"`
	MaxHoldHours   float64                   `json:"max_hold_hours" db:"max_hold_hours"`
	TrainStats     domain.ConfigurationStats `json:"train_stats" db:"-"`
	TestStats      domain.ConfigurationStats `json:"test_stats" db:"-"`
	TrainSharpe    float64                   `json:"train_sharpe" db:"train_sharpe"`
	TestSharpe     float64                   `json:"test_sharpe" db:"test_sharpe"`
	SharpeDecayPct float64                   `json:"sharpe_decay_pct" db:"sharpe_decay_pct"`
	IsOverfit      bool                      `json:"is_overfit" db:"is_overfit"`
	CreatedAt      time.Time                 `json:"created_at" db:"created_at"`
}

// OptimizationRepo stores current recommendations with idempotent
// upsert-by-key semantics.
type OptimizationRepo interface {
	// Upsert inserts or replaces the row for its unique key. A concurrent
	// writer racing on the same key surfaces ErrStoreConflict.
	Upsert(ctx context.Context, row OptimizationRow) error

	// Latest returns the most recent recommendation for a pair, nil when
	// none exists.
	Latest(ctx context.Context, assetClass, algorithmName string) (*OptimizationRow, error)

	// ListByPair returns the recommendation history for a pair, newest first.
	ListByPair(ctx context.Context, assetClass, algorithmName string, limit int) ([]OptimizationRow, error)
}

// WalkForwardRepo stores validation splits append-only.
type WalkForwardRepo interface {
	// Insert appends split rows. Re-inserting an already recorded window is
	// a no-op, preserving the original row.
	Insert(ctx context.Context, rows []WalkForwardRow) error

	// ListByPair returns split history for a pair ordered by train_start.
	ListByPair(ctx context.Context, assetClass, algorithmName string, limit int) ([]WalkForwardRow, error)
}

// RegimeStatsRepo stores regime win rates with replace-on-recompute
// semantics.
type RegimeStatsRepo interface {
	// Replace swaps the stats for one (algorithm, asset class) scope in a
	// single transaction, so a crash can never leave the scope empty.
	Replace(ctx context.Context, assetClass, algorithmName string, stats []regime.Stat) error

	// ListByPair returns stats for a pair sorted by regime label.
	ListByPair(ctx context.Context, assetClass, algorithmName string) ([]regime.Stat, error)
}

// TradesRepo is the engine's read-only view of the signal tracker's closed
// trades.
type TradesRepo interface {
	// ListByPair returns trades for an (algorithm, asset class) pair whose
	// entry time falls in the range, ordered by entry time.
	ListByPair(ctx context.Context, assetClass, algorithmName string, tr TimeRange) ([]domain.HistoricalTrade, error)

	// ListLabeledOutcomes returns trades with their recorded outcome and the
	// regime label the classifier assigned, for the regime tracker.
	ListLabeledOutcomes(ctx context.Context, assetClass, algorithmName string, tr TimeRange) ([]regime.LabeledTrade, error)
}

// Repository aggregates the engine's persistence interfaces.
type Repository struct {
	Optimizations OptimizationRepo
	WalkForward   WalkForwardRepo
	RegimeStats   RegimeStatsRepo
	Trades        TradesRepo
}
