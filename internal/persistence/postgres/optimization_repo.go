package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cryptoedge/exittune/internal/persistence"
)

// optimizationRepo implements OptimizationRepo for PostgreSQL
type optimizationRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewOptimizationRepo creates a new PostgreSQL optimization repository
func NewOptimizationRepo(db *sqlx.DB, timeout time.Duration) persistence.OptimizationRepo {
	return &optimizationRepo{
		db:      db,
		timeout: timeout,
	}
}

// Upsert inserts or replaces the recommendation for its unique key
func (r *optimizationRepo) Upsert(ctx context.Context, row persistence.OptimizationRow) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if row.Verdict == "" {
		return fmt.Errorf("optimization row requires a verdict")
	}

	query := `
		INSERT INTO exit_param_results
		(asset_class, algorithm_name, param_source, calc_date,
		 tp_pct, sl_pct, max_hold_hours,
		 trades_tested, wins, losses, expired,
		 total_return_pct, avg_return_pct, win_rate_pct, profit_factor,
		 best_trade_pct, worst_trade_pct, avg_hold_hours,
		 profitable_combos, total_combos, skipped_trades, verdict)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		        $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (asset_class, algorithm_name, param_source, calc_date) DO UPDATE SET
			tp_pct = EXCLUDED.tp_pct,
			sl_pct = EXCLUDED.sl_pct,
			max_hold_hours = EXCLUDED.max_hold_hours,
			trades_tested = EXCLUDED.trades_tested,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			expired = EXCLUDED.expired,
			total_return_pct = EXCLUDED.total_return_pct,
			avg_return_pct = EXCLUDED.avg_return_pct,
			win_rate_pct = EXCLUDED.win_rate_pct,
			profit_factor = EXCLUDED.profit_factor,
			best_trade_pct = EXCLUDED.best_trade_pct,
			worst_trade_pct = EXCLUDED.worst_trade_pct,
			avg_hold_hours = EXCLUDED.avg_hold_hours,
			profitable_combos = EXCLUDED.profitable_combos,
			total_combos = EXCLUDED.total_combos,
			skipped_trades = EXCLUDED.skipped_trades,
			verdict = EXCLUDED.verdict
		RETURNING created_at`

	err := r.db.QueryRowxContext(ctx, query,
		row.AssetClass, row.AlgorithmName, row.ParamSource, row.CalcDate,
		row.TPPct, row.SLPct, row.MaxHoldHours,
		row.TradesTested, row.Wins, row.Losses, row.Expired,
		row.TotalReturnPct, row.AvgReturnPct, row.WinRatePct, row.ProfitFactor,
		row.BestTradePct, row.WorstTradePct, row.AvgHoldHours,
		row.ProfitableCombos, row.TotalCombos, row.SkippedTrades, row.Verdict).
		Scan(&row.CreatedAt)

	if err != nil {
		if isSerializationConflict(err) {
			return fmt.Errorf("upsert for %s/%s on %s: %w",
				row.AssetClass, row.AlgorithmName, row.CalcDate.Format("2006-01-02"),
				persistence.ErrStoreConflict)
		}
		return fmt.Errorf("failed to upsert optimization result: %w", err)
	}

	return nil
}

// Latest returns the most recent recommendation for a pair
func (r *optimizationRepo) Latest(ctx context.Context, assetClass, algorithmName string) (*persistence.OptimizationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectOptimizationColumns + `
		WHERE asset_class = $1 AND algorithm_name = $2
		ORDER BY calc_date DESC
		LIMIT 1`

	var row persistence.OptimizationRow
	err := r.db.GetContext(ctx, &row, query, assetClass, algorithmName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest optimization result: %w", err)
	}

	return &row, nil
}

// ListByPair returns the recommendation history for a pair, newest first
func (r *optimizationRepo) ListByPair(ctx context.Context, assetClass, algorithmName string, limit int) ([]persistence.OptimizationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := selectOptimizationColumns + `
		WHERE asset_class = $1 AND algorithm_name = $2
		ORDER BY calc_date DESC
		LIMIT $3`

	var rows []persistence.OptimizationRow
	if err := r.db.SelectContext(ctx, &rows, query, assetClass, algorithmName, limit); err != nil {
		return nil, fmt.Errorf("failed to list optimization results: %w", err)
	}

	return rows, nil
}

const selectOptimizationColumns = `
	SELECT asset_class, algorithm_name, param_source, calc_date,
	       tp_pct, sl_pct, max_hold_hours,
	       trades_tested, wins, losses, expired,
	       total_return_pct, avg_return_pct, win_rate_pct, profit_factor,
	       best_trade_pct, worst_trade_pct, avg_hold_hours,
	       profitable_combos, total_combos, skipped_trades, verdict, created_at
	FROM exit_param_results`

// isSerializationConflict maps Postgres serialization and deadlock failures
// to the engine's conflict taxonomy. Unique violations during a plain upsert
// should not happen (ON CONFLICT handles the key) but a racing writer under
// serializable isolation surfaces as 40001.
func isSerializationConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}
