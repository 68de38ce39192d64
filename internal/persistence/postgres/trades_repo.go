package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptoedge/exittune/internal/domain"
	"github.com/cryptoedge/exittune/internal/persistence"
	"github.com/cryptoedge/exittune/internal/regime"
)

// tradesRepo implements the engine's read-only view of closed trades. The
// signal-tracking subsystem owns the table; this repo never writes it.
type tradesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTradesRepo creates a new read-only PostgreSQL trades repository
func NewTradesRepo(db *sqlx.DB, timeout time.Duration) persistence.TradesRepo {
	return &tradesRepo{
		db:      db,
		timeout: timeout,
	}
}

// ListByPair returns trades for an (algorithm, asset class) pair whose entry
// time falls in [From, To), ordered by entry time
func (r *tradesRepo) ListByPair(ctx context.Context, assetClass, algorithmName string, tr persistence.TimeRange) ([]domain.HistoricalTrade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT algorithm_name, asset_class, symbol, direction, entry_price, entry_time, actual_exit_time
		FROM historical_trades
		WHERE asset_class = $1 AND algorithm_name = $2
		  AND entry_time >= $3 AND entry_time < $4
		ORDER BY entry_time ASC`

	var trades []domain.HistoricalTrade
	if err := r.db.SelectContext(ctx, &trades, query, assetClass, algorithmName, tr.From, tr.To); err != nil {
		return nil, fmt.Errorf("failed to list trades for %s/%s: %w", assetClass, algorithmName, err)
	}

	return trades, nil
}

// ListLabeledOutcomes reads the signal tracker's recorded outcomes joined
// with the regime classifier's labels. Trades the classifier never labeled
// come back with an empty label and are ignored by the tracker.
func (r *tradesRepo) ListLabeledOutcomes(ctx context.Context, assetClass, algorithmName string, tr persistence.TimeRange) ([]regime.LabeledTrade, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT t.algorithm_name, t.asset_class, t.symbol, t.direction,
		       t.entry_price, t.entry_time, t.actual_exit_time,
		       COALESCE(o.regime_label, '') AS regime_label,
		       COALESCE(o.realized_return_pct, 0) AS realized_return_pct,
		       (o.realized_return_pct IS NOT NULL) AS outcome_recorded
		FROM historical_trades t
		LEFT JOIN trade_outcomes o
		       ON o.asset_class = t.asset_class
		      AND o.algorithm_name = t.algorithm_name
		      AND o.symbol = t.symbol
		      AND o.entry_time = t.entry_time
		WHERE t.asset_class = $1 AND t.algorithm_name = $2
		  AND t.entry_time >= $3 AND t.entry_time < $4
		ORDER BY t.entry_time ASC`

	rows, err := r.db.QueryxContext(ctx, query, assetClass, algorithmName, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list labeled outcomes for %s/%s: %w", assetClass, algorithmName, err)
	}
	defer rows.Close()

	var out []regime.LabeledTrade
	for rows.Next() {
		var lt regime.LabeledTrade
		if err := rows.Scan(
			&lt.Trade.AlgorithmName, &lt.Trade.AssetClass, &lt.Trade.Symbol, &lt.Trade.Direction,
			&lt.Trade.EntryPrice, &lt.Trade.EntryTime, &lt.Trade.ActualExitTime,
			&lt.RegimeLabel, &lt.RealizedReturnPct, &lt.OutcomeRecorded); err != nil {
			return nil, fmt.Errorf("failed to scan labeled outcome: %w", err)
		}
		out = append(out, lt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labeled outcomes: %w", err)
	}

	return out, nil
}
