package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cryptoedge/exittune/internal/persistence"
	"github.com/cryptoedge/exittune/internal/regime"
)

// regimeStatsRepo implements RegimeStatsRepo for PostgreSQL
type regimeStatsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRegimeStatsRepo creates a new PostgreSQL regime stats repository
func NewRegimeStatsRepo(db *sqlx.DB, timeout time.Duration) persistence.RegimeStatsRepo {
	return &regimeStatsRepo{
		db:      db,
		timeout: timeout,
	}
}

// Replace swaps the stats for one (algorithm, asset class) scope inside a
// single transaction: per-row upsert first, stale-label delete second. A
// crash between the two leaves the old rows in place, never an empty scope.
func (r *regimeStatsRepo) Replace(ctx context.Context, assetClass, algorithmName string, stats []regime.Stat) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin regime stats replace: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO regime_stats
		(algorithm_name, asset_class, regime_label, trade_count, wins, win_rate_pct, avg_return_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (algorithm_name, asset_class, regime_label) DO UPDATE SET
			trade_count = EXCLUDED.trade_count,
			wins = EXCLUDED.wins,
			win_rate_pct = EXCLUDED.win_rate_pct,
			avg_return_pct = EXCLUDED.avg_return_pct`

	labels := make([]string, 0, len(stats))
	for _, s := range stats {
		if s.AlgorithmName != algorithmName || s.AssetClass != assetClass {
			return fmt.Errorf("stat for %s/%s does not belong to scope %s/%s",
				s.AlgorithmName, s.AssetClass, algorithmName, assetClass)
		}
		if _, err := tx.ExecContext(ctx, upsert,
			s.AlgorithmName, s.AssetClass, s.RegimeLabel,
			s.TradeCount, s.Wins, s.WinRatePct, s.AvgReturnPct); err != nil {
			return fmt.Errorf("failed to upsert regime stat %s: %w", s.RegimeLabel, err)
		}
		labels = append(labels, s.RegimeLabel)
	}

	// Labels not seen this run are stale and go away with the same commit.
	stale := `
		DELETE FROM regime_stats
		WHERE algorithm_name = $1 AND asset_class = $2
		  AND NOT (regime_label = ANY($3))`
	if _, err := tx.ExecContext(ctx, stale, algorithmName, assetClass, pq.Array(labels)); err != nil {
		return fmt.Errorf("failed to delete stale regime stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit regime stats: %w", err)
	}

	return nil
}

// ListByPair returns stats for a pair sorted by regime label
func (r *regimeStatsRepo) ListByPair(ctx context.Context, assetClass, algorithmName string) ([]regime.Stat, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT algorithm_name, asset_class, regime_label, trade_count, wins, win_rate_pct, avg_return_pct
		FROM regime_stats
		WHERE asset_class = $1 AND algorithm_name = $2
		ORDER BY regime_label ASC`

	var stats []regime.Stat
	if err := r.db.SelectContext(ctx, &stats, query, assetClass, algorithmName); err != nil {
		return nil, fmt.Errorf("failed to list regime stats: %w", err)
	}

	return stats, nil
}
