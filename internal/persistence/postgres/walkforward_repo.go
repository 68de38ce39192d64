package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cryptoedge/exittune/internal/persistence"
)

// walkForwardRepo implements WalkForwardRepo for PostgreSQL
type walkForwardRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewWalkForwardRepo creates a new PostgreSQL walk-forward repository
func NewWalkForwardRepo(db *sqlx.DB, timeout time.Duration) persistence.WalkForwardRepo {
	return &walkForwardRepo{
		db:      db,
		timeout: timeout,
	}
}

// Insert appends split rows. ON CONFLICT DO NOTHING keeps already recorded
// windows untouched so the split history stays append-only.
func (r *walkForwardRepo) Insert(ctx context.Context, rows []persistence.WalkForwardRow) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin walk-forward insert: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO walk_forward_splits
		(algorithm_name, asset_class, train_start, train_end, test_start, test_end,
		 tp_pct, sl_pct, max_hold_hours,
		 train_stats, test_stats,
		 train_sharpe, test_sharpe, sharpe_decay_pct, is_overfit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (algorithm_name, asset_class, train_start, train_end, test_start, test_end)
		DO NOTHING`

	for _, row := range rows {
		trainJSON, err := json.Marshal(row.TrainStats)
		if err != nil {
			return fmt.Errorf("failed to marshal train stats: %w", err)
		}
		testJSON, err := json.Marshal(row.TestStats)
		if err != nil {
			return fmt.Errorf("failed to marshal test stats: %w", err)
		}

		if _, err := tx.ExecContext(ctx, query,
			row.AlgorithmName, row.AssetClass,
			row.TrainStart, row.TrainEnd, row.TestStart, row.TestEnd,
			row.TPPct, row.SLPct, row.MaxHoldHours,
			trainJSON, testJSON,
			row.TrainSharpe, row.TestSharpe, row.SharpeDecayPct, row.IsOverfit); err != nil {
			return fmt.Errorf("failed to insert walk-forward split: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit walk-forward splits: %w", err)
	}

	return nil
}

// ListByPair returns split history for a pair ordered by train_start
func (r *walkForwardRepo) ListByPair(ctx context.Context, assetClass, algorithmName string, limit int) ([]persistence.WalkForwardRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT algorithm_name, asset_class, train_start, train_end, test_start, test_end,
		       tp_pct, sl_pct, max_hold_hours,
		       train_stats, test_stats,
		       train_sharpe, test_sharpe, sharpe_decay_pct, is_overfit, created_at
		FROM walk_forward_splits
		WHERE asset_class = $1 AND algorithm_name = $2
		ORDER BY train_start ASC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, assetClass, algorithmName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query walk-forward splits: %w", err)
	}
	defer rows.Close()

	var out []persistence.WalkForwardRow
	for rows.Next() {
		row, err := scanWalkForwardRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating walk-forward rows: %w", err)
	}

	return out, nil
}

func scanWalkForwardRow(rows *sqlx.Rows) (*persistence.WalkForwardRow, error) {
	var row persistence.WalkForwardRow
	var trainJSON, testJSON []byte

	err := rows.Scan(
		&row.AlgorithmName, &row.AssetClass,
		&row.TrainStart, &row.TrainEnd, &row.TestStart, &row.TestEnd,
		&row.TPPct, &row.SLPct, &row.MaxHoldHours,
		&trainJSON, &testJSON,
		&row.TrainSharpe, &row.TestSharpe, &row.SharpeDecayPct, &row.IsOverfit,
		&row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan walk-forward row: %w", err)
	}

	if err := json.Unmarshal(trainJSON, &row.TrainStats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal train stats: %w", err)
	}
	if err := json.Unmarshal(testJSON, &row.TestStats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal test stats: %w", err)
	}

	return &row, nil
}
