package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// SnapshotRepository handles daily portfolio snapshot storage
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Upsert writes a daily snapshot, replacing any existing row for the same
// user+wallet+chain+date so a rebuild is idempotent
func (r *SnapshotRepository) Upsert(ctx context.Context, snap *models.DailySnapshot) error {
	holdings, err := json.Marshal(snap.Holdings)
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}

	query := `
		INSERT INTO daily_snapshots (
			user_id, wallet_address, chain, date,
			total_value, daily_pnl, daily_pnl_percent, holdings, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id, wallet_address, chain, date)
		DO UPDATE SET
			total_value = EXCLUDED.total_value,
			daily_pnl = EXCLUDED.daily_pnl,
			daily_pnl_percent = EXCLUDED.daily_pnl_percent,
			holdings = EXCLUDED.holdings,
			created_at = NOW()`

	_, err = r.pool.Exec(ctx, query,
		snap.UserID, snap.WalletAddress, string(snap.Chain), snap.Date,
		snap.TotalValue, snap.DailyPnL, snap.DailyPnLPercent, holdings)
	if err != nil {
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}
	return nil
}

// ListRange returns snapshots for a wallet within [from, to], oldest first
func (r *SnapshotRepository) ListRange(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error) {
	query := `
		SELECT user_id, wallet_address, chain, date,
			total_value, daily_pnl, daily_pnl_percent, holdings, created_at
		FROM daily_snapshots
		WHERE user_id = $1 AND wallet_address = $2 AND chain = $3
			AND date >= $4 AND date <= $5
		ORDER BY date ASC`

	rows, err := r.pool.Query(ctx, query, userID, walletAddress, string(chain), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.DailySnapshot
	for rows.Next() {
		var (
			snap     models.DailySnapshot
			holdings []byte
		)
		if err := rows.Scan(
			&snap.UserID,
			&snap.WalletAddress,
			&snap.Chain,
			&snap.Date,
			&snap.TotalValue,
			&snap.DailyPnL,
			&snap.DailyPnLPercent,
			&holdings,
			&snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan daily snapshot: %w", err)
		}
		if len(holdings) > 0 {
			if err := json.Unmarshal(holdings, &snap.Holdings); err != nil {
				return nil, fmt.Errorf("failed to unmarshal holdings: %w", err)
			}
		}
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily snapshots: %w", err)
	}
	return snaps, nil
}

// DeleteByKey removes every snapshot for a wallet. Called when a completed
// sync is re-triggered so the rebuild starts from a clean slate.
func (r *SnapshotRepository) DeleteByKey(ctx context.Context, userID, walletAddress string, chain types.ChainID) error {
	query := `DELETE FROM daily_snapshots WHERE user_id = $1 AND wallet_address = $2 AND chain = $3`
	if _, err := r.pool.Exec(ctx, query, userID, walletAddress, string(chain)); err != nil {
		return fmt.Errorf("failed to delete daily snapshots: %w", err)
	}
	return nil
}
