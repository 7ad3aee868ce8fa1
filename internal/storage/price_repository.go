package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// PriceRepository handles persisted historical token prices
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// GetPrice retrieves the stored price for a token on a UTC date, or nil if
// none exists
func (r *PriceRepository) GetPrice(ctx context.Context, tokenAddress string, chain types.ChainID, date time.Time) (*models.PriceRecord, error) {
	query := `
		SELECT token_address, chain, date, price, source, created_at
		FROM price_records
		WHERE token_address = $1 AND chain = $2 AND date = $3`

	var rec models.PriceRecord
	err := r.pool.QueryRow(ctx, query, tokenAddress, string(chain), date).Scan(
		&rec.TokenAddress,
		&rec.Chain,
		&rec.Date,
		&rec.Price,
		&rec.Source,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query price record: %w", err)
	}
	return &rec, nil
}

// SavePrice appends a price record. The table is append-only; a concurrent
// sync writing the same token+chain+date is a race, not a failure, so
// conflicts are ignored.
func (r *PriceRepository) SavePrice(ctx context.Context, rec *models.PriceRecord) error {
	query := `
		INSERT INTO price_records (token_address, chain, date, price, source, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (token_address, chain, date) DO NOTHING`

	_, err := r.pool.Exec(ctx, query,
		rec.TokenAddress, string(rec.Chain), rec.Date, rec.Price, string(rec.Source))
	if err != nil {
		return fmt.Errorf("failed to insert price record: %w", err)
	}
	return nil
}
