package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// SyncRepository handles SyncRecord storage operations
type SyncRepository struct {
	pool *pgxpool.Pool
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(pool *pgxpool.Pool) *SyncRepository {
	return &SyncRepository{pool: pool}
}

const syncColumns = `
	id, user_id, wallet_address, chain, status, start_date,
	last_synced_cursor, completed_at, error_message, created_at, updated_at
`

func scanSyncRecord(row pgx.Row) (*models.SyncRecord, error) {
	var rec models.SyncRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.WalletAddress,
		&rec.Chain,
		&rec.Status,
		&rec.StartDate,
		&rec.LastSyncedCursor,
		&rec.CompletedAt,
		&rec.ErrorMessage,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new pending sync record and returns it
func (r *SyncRepository) Create(ctx context.Context, userID, walletAddress string, chain types.ChainID, startDate time.Time) (*models.SyncRecord, error) {
	query := `
		INSERT INTO sync_records (
			id, user_id, wallet_address, chain, status, start_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + syncColumns

	rec, err := scanSyncRecord(r.pool.QueryRow(ctx, query,
		uuid.New().String(), userID, walletAddress, string(chain), string(types.SyncPending), startDate))
	if err != nil {
		return nil, fmt.Errorf("failed to create sync record: %w", err)
	}
	return rec, nil
}

// GetByKey retrieves the sync record for a user+wallet+chain key, or nil if
// none exists
func (r *SyncRepository) GetByKey(ctx context.Context, userID, walletAddress string, chain types.ChainID) (*models.SyncRecord, error) {
	query := `SELECT ` + syncColumns + `
		FROM sync_records
		WHERE user_id = $1 AND wallet_address = $2 AND chain = $3`

	rec, err := scanSyncRecord(r.pool.QueryRow(ctx, query, userID, walletAddress, string(chain)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync record: %w", err)
	}
	return rec, nil
}

// GetByID retrieves a sync record by id
func (r *SyncRepository) GetByID(ctx context.Context, id string) (*models.SyncRecord, error) {
	query := `SELECT ` + syncColumns + ` FROM sync_records WHERE id = $1`

	rec, err := scanSyncRecord(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sync record: %w", err)
	}
	return rec, nil
}

// Reset moves a record back to pending, clearing the resume cursor and
// setting an optional explanatory error message
func (r *SyncRepository) Reset(ctx context.Context, id string, errorMessage *string) (*models.SyncRecord, error) {
	query := `
		UPDATE sync_records
		SET status = $2, error_message = $3, last_synced_cursor = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + syncColumns

	rec, err := scanSyncRecord(r.pool.QueryRow(ctx, query, id, string(types.SyncPending), errorMessage))
	if err != nil {
		return nil, fmt.Errorf("failed to reset sync record: %w", err)
	}
	return rec, nil
}

// UpdateCursor records the pagination cursor after a fully stored page so an
// interrupted sync can resume instead of refetching from the top
func (r *SyncRepository) UpdateCursor(ctx context.Context, id, cursor string) error {
	query := `UPDATE sync_records SET last_synced_cursor = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, cursor); err != nil {
		return fmt.Errorf("failed to update sync cursor: %w", err)
	}
	return nil
}

// MarkProcessing transitions a record to processing
func (r *SyncRepository) MarkProcessing(ctx context.Context, id string) error {
	query := `UPDATE sync_records SET status = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, string(types.SyncProcessing)); err != nil {
		return fmt.Errorf("failed to mark sync processing: %w", err)
	}
	return nil
}

// Touch bumps updated_at so a long-running sync is not mistaken for stale
func (r *SyncRepository) Touch(ctx context.Context, id string) error {
	query := `UPDATE sync_records SET updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to touch sync record: %w", err)
	}
	return nil
}

// Complete marks a record completed with a completion timestamp
func (r *SyncRepository) Complete(ctx context.Context, id string) error {
	query := `
		UPDATE sync_records
		SET status = $2, completed_at = NOW(), error_message = NULL, updated_at = NOW()
		WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, string(types.SyncCompleted)); err != nil {
		return fmt.Errorf("failed to complete sync record: %w", err)
	}
	return nil
}

// Fail marks a record failed with the error message
func (r *SyncRepository) Fail(ctx context.Context, id, errorMessage string) error {
	query := `
		UPDATE sync_records
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1`
	if _, err := r.pool.Exec(ctx, query, id, string(types.SyncFailed), errorMessage); err != nil {
		return fmt.Errorf("failed to mark sync failed: %w", err)
	}
	return nil
}
