package models

import (
	"time"

	"github.com/wallet-tracker/internal/types"
)

// SyncRecord tracks the synchronization state for one user+wallet+chain key.
// There is at most one record per key; it is created on the first trigger and
// mutated only by the sync orchestrator.
type SyncRecord struct {
	ID               string           `json:"id" db:"id"`
	UserID           string           `json:"userId" db:"user_id"`
	WalletAddress    string           `json:"walletAddress" db:"wallet_address"`
	Chain            types.ChainID    `json:"chain" db:"chain"`
	Status           types.SyncStatus `json:"status" db:"status"`
	StartDate        time.Time        `json:"startDate" db:"start_date"`
	LastSyncedCursor *string          `json:"lastSyncedCursor,omitempty" db:"last_synced_cursor"`
	CompletedAt      *time.Time       `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage     *string          `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt        time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time        `json:"updatedAt" db:"updated_at"`
}
