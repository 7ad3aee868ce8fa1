package models

import (
	"time"

	"github.com/wallet-tracker/internal/types"
)

// PriceRecord is a persisted USD price for a token on a UTC calendar date.
// Append-only, unique per tokenAddress+chain+date. Only authoritative sources
// are ever written; same-day fallback prices stay out of the store so a later
// authoritative fetch for the date can still land.
type PriceRecord struct {
	TokenAddress string            `json:"tokenAddress" db:"token_address"`
	Chain        types.ChainID     `json:"chain" db:"chain"`
	Date         time.Time         `json:"date" db:"date"`
	Price        float64           `json:"price" db:"price"`
	Source       types.PriceSource `json:"source" db:"source"`
	CreatedAt    time.Time         `json:"createdAt" db:"created_at"`
}
