package models

import (
	"time"

	"github.com/wallet-tracker/internal/types"
)

// TokenHolding is one token position inside a daily snapshot
type TokenHolding struct {
	TokenAddress string  `json:"tokenAddress"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	Price        float64 `json:"price"`
	Value        float64 `json:"value"`
}

// DailySnapshot is the valued holdings state of a wallet at the end of one UTC
// calendar day, unique per user+wallet+chain+date. Recomputed and upserted on
// every sync run.
type DailySnapshot struct {
	UserID          string         `json:"userId" db:"user_id"`
	WalletAddress   string         `json:"walletAddress" db:"wallet_address"`
	Chain           types.ChainID  `json:"chain" db:"chain"`
	Date            time.Time      `json:"date" db:"date"`
	TotalValue      float64        `json:"totalValue" db:"total_value"`
	DailyPnL        float64        `json:"dailyPnL" db:"daily_pnl"`
	DailyPnLPercent float64        `json:"dailyPnLPercent" db:"daily_pnl_percent"`
	Holdings        []TokenHolding `json:"holdings" db:"holdings"`
	CreatedAt       time.Time      `json:"createdAt" db:"created_at"`
}
