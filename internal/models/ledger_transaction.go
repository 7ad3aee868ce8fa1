package models

import (
	"time"

	"github.com/wallet-tracker/internal/types"
)

// LedgerTransaction is one parsed asset movement touching a tracked wallet.
// A single on-chain transaction produces one row per token it moved, keyed by
// txHash+tokenAddress; duplicate writes for the same key are no-ops.
type LedgerTransaction struct {
	UserID        string        `json:"userId" db:"user_id"`
	WalletAddress string        `json:"walletAddress" db:"wallet_address"`
	Chain         types.ChainID `json:"chain" db:"chain"`
	TxHash        string        `json:"txHash" db:"tx_hash"`
	TokenAddress  string        `json:"tokenAddress" db:"token_address"`
	TokenSymbol   string        `json:"tokenSymbol" db:"token_symbol"`
	TokenName     string        `json:"tokenName" db:"token_name"`
	Type          types.TxType  `json:"type" db:"type"`
	// Amount is signed: positive for received, negative for sent
	Amount    float64   `json:"amount" db:"amount"`
	PriceUsd  float64   `json:"priceUsd" db:"price_usd"`
	ValueUsd  float64   `json:"valueUsd" db:"value_usd"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
