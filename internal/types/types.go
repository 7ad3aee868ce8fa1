// Package types defines shared identifiers and enums used across the wallet
// tracker: chain ids, sync states, ledger transaction types, and price
// provenance tags.
package types

// ChainID identifies a blockchain network
type ChainID string

const (
	ChainSolana ChainID = "solana"
)

// SyncStatus represents the lifecycle state of a wallet sync
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncProcessing SyncStatus = "processing"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
)

// Active reports whether a sync in this state is still in flight
func (s SyncStatus) Active() bool {
	return s == SyncPending || s == SyncProcessing
}

// TxType classifies a ledger transaction row
type TxType string

const (
	TxBuy         TxType = "buy"
	TxSell        TxType = "sell"
	TxTransferIn  TxType = "transfer_in"
	TxTransferOut TxType = "transfer_out"
)

// IsTransfer reports whether the type is an external transfer rather than a
// swap leg. Only transfers count toward net inflows.
func (t TxType) IsTransfer() bool {
	return t == TxTransferIn || t == TxTransferOut
}

// PriceSource tags where a resolved price came from
type PriceSource string

const (
	// SourceCoinGecko marks an authoritative dated price from the history API
	SourceCoinGecko PriceSource = "coingecko"
	// SourceSwap marks a price implied by a swap the wallet participated in
	SourceSwap PriceSource = "swap"
	// SourceFallbackCurrent marks a same-day current price standing in for a
	// historical one. Never persisted.
	SourceFallbackCurrent PriceSource = "fallback_current"
)

// Authoritative reports whether a price from this source may be persisted as a
// dated historical record
func (s PriceSource) Authoritative() bool {
	return s != SourceFallbackCurrent && s != ""
}
