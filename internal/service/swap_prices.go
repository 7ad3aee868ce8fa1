// Package service implements the sync pipeline: ingesting wallet transactions
// from the ledger API, deriving prices, building daily valuation snapshots,
// and orchestrating sync lifecycle state.
package service

import (
	"github.com/wallet-tracker/internal/adapter"
	"github.com/wallet-tracker/internal/config"
)

// lamportsPerUnit converts native transfer amounts to whole units
const lamportsPerUnit = 1e9

// SwapConfig carries the token knowledge swap price extraction needs
type SwapConfig struct {
	NativeMint    string
	Stablecoins   map[string]struct{}
	DustThreshold float64
}

// NewSwapConfig builds a SwapConfig from pricing and sync settings
func NewSwapConfig(pricing *config.PricingConfig, dustThreshold float64) SwapConfig {
	stables := make(map[string]struct{}, len(pricing.Stablecoins))
	for _, mint := range pricing.Stablecoins {
		stables[mint] = struct{}{}
	}
	return SwapConfig{
		NativeMint:    pricing.NativeMint,
		Stablecoins:   stables,
		DustThreshold: dustThreshold,
	}
}

// IsStablecoin reports whether the mint is treated as a $1 anchor
func (c SwapConfig) IsStablecoin(mint string) bool {
	_, ok := c.Stablecoins[mint]
	return ok
}

type swapLeg struct {
	mint   string
	amount float64
}

// ExtractSwapPrices derives USD prices from a swap's own legs. The first sent
// leg pairs with the first received leg; when exactly one side of that pair is
// a stablecoin, the stablecoin anchors at $1 and the other leg's price follows
// from the exchange ratio. Legs beyond the first pair are not priced. Pairs
// with no stablecoin side, or with two, yield no prices; the caller falls back
// to external sources.
func ExtractSwapPrices(tx *adapter.LedgerTransaction, wallet string, cfg SwapConfig) map[string]float64 {
	if !tx.IsSwap() {
		return nil
	}

	var sent, received []swapLeg

	for _, tt := range tx.TokenTransfers {
		if tt.TokenAmount <= 0 {
			continue
		}
		switch {
		case tt.FromUserAccount == wallet:
			sent = append(sent, swapLeg{mint: tt.Mint, amount: tt.TokenAmount})
		case tt.ToUserAccount == wallet:
			received = append(received, swapLeg{mint: tt.Mint, amount: tt.TokenAmount})
		}
	}

	for _, nt := range tx.NativeTransfers {
		amount := float64(nt.Amount) / lamportsPerUnit
		if amount < cfg.DustThreshold {
			continue
		}
		switch {
		case nt.FromUserAccount == wallet:
			sent = append(sent, swapLeg{mint: cfg.NativeMint, amount: amount})
		case nt.ToUserAccount == wallet:
			received = append(received, swapLeg{mint: cfg.NativeMint, amount: amount})
		}
	}

	if len(sent) == 0 || len(received) == 0 {
		return nil
	}

	out, in := sent[0], received[0]
	if out.mint == in.mint {
		return nil
	}

	outStable := cfg.IsStablecoin(out.mint)
	inStable := cfg.IsStablecoin(in.mint)
	if outStable == inStable {
		return nil
	}

	prices := make(map[string]float64, 2)
	if outStable {
		prices[out.mint] = 1.0
		if in.amount > 0 {
			prices[in.mint] = out.amount / in.amount
		}
	} else {
		prices[in.mint] = 1.0
		if out.amount > 0 {
			prices[out.mint] = in.amount / out.amount
		}
	}
	return prices
}
