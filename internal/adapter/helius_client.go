// Package adapter contains typed HTTP clients for the external data providers:
// the Helius ledger API and the CoinGecko, Binance, and Jupiter price APIs.
// Every client carries an explicit request timeout; retry policy lives with
// the callers.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/config"
)

// TokenTransfer is one SPL token movement inside a ledger transaction
type TokenTransfer struct {
	Mint            string  `json:"mint"`
	TokenAmount     float64 `json:"tokenAmount"`
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
}

// NativeTransfer is one native-asset movement, amount in lamports
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// LedgerTransaction is one parsed transaction as returned by the ledger API
type LedgerTransaction struct {
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"`
	Type            string           `json:"type"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
}

// IsSwap reports whether the ledger API classified this transaction as a swap
func (t *LedgerTransaction) IsSwap() bool {
	return t.Type == "SWAP"
}

// HeliusClient fetches enhanced transaction history pages from the Helius API
type HeliusClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHeliusClient creates a new ledger API client
func NewHeliusClient(cfg *config.LedgerConfig) *HeliusClient {
	return &HeliusClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Transactions fetches one page of transactions for a wallet, newest first.
// An empty `before` cursor requests the most recent page; otherwise the page
// starts strictly before the given transaction signature. Rate-limit
// rejections surface as transient provider errors.
func (c *HeliusClient) Transactions(ctx context.Context, wallet, before string, limit int) ([]LedgerTransaction, error) {
	endpoint := fmt.Sprintf("%s/addresses/%s/transactions", c.baseURL, url.PathEscape(wallet))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("api-key", c.apiKey)
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Timeout("helius", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimited("helius")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperrors.Unavailable("helius", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body)))
	}

	var txs []LedgerTransaction
	if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
		return nil, apperrors.BadResponse("helius", err)
	}

	return txs, nil
}
