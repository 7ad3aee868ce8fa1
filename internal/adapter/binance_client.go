package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/config"
)

// BinanceClient is the secondary current-price source for the native asset
type BinanceClient struct {
	baseURL string
	client  *http.Client
}

// NewBinanceClient creates a new Binance ticker API client
func NewBinanceClient(cfg *config.PricingConfig) *BinanceClient {
	return &BinanceClient{
		baseURL: cfg.BinanceBaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// TickerPrice fetches the last traded price for a symbol (e.g. SOLUSDT)
func (c *BinanceClient) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, apperrors.Timeout("binance", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, apperrors.RateLimited("binance")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.Unavailable("binance", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return 0, apperrors.BadResponse("binance", err)
	}

	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, apperrors.BadResponse("binance", fmt.Errorf("unparseable price %q: %w", ticker.Price, err))
	}

	return price, nil
}
