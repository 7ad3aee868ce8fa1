package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/config"
)

// CoinGeckoClient resolves native-asset USD prices: day-granularity history
// and a simple current price. The free tier rate-limits aggressively, so
// callers pace and retry around it.
type CoinGeckoClient struct {
	baseURL string
	client  *http.Client
}

// NewCoinGeckoClient creates a new CoinGecko API client
func NewCoinGeckoClient(cfg *config.PricingConfig) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: cfg.CoinGeckoBaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type coinHistoryResponse struct {
	MarketData struct {
		CurrentPrice struct {
			USD float64 `json:"usd"`
		} `json:"current_price"`
	} `json:"market_data"`
}

// HistoricalPrice fetches the USD price of a coin on a UTC calendar date.
// A present-but-absent price returns (0, nil); rate limiting returns a
// transient provider error so the caller can distinguish the two.
func (c *CoinGeckoClient) HistoricalPrice(ctx context.Context, coinID string, date time.Time) (float64, error) {
	// CoinGecko date format is DD-MM-YYYY
	endpoint := fmt.Sprintf("%s/coins/%s/history?date=%s",
		c.baseURL, url.PathEscape(coinID), date.UTC().Format("02-01-2006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, apperrors.Timeout("coingecko", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, apperrors.RateLimited("coingecko")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.Unavailable("coingecko", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var history coinHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return 0, apperrors.BadResponse("coingecko", err)
	}

	return history.MarketData.CurrentPrice.USD, nil
}

// SimplePrice fetches the current USD price of a coin
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, coinID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", c.baseURL, url.QueryEscape(coinID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, apperrors.Timeout("coingecko", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, apperrors.RateLimited("coingecko")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, apperrors.Unavailable("coingecko", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var prices map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return 0, apperrors.BadResponse("coingecko", err)
	}

	return prices[coinID].USD, nil
}
