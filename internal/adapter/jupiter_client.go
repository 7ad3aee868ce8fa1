package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/config"
)

// JupiterClient resolves current USD prices for arbitrary SPL tokens through
// the Jupiter price aggregation API. The API accepts up to 50 ids per call;
// chunking is the caller's job.
type JupiterClient struct {
	baseURL string
	client  *http.Client
}

// NewJupiterClient creates a new Jupiter price API client
func NewJupiterClient(cfg *config.PricingConfig) *JupiterClient {
	return &JupiterClient{
		baseURL: cfg.JupiterBaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type jupiterPriceResponse struct {
	Data map[string]struct {
		Price json.Number `json:"price"`
	} `json:"data"`
}

// Prices fetches current USD prices for a list of token mints. Tokens the
// aggregator does not know are simply absent from the result.
func (c *JupiterClient) Prices(ctx context.Context, mints []string) (map[string]float64, error) {
	if len(mints) == 0 {
		return map[string]float64{}, nil
	}

	endpoint := fmt.Sprintf("%s/price/v3/price?ids=%s", c.baseURL, url.QueryEscape(strings.Join(mints, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Timeout("jupiter", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.RateLimited("jupiter")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Unavailable("jupiter", fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	var decoded jupiterPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, apperrors.BadResponse("jupiter", err)
	}

	prices := make(map[string]float64, len(decoded.Data))
	for mint, info := range decoded.Data {
		price, err := strconv.ParseFloat(info.Price.String(), 64)
		if err != nil || price == 0 {
			continue
		}
		prices[mint] = price
	}

	return prices, nil
}
