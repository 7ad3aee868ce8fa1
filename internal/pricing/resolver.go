// Package pricing resolves token USD prices at historical dates or "now"
// through a cache → persisted store → external source chain, with provenance
// tracking that keeps same-day fallback prices out of durable storage.
package pricing

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallet-tracker/internal/config"
	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/retry"
	"github.com/wallet-tracker/internal/types"
)

// PriceStore is the persisted PriceRecord contract the resolver depends on
type PriceStore interface {
	GetPrice(ctx context.Context, tokenAddress string, chain types.ChainID, date time.Time) (*models.PriceRecord, error)
	SavePrice(ctx context.Context, record *models.PriceRecord) error
}

// historyAPI is the day-granularity price source for the native asset
type historyAPI interface {
	HistoricalPrice(ctx context.Context, coinID string, date time.Time) (float64, error)
	SimplePrice(ctx context.Context, coinID string) (float64, error)
}

// tickerAPI is the secondary current-price source for the native asset
type tickerAPI interface {
	TickerPrice(ctx context.Context, symbol string) (float64, error)
}

// aggregatorAPI is the batch-capable price source for all non-native tokens
type aggregatorAPI interface {
	Prices(ctx context.Context, mints []string) (map[string]float64, error)
}

// Resolver resolves token prices with provenance. Safe for concurrent use;
// the two in-memory caches are shared process-wide and hold no durability
// guarantee.
type Resolver struct {
	chain        types.ChainID
	nativeMint   string
	nativeCoinID string
	nativeTicker string

	store      PriceStore
	history    historyAPI
	ticker     tickerAPI
	aggregator aggregatorAPI

	currentCache    *CurrentPriceCache
	historicalCache *HistoricalPriceCache

	// historyPacer spaces out history API calls; the free tier enforces a
	// strict global rate limit and each unique date is fetched at most once
	historyPacer    *rate.Limiter
	historyRetryCfg retry.Config
	retryCfg        retry.Config
	chunkSize       int
}

// NewResolver creates a price resolver wired to the given store and sources
func NewResolver(cfg *config.PricingConfig, chain types.ChainID, store PriceStore, history historyAPI, ticker tickerAPI, aggregator aggregatorAPI) *Resolver {
	return &Resolver{
		chain:           chain,
		nativeMint:      cfg.NativeMint,
		nativeCoinID:    cfg.NativeCoinID,
		nativeTicker:    cfg.NativeTicker,
		store:           store,
		history:         history,
		ticker:          ticker,
		aggregator:      aggregator,
		currentCache:    NewCurrentPriceCache(cfg.CurrentPriceTTL),
		historicalCache: NewHistoricalPriceCache(),
		historyPacer:    rate.NewLimiter(rate.Every(cfg.HistoryDelay), 1),
		historyRetryCfg: retry.Config{MaxAttempts: cfg.HistoryRetryAttempts, InitialDelay: cfg.HistoryRetryDelay},
		retryCfg:        retry.DefaultConfig(),
		chunkSize:       cfg.BatchChunkSize,
	}
}

// HistoricalPrice resolves a token's USD price on the UTC calendar date of
// the given timestamp. Resolution order: in-memory cache, persisted store,
// history API (native asset only), current price as a last-resort fallback.
// Only the first three tiers produce persistable prices; fallback results are
// returned but never written back, so a later authoritative fetch for the
// same date can still succeed.
func (r *Resolver) HistoricalPrice(ctx context.Context, tokenAddress string, ts time.Time) (float64, error) {
	logger := logging.FromContext(ctx)

	date := ts.UTC().Truncate(24 * time.Hour)
	dateStr := date.Format("2006-01-02")

	if price, ok := r.historicalCache.Get(tokenAddress, dateStr); ok {
		return price, nil
	}

	stored, err := r.store.GetPrice(ctx, tokenAddress, r.chain, date)
	if err != nil {
		logger.WithError(err).Warn("Price store lookup failed, continuing to external sources")
	} else if stored != nil {
		r.historicalCache.Set(tokenAddress, dateStr, stored.Price)
		return stored.Price, nil
	}

	var price float64
	source := types.SourceFallbackCurrent

	if tokenAddress == r.nativeMint {
		if err := r.historyPacer.Wait(ctx); err != nil {
			return 0, err
		}

		fetchErr := retry.Do(ctx, r.historyRetryCfg, func(ctx context.Context) error {
			fetched, err := r.history.HistoricalPrice(ctx, r.nativeCoinID, date)
			if err != nil {
				return err
			}
			price = fetched
			return nil
		})
		if fetchErr != nil {
			logger.WithFields(map[string]interface{}{
				"token": tokenAddress,
				"date":  dateStr,
				"error": fetchErr.Error(),
			}).Warn("History API exhausted, falling back to current price")
			price = 0
		} else if price > 0 {
			source = types.SourceCoinGecko
		}
	}

	if price == 0 {
		current, err := r.CurrentPrice(ctx, tokenAddress)
		if err != nil {
			return 0, err
		}
		price = current
		source = types.SourceFallbackCurrent
	}

	if price > 0 && source.Authoritative() {
		record := &models.PriceRecord{
			TokenAddress: tokenAddress,
			Chain:        r.chain,
			Date:         date,
			Price:        price,
			Source:       source,
		}
		// Duplicate-key conflicts are concurrent-sync races, not failures
		if err := r.store.SavePrice(ctx, record); err != nil {
			logger.WithError(err).Debug("Failed to persist historical price (likely duplicate)")
		}
		r.historicalCache.Set(tokenAddress, dateStr, price)
	}

	return price, nil
}

// CurrentPrice resolves a token's current USD price. The native asset tries
// the primary source then the exchange ticker; any other token goes through
// the aggregator. Results (including zero) are cached for the TTL window.
func (r *Resolver) CurrentPrice(ctx context.Context, tokenAddress string) (float64, error) {
	logger := logging.FromContext(ctx)

	if price, ok := r.currentCache.Get(tokenAddress); ok {
		return price, nil
	}

	var price float64

	if tokenAddress == r.nativeMint {
		fetched, err := r.history.SimplePrice(ctx, r.nativeCoinID)
		if err != nil {
			logger.WithError(err).Debug("Primary current price source failed for native asset")
		} else {
			price = fetched
		}

		if price == 0 {
			fetched, err := r.ticker.TickerPrice(ctx, r.nativeTicker)
			if err != nil {
				logger.WithError(err).Warn("All current price sources failed for native asset")
			} else {
				price = fetched
			}
		}
	} else {
		err := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
			prices, err := r.aggregator.Prices(ctx, []string{tokenAddress})
			if err != nil {
				return err
			}
			price = prices[tokenAddress]
			return nil
		})
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"token": tokenAddress,
				"error": err.Error(),
			}).Debug("Aggregator price lookup failed")
		}
	}

	// Cache even a zero so a failing source is not retried within the TTL
	r.currentCache.Set(tokenAddress, price)

	return price, nil
}

// BatchCurrentPrices resolves current prices for many tokens at once. The
// native asset goes through CurrentPrice; everything else is chunked through
// the aggregator, with per-chunk failure isolation. The short-TTL cache is
// populated as a side effect. Tokens with no resolvable price are absent from
// the result.
func (r *Resolver) BatchCurrentPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error) {
	logger := logging.FromContext(ctx)
	result := make(map[string]float64, len(tokenAddresses))

	others := make([]string, 0, len(tokenAddresses))
	for _, addr := range tokenAddresses {
		if addr == r.nativeMint {
			price, err := r.CurrentPrice(ctx, addr)
			if err != nil {
				return nil, err
			}
			result[addr] = price
		} else {
			others = append(others, addr)
		}
	}

	for start := 0; start < len(others); start += r.chunkSize {
		end := start + r.chunkSize
		if end > len(others) {
			end = len(others)
		}
		chunk := others[start:end]

		var prices map[string]float64
		err := retry.Do(ctx, r.retryCfg, func(ctx context.Context) error {
			fetched, err := r.aggregator.Prices(ctx, chunk)
			if err != nil {
				return err
			}
			prices = fetched
			return nil
		})
		if err != nil {
			// One bad chunk must not blank out the rest
			logger.WithFields(map[string]interface{}{
				"chunkSize": len(chunk),
				"error":     err.Error(),
			}).Warn("Aggregator batch chunk failed, continuing with remaining chunks")
			continue
		}

		for mint, price := range prices {
			result[mint] = price
			r.currentCache.Set(mint, price)
		}
	}

	return result, nil
}
