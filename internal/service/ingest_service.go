package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wallet-tracker/internal/adapter"
	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/config"
	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/pricing"
	"github.com/wallet-tracker/internal/retry"
	"github.com/wallet-tracker/internal/types"
)

// ledgerAPI is the paged transaction source
type ledgerAPI interface {
	Transactions(ctx context.Context, wallet, before string, limit int) ([]adapter.LedgerTransaction, error)
}

// historicalPricer resolves a token's USD price at a point in time
type historicalPricer interface {
	HistoricalPrice(ctx context.Context, tokenAddress string, ts time.Time) (float64, error)
}

// ledgerWriter appends parsed rows to the transaction log
type ledgerWriter interface {
	BatchInsert(ctx context.Context, txs []*models.LedgerTransaction) error
}

// cursorTracker persists pagination progress between pages
type cursorTracker interface {
	UpdateCursor(ctx context.Context, id, cursor string) error
}

// IngestService pages backward through a wallet's transaction history,
// parses each transaction into priced ledger rows, and stores them.
type IngestService struct {
	ledger  ledgerAPI
	pricer  historicalPricer
	prices  pricing.PriceStore
	txRepo  ledgerWriter
	cursors cursorTracker

	chain     types.ChainID
	startDate time.Time
	pageLimit int
	dust      float64
	swapCfg   SwapConfig

	pagePacer *rate.Limiter
	retryCfg  retry.Config
}

// NewIngestService creates an ingest service
func NewIngestService(
	cfg *config.Config,
	ledger ledgerAPI,
	pricer historicalPricer,
	prices pricing.PriceStore,
	txRepo ledgerWriter,
	cursors cursorTracker,
	chain types.ChainID,
) *IngestService {
	return &IngestService{
		ledger:    ledger,
		pricer:    pricer,
		prices:    prices,
		txRepo:    txRepo,
		cursors:   cursors,
		chain:     chain,
		startDate: cfg.Sync.StartDate,
		pageLimit: cfg.Ledger.PageLimit,
		dust:      cfg.Sync.DustThreshold,
		swapCfg:   NewSwapConfig(&cfg.Pricing, cfg.Sync.DustThreshold),
		pagePacer: rate.NewLimiter(rate.Every(cfg.Ledger.PageDelay), 1),
		retryCfg:  retry.DefaultConfig(),
	}
}

// FetchAndStore pages backward from the newest transaction (or the record's
// persisted cursor) to the configured start date, storing priced rows page by
// page. Pagination stops at the first transaction older than the start date
// or when a page comes back empty; a short page keeps going, since the ledger
// API can return fewer rows than asked for mid-history. A page that still
// fails after retries aborts the whole sync.
func (s *IngestService) FetchAndStore(ctx context.Context, rec *models.SyncRecord) error {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"wallet": rec.WalletAddress,
		"syncId": rec.ID,
	})

	before := ""
	if rec.LastSyncedCursor != nil {
		before = *rec.LastSyncedCursor
	}
	cutoff := s.startDate.Unix()

	pages := 0
	for {
		if err := s.pagePacer.Wait(ctx); err != nil {
			return err
		}

		var page []adapter.LedgerTransaction
		err := retry.Do(ctx, s.retryCfg, func(ctx context.Context) error {
			fetched, err := s.ledger.Transactions(ctx, rec.WalletAddress, before, s.pageLimit)
			if err != nil {
				return err
			}
			page = fetched
			return nil
		})
		if err != nil {
			return &apperrors.FetchFailure{Wallet: rec.WalletAddress, Cause: err}
		}
		if len(page) == 0 {
			break
		}
		pages++

		reachedCutoff := false
		var rows []*models.LedgerTransaction
		for i := range page {
			tx := &page[i]
			if tx.Timestamp < cutoff {
				// Pages are newest first, so everything past this point predates
				// the tracking window
				reachedCutoff = true
				break
			}
			rows = append(rows, s.parseTransaction(ctx, rec, tx)...)
		}

		if len(rows) > 0 {
			if err := s.txRepo.BatchInsert(ctx, rows); err != nil {
				return err
			}
		}

		if reachedCutoff {
			break
		}

		before = page[len(page)-1].Signature
		if err := s.cursors.UpdateCursor(ctx, rec.ID, before); err != nil {
			logger.WithError(err).Warn("Failed to persist pagination cursor")
		}
	}

	logger.WithField("pages", pages).Info("Transaction ingestion finished")
	return nil
}

// parseTransaction turns one ledger API transaction into zero or more priced
// rows. A transaction that cannot be parsed is logged and skipped; one bad
// transaction never aborts the sync.
func (s *IngestService) parseTransaction(ctx context.Context, rec *models.SyncRecord, tx *adapter.LedgerTransaction) (rows []*models.LedgerTransaction) {
	logger := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"txHash": tx.Signature,
				"panic":  fmt.Sprint(r),
			}).Warn("Skipping unparseable transaction")
			rows = nil
		}
	}()

	ts := time.Unix(tx.Timestamp, 0).UTC()
	swapPrices := ExtractSwapPrices(tx, rec.WalletAddress, s.swapCfg)
	s.persistSwapPrices(ctx, swapPrices, ts)

	// Net movement per token, positive means received
	moves := make(map[string]float64)
	for _, tt := range tx.TokenTransfers {
		if tt.TokenAmount <= 0 {
			continue
		}
		switch {
		case tt.FromUserAccount == rec.WalletAddress:
			moves[tt.Mint] -= tt.TokenAmount
		case tt.ToUserAccount == rec.WalletAddress:
			moves[tt.Mint] += tt.TokenAmount
		}
	}
	for _, nt := range tx.NativeTransfers {
		amount := float64(nt.Amount) / lamportsPerUnit
		if amount < s.dust {
			// Fee and rent noise
			continue
		}
		switch {
		case nt.FromUserAccount == rec.WalletAddress:
			moves[s.swapCfg.NativeMint] -= amount
		case nt.ToUserAccount == rec.WalletAddress:
			moves[s.swapCfg.NativeMint] += amount
		}
	}

	for mint, amount := range moves {
		if amount == 0 {
			continue
		}

		var txType types.TxType
		if tx.IsSwap() {
			if amount > 0 {
				txType = types.TxBuy
			} else {
				txType = types.TxSell
			}
		} else {
			if amount > 0 {
				txType = types.TxTransferIn
			} else {
				txType = types.TxTransferOut
			}
		}

		price, ok := swapPrices[mint]
		if !ok {
			resolved, err := s.pricer.HistoricalPrice(ctx, mint, ts)
			if err != nil {
				// Record the movement anyway; a later sync can reprice
				logger.WithFields(map[string]interface{}{
					"txHash": tx.Signature,
					"token":  mint,
					"error":  err.Error(),
				}).Warn("Price resolution failed, storing row unpriced")
				resolved = 0
			}
			price = resolved
		}

		symbol, name := s.tokenMeta(mint)
		rows = append(rows, &models.LedgerTransaction{
			UserID:        rec.UserID,
			WalletAddress: rec.WalletAddress,
			Chain:         s.chain,
			TxHash:        tx.Signature,
			TokenAddress:  mint,
			TokenSymbol:   symbol,
			TokenName:     name,
			Type:          txType,
			Amount:        amount,
			PriceUsd:      price,
			ValueUsd:      amount * price,
			Timestamp:     ts,
		})
	}

	return rows
}

// persistSwapPrices stores swap-implied prices as dated records so later
// resolutions for the same token and day reuse them. Best effort.
func (s *IngestService) persistSwapPrices(ctx context.Context, prices map[string]float64, ts time.Time) {
	if len(prices) == 0 {
		return
	}
	logger := logging.FromContext(ctx)
	date := ts.UTC().Truncate(24 * time.Hour)

	for mint, price := range prices {
		if price <= 0 {
			continue
		}
		err := s.prices.SavePrice(ctx, &models.PriceRecord{
			TokenAddress: mint,
			Chain:        s.chain,
			Date:         date,
			Price:        price,
			Source:       types.SourceSwap,
		})
		if err != nil {
			logger.WithError(err).Debug("Failed to persist swap-implied price")
		}
	}
}

// tokenMeta returns a display symbol and name for a mint. Unknown mints fall
// back to an abbreviated address.
func (s *IngestService) tokenMeta(mint string) (symbol, name string) {
	switch mint {
	case config.SolanaNativeMint:
		return "SOL", "Solana"
	case config.SolanaUSDCMint:
		return "USDC", "USD Coin"
	case config.SolanaUSDTMint:
		return "USDT", "Tether USD"
	}
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:], mint
	}
	return mint, mint
}
