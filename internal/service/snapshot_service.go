package service

import (
	"context"
	"sort"
	"time"

	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// holdingEpsilon hides positions that rounded away to nothing
const holdingEpsilon = 1e-9

// ledgerReader loads a wallet's stored ledger rows, oldest first
type ledgerReader interface {
	ListByWallet(ctx context.Context, userID, walletAddress string, chain types.ChainID) ([]*models.LedgerTransaction, error)
}

// snapshotWriter persists rebuilt daily snapshots
type snapshotWriter interface {
	Upsert(ctx context.Context, snap *models.DailySnapshot) error
}

// snapshotPricer values holdings at a historical date or right now
type snapshotPricer interface {
	HistoricalPrice(ctx context.Context, tokenAddress string, ts time.Time) (float64, error)
	BatchCurrentPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error)
}

// SnapshotService rebuilds the full daily valuation series for a wallet from
// its stored ledger rows.
type SnapshotService struct {
	txs    ledgerReader
	snaps  snapshotWriter
	pricer snapshotPricer

	// now is injectable so tests can pin "today"
	now func() time.Time
}

// NewSnapshotService creates a snapshot service
func NewSnapshotService(txs ledgerReader, snaps snapshotWriter, pricer snapshotPricer) *SnapshotService {
	return &SnapshotService{
		txs:    txs,
		snaps:  snaps,
		pricer: pricer,
		now:    time.Now,
	}
}

type position struct {
	amount float64
	symbol string
	name   string
}

// Rebuild recomputes and upserts one snapshot per UTC day from the wallet's
// first stored transaction through today. Days without transactions are
// filled: holdings carry over and the day's PnL reflects price movement only.
// Daily PnL is the value change minus the day's net transfer inflows, so
// deposits and withdrawals do not masquerade as gains or losses.
func (s *SnapshotService) Rebuild(ctx context.Context, userID, walletAddress string, chain types.ChainID) error {
	logger := logging.FromContext(ctx).WithField("wallet", walletAddress)

	rows, err := s.txs.ListByWallet(ctx, userID, walletAddress, chain)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		logger.Info("No stored transactions, skipping snapshot rebuild")
		return nil
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	day := rows[0].Timestamp.UTC().Truncate(24 * time.Hour)

	holdings := make(map[string]*position)
	var prevValue float64
	idx := 0
	days := 0

	for !day.After(today) {
		var netInflows float64
		dayEnd := day.Add(24 * time.Hour)

		for idx < len(rows) && rows[idx].Timestamp.Before(dayEnd) {
			row := rows[idx]
			pos, ok := holdings[row.TokenAddress]
			if !ok {
				pos = &position{symbol: row.TokenSymbol, name: row.TokenName}
				holdings[row.TokenAddress] = pos
			}
			pos.amount += row.Amount
			if row.Type.IsTransfer() {
				netInflows += row.ValueUsd
			}
			idx++
		}

		valued, totalValue, err := s.valueHoldings(ctx, holdings, day, day.Equal(today))
		if err != nil {
			return err
		}

		pnl := totalValue - prevValue - netInflows
		var pnlPercent float64
		if prevValue > 0 {
			pnlPercent = pnl / prevValue * 100
		}

		snap := &models.DailySnapshot{
			UserID:          userID,
			WalletAddress:   walletAddress,
			Chain:           chain,
			Date:            day,
			TotalValue:      totalValue,
			DailyPnL:        pnl,
			DailyPnLPercent: pnlPercent,
			Holdings:        valued,
		}
		if err := s.snaps.Upsert(ctx, snap); err != nil {
			return err
		}

		prevValue = totalValue
		day = dayEnd
		days++
	}

	logger.WithField("days", days).Info("Daily snapshots rebuilt")
	return nil
}

// valueHoldings prices every positive position as of the given day. Past days
// resolve dated prices token by token; today batches through the current
// price sources instead.
func (s *SnapshotService) valueHoldings(ctx context.Context, holdings map[string]*position, day time.Time, isToday bool) ([]models.TokenHolding, float64, error) {
	logger := logging.FromContext(ctx)

	mints := make([]string, 0, len(holdings))
	for mint, pos := range holdings {
		if pos.amount > holdingEpsilon {
			mints = append(mints, mint)
		}
	}
	sort.Strings(mints)

	prices := make(map[string]float64, len(mints))
	if isToday {
		batch, err := s.pricer.BatchCurrentPrices(ctx, mints)
		if err != nil {
			return nil, 0, err
		}
		prices = batch
	} else {
		for _, mint := range mints {
			price, err := s.pricer.HistoricalPrice(ctx, mint, day)
			if err != nil {
				if ctx.Err() != nil {
					return nil, 0, err
				}
				// One unpriceable token must not sink the whole day
				logger.WithFields(map[string]interface{}{
					"token": mint,
					"date":  day.Format("2006-01-02"),
					"error": err.Error(),
				}).Warn("Historical price unavailable, valuing position at zero")
				price = 0
			}
			prices[mint] = price
		}
	}

	valued := make([]models.TokenHolding, 0, len(mints))
	var total float64
	for _, mint := range mints {
		pos := holdings[mint]
		price := prices[mint]
		value := pos.amount * price
		total += value
		valued = append(valued, models.TokenHolding{
			TokenAddress: mint,
			Symbol:       pos.symbol,
			Name:         pos.name,
			Amount:       pos.amount,
			Price:        price,
			Value:        value,
		})
	}

	sort.Slice(valued, func(i, j int) bool {
		return valued[i].Value > valued[j].Value
	})

	return valued, total, nil
}
