package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wallet-tracker/internal/adapter"
	"github.com/wallet-tracker/internal/apperrors"
	"github.com/wallet-tracker/internal/config"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/retry"
	"github.com/wallet-tracker/internal/types"
)

type fakeLedger struct {
	pages [][]adapter.LedgerTransaction
	errs  map[int]error
	// before cursor of each call, in order
	calls []string
}

func (f *fakeLedger) Transactions(ctx context.Context, wallet, before string, limit int) ([]adapter.LedgerTransaction, error) {
	i := len(f.calls)
	f.calls = append(f.calls, before)
	if err, ok := f.errs[i]; ok {
		return nil, err
	}
	if i < len(f.pages) {
		return f.pages[i], nil
	}
	return nil, nil
}

type fakeHistPricer struct {
	prices map[string]float64
	err    error
	calls  int
}

func (f *fakeHistPricer) HistoricalPrice(ctx context.Context, token string, ts time.Time) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.prices[token], nil
}

type fakePriceStore struct {
	saved []*models.PriceRecord
}

func (f *fakePriceStore) GetPrice(ctx context.Context, token string, chain types.ChainID, date time.Time) (*models.PriceRecord, error) {
	return nil, nil
}

func (f *fakePriceStore) SavePrice(ctx context.Context, rec *models.PriceRecord) error {
	f.saved = append(f.saved, rec)
	return nil
}

type fakeLedgerWriter struct {
	batches [][]*models.LedgerTransaction
	err     error
}

func (f *fakeLedgerWriter) BatchInsert(ctx context.Context, txs []*models.LedgerTransaction) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, txs)
	return nil
}

func (f *fakeLedgerWriter) rows() []*models.LedgerTransaction {
	var all []*models.LedgerTransaction
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

type fakeCursorTracker struct {
	cursors []string
}

func (f *fakeCursorTracker) UpdateCursor(ctx context.Context, id, cursor string) error {
	f.cursors = append(f.cursors, cursor)
	return nil
}

func newTestIngest(ledger *fakeLedger, pricer *fakeHistPricer, prices *fakePriceStore, writer *fakeLedgerWriter, cursors *fakeCursorTracker, pageLimit int) *IngestService {
	return &IngestService{
		ledger:    ledger,
		pricer:    pricer,
		prices:    prices,
		txRepo:    writer,
		cursors:   cursors,
		chain:     types.ChainSolana,
		startDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		pageLimit: pageLimit,
		dust:      0.001,
		swapCfg:   testSwapConfig(),
		pagePacer: rate.NewLimiter(rate.Inf, 1),
		retryCfg:  retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond},
	}
}

func testSyncRecord() *models.SyncRecord {
	return &models.SyncRecord{
		ID:            "sync-1",
		UserID:        "user-1",
		WalletAddress: testWallet,
		Chain:         types.ChainSolana,
		Status:        types.SyncProcessing,
	}
}

func unixAt(day, hour int) int64 {
	return time.Date(2026, 2, day, hour, 0, 0, 0, time.UTC).Unix()
}

func TestFetchAndStorePaginatesUntilEmptyPage(t *testing.T) {
	ledger := &fakeLedger{
		pages: [][]adapter.LedgerTransaction{
			{
				{Signature: "sigA", Timestamp: unixAt(10, 12), Type: "TRANSFER",
					TokenTransfers: []adapter.TokenTransfer{{Mint: memeMint, TokenAmount: 5, FromUserAccount: otherParty, ToUserAccount: testWallet}}},
				{Signature: "sigB", Timestamp: unixAt(9, 12), Type: "TRANSFER",
					TokenTransfers: []adapter.TokenTransfer{{Mint: memeMint, TokenAmount: 3, FromUserAccount: testWallet, ToUserAccount: otherParty}}},
			},
			{
				{Signature: "sigC", Timestamp: unixAt(8, 12), Type: "TRANSFER",
					TokenTransfers: []adapter.TokenTransfer{{Mint: memeMint, TokenAmount: 1, FromUserAccount: otherParty, ToUserAccount: testWallet}}},
			},
		},
	}
	pricer := &fakeHistPricer{prices: map[string]float64{memeMint: 2}}
	writer := &fakeLedgerWriter{}
	cursors := &fakeCursorTracker{}

	s := newTestIngest(ledger, pricer, &fakePriceStore{}, writer, cursors, 2)
	require.NoError(t, s.FetchAndStore(context.Background(), testSyncRecord()))

	// The first call has no cursor, each later call resumes after the previous
	// page's last tx. The short second page does not end pagination; the empty
	// third page does.
	assert.Equal(t, []string{"", "sigB", "sigC"}, ledger.calls)
	assert.Equal(t, []string{"sigB", "sigC"}, cursors.cursors)

	rows := writer.rows()
	require.Len(t, rows, 3)
	assert.Equal(t, types.TxTransferIn, rows[0].Type)
	assert.InDelta(t, 5.0, rows[0].Amount, 1e-9)
	assert.InDelta(t, 10.0, rows[0].ValueUsd, 1e-9)
	assert.Equal(t, types.TxTransferOut, rows[1].Type)
	assert.InDelta(t, -3.0, rows[1].Amount, 1e-9)
	assert.InDelta(t, -6.0, rows[1].ValueUsd, 1e-9)
}

func TestFetchAndStoreStopsAtStartDate(t *testing.T) {
	preCutoff := time.Date(2025, 12, 20, 0, 0, 0, 0, time.UTC).Unix()
	ledger := &fakeLedger{
		pages: [][]adapter.LedgerTransaction{
			{
				{Signature: "sigA", Timestamp: unixAt(1, 12), Type: "TRANSFER",
					TokenTransfers: []adapter.TokenTransfer{{Mint: memeMint, TokenAmount: 5, FromUserAccount: otherParty, ToUserAccount: testWallet}}},
				{Signature: "sigOld", Timestamp: preCutoff, Type: "TRANSFER",
					TokenTransfers: []adapter.TokenTransfer{{Mint: memeMint, TokenAmount: 9, FromUserAccount: otherParty, ToUserAccount: testWallet}}},
			},
		},
	}
	writer := &fakeLedgerWriter{}

	s := newTestIngest(ledger, &fakeHistPricer{prices: map[string]float64{memeMint: 1}}, &fakePriceStore{}, writer, &fakeCursorTracker{}, 2)
	require.NoError(t, s.FetchAndStore(context.Background(), testSyncRecord()))

	// Only one fetch: the cutoff inside a full page ends pagination
	assert.Len(t, ledger.calls, 1)
	rows := writer.rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "sigA", rows[0].TxHash)
}

func TestFetchAndStoreResumesFromPersistedCursor(t *testing.T) {
	ledger := &fakeLedger{pages: [][]adapter.LedgerTransaction{{}}}
	s := newTestIngest(ledger, &fakeHistPricer{}, &fakePriceStore{}, &fakeLedgerWriter{}, &fakeCursorTracker{}, 2)

	rec := testSyncRecord()
	cursor := "sigResume"
	rec.LastSyncedCursor = &cursor
	require.NoError(t, s.FetchAndStore(context.Background(), rec))

	assert.Equal(t, []string{"sigResume"}, ledger.calls)
}

func TestFetchAndStoreSwapUsesImpliedPrices(t *testing.T) {
	// 1 SOL sold for 100 USDC: both legs priced from the swap itself, the
	// external pricer is never consulted
	ledger := &fakeLedger{
		pages: [][]adapter.LedgerTransaction{
			{
				{Signature: "swap1", Timestamp: unixAt(5, 12), Type: "SWAP",
					NativeTransfers: []adapter.NativeTransfer{{FromUserAccount: testWallet, ToUserAccount: otherParty, Amount: 1_000_000_000}},
					TokenTransfers:  []adapter.TokenTransfer{{Mint: config.SolanaUSDCMint, TokenAmount: 100, FromUserAccount: otherParty, ToUserAccount: testWallet}}},
			},
		},
	}
	pricer := &fakeHistPricer{}
	prices := &fakePriceStore{}
	writer := &fakeLedgerWriter{}

	s := newTestIngest(ledger, pricer, prices, writer, &fakeCursorTracker{}, 10)
	require.NoError(t, s.FetchAndStore(context.Background(), testSyncRecord()))

	assert.Zero(t, pricer.calls)

	rows := writer.rows()
	require.Len(t, rows, 2)
	byMint := map[string]*models.LedgerTransaction{}
	for _, row := range rows {
		byMint[row.TokenAddress] = row
	}

	sol := byMint[config.SolanaNativeMint]
	require.NotNil(t, sol)
	assert.Equal(t, types.TxSell, sol.Type)
	assert.InDelta(t, -1.0, sol.Amount, 1e-9)
	assert.InDelta(t, 100.0, sol.PriceUsd, 1e-9)
	assert.InDelta(t, -100.0, sol.ValueUsd, 1e-9)

	usdc := byMint[config.SolanaUSDCMint]
	require.NotNil(t, usdc)
	assert.Equal(t, types.TxBuy, usdc.Type)
	assert.InDelta(t, 100.0, usdc.Amount, 1e-9)
	assert.InDelta(t, 1.0, usdc.PriceUsd, 1e-9)

	// Swap-implied prices are persisted as dated records
	require.Len(t, prices.saved, 2)
	for _, rec := range prices.saved {
		assert.Equal(t, types.SourceSwap, rec.Source)
	}
}

func TestFetchAndStorePricerFailureStoresUnpricedRow(t *testing.T) {
	ledger := &fakeLedger{
		pages: [][]adapter.LedgerTransaction{
			{
				{Signature: "sigA", Timestamp: unixAt(5, 12), Type: "TRANSFER",
					TokenTransfers: []adapter.TokenTransfer{{Mint: memeMint, TokenAmount: 5, FromUserAccount: otherParty, ToUserAccount: testWallet}}},
			},
		},
	}
	pricer := &fakeHistPricer{err: errors.New("pricing backend down")}
	writer := &fakeLedgerWriter{}

	s := newTestIngest(ledger, pricer, &fakePriceStore{}, writer, &fakeCursorTracker{}, 10)
	require.NoError(t, s.FetchAndStore(context.Background(), testSyncRecord()))

	rows := writer.rows()
	require.Len(t, rows, 1)
	assert.Zero(t, rows[0].PriceUsd)
	assert.Zero(t, rows[0].ValueUsd)
	assert.InDelta(t, 5.0, rows[0].Amount, 1e-9)
}

func TestFetchAndStoreSkipsDustNativeTransfers(t *testing.T) {
	ledger := &fakeLedger{
		pages: [][]adapter.LedgerTransaction{
			{
				{Signature: "sigA", Timestamp: unixAt(5, 12), Type: "TRANSFER",
					NativeTransfers: []adapter.NativeTransfer{{FromUserAccount: otherParty, ToUserAccount: testWallet, Amount: 100_000}}}, // 0.0001 SOL
			},
		},
	}
	writer := &fakeLedgerWriter{}

	s := newTestIngest(ledger, &fakeHistPricer{}, &fakePriceStore{}, writer, &fakeCursorTracker{}, 10)
	require.NoError(t, s.FetchAndStore(context.Background(), testSyncRecord()))

	assert.Empty(t, writer.rows())
}

func TestFetchAndStoreLedgerFailureReturnsFetchFailure(t *testing.T) {
	ledger := &fakeLedger{
		errs: map[int]error{0: apperrors.Unavailable("helius", errors.New("HTTP 500"))},
	}

	s := newTestIngest(ledger, &fakeHistPricer{}, &fakePriceStore{}, &fakeLedgerWriter{}, &fakeCursorTracker{}, 10)
	err := s.FetchAndStore(context.Background(), testSyncRecord())

	var ff *apperrors.FetchFailure
	require.ErrorAs(t, err, &ff)
	assert.Equal(t, testWallet, ff.Wallet)
}

func TestFetchAndStoreRetriesTransientLedgerErrors(t *testing.T) {
	ledger := &fakeLedger{
		pages: [][]adapter.LedgerTransaction{nil, {}},
		errs:  map[int]error{0: apperrors.RateLimited("helius")},
	}

	s := newTestIngest(ledger, &fakeHistPricer{}, &fakePriceStore{}, &fakeLedgerWriter{}, &fakeCursorTracker{}, 10)
	require.NoError(t, s.FetchAndStore(context.Background(), testSyncRecord()))

	assert.Len(t, ledger.calls, 2)
}
