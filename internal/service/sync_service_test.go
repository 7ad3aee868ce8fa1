package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
	"github.com/wallet-tracker/internal/worker"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeSyncStore struct {
	rec *models.SyncRecord
}

func (f *fakeSyncStore) Create(ctx context.Context, userID, wallet string, chain types.ChainID, startDate time.Time) (*models.SyncRecord, error) {
	f.rec = &models.SyncRecord{
		ID: "sync-1", UserID: userID, WalletAddress: wallet, Chain: chain,
		Status: types.SyncPending, StartDate: startDate,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	return f.rec, nil
}

func (f *fakeSyncStore) GetByKey(ctx context.Context, userID, wallet string, chain types.ChainID) (*models.SyncRecord, error) {
	return f.rec, nil
}

func (f *fakeSyncStore) GetByID(ctx context.Context, id string) (*models.SyncRecord, error) {
	if f.rec != nil && f.rec.ID == id {
		return f.rec, nil
	}
	return nil, nil
}

func (f *fakeSyncStore) Reset(ctx context.Context, id string, errorMessage *string) (*models.SyncRecord, error) {
	f.rec.Status = types.SyncPending
	f.rec.LastSyncedCursor = nil
	f.rec.ErrorMessage = errorMessage
	f.rec.UpdatedAt = testNow
	return f.rec, nil
}

func (f *fakeSyncStore) MarkProcessing(ctx context.Context, id string) error {
	f.rec.Status = types.SyncProcessing
	return nil
}

func (f *fakeSyncStore) Complete(ctx context.Context, id string) error {
	f.rec.Status = types.SyncCompleted
	now := testNow
	f.rec.CompletedAt = &now
	return nil
}

func (f *fakeSyncStore) Fail(ctx context.Context, id, errorMessage string) error {
	f.rec.Status = types.SyncFailed
	f.rec.ErrorMessage = &errorMessage
	return nil
}

type fakeSnapshotStore struct {
	snaps       []*models.DailySnapshot
	listCalls   int
	deleteCalls int
}

func (f *fakeSnapshotStore) ListRange(ctx context.Context, userID, wallet string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error) {
	f.listCalls++
	return f.snaps, nil
}

func (f *fakeSnapshotStore) DeleteByKey(ctx context.Context, userID, wallet string, chain types.ChainID) error {
	f.deleteCalls++
	f.snaps = nil
	return nil
}

type fakeQueryCache struct {
	entries     map[string][]*models.DailySnapshot
	invalidated int
}

func (f *fakeQueryCache) key(userID, wallet string, chain types.ChainID, from, to time.Time) string {
	return userID + wallet + string(chain) + from.String() + to.String()
}

func (f *fakeQueryCache) Get(ctx context.Context, userID, wallet string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error) {
	if f.entries == nil {
		return nil, nil
	}
	return f.entries[f.key(userID, wallet, chain, from, to)], nil
}

func (f *fakeQueryCache) Set(ctx context.Context, userID, wallet string, chain types.ChainID, from, to time.Time, snaps []*models.DailySnapshot) error {
	if f.entries == nil {
		f.entries = map[string][]*models.DailySnapshot{}
	}
	f.entries[f.key(userID, wallet, chain, from, to)] = snaps
	return nil
}

func (f *fakeQueryCache) Invalidate(ctx context.Context, userID, wallet string, chain types.ChainID) error {
	f.invalidated++
	f.entries = nil
	return nil
}

type fakeIngestor struct {
	calls int
	err   error
	panic bool
}

func (f *fakeIngestor) FetchAndStore(ctx context.Context, rec *models.SyncRecord) error {
	f.calls++
	if f.panic {
		panic("ledger decoder blew up")
	}
	return f.err
}

type fakeRebuilder struct {
	calls int
	err   error
}

func (f *fakeRebuilder) Rebuild(ctx context.Context, userID, wallet string, chain types.ChainID) error {
	f.calls++
	return f.err
}

type fakeJobPool struct {
	jobs []func()
	err  error
}

func (f *fakeJobPool) Submit(job func()) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type syncFixture struct {
	svc     *SyncService
	store   *fakeSyncStore
	snaps   *fakeSnapshotStore
	cache   *fakeQueryCache
	ingest  *fakeIngestor
	rebuild *fakeRebuilder
	pool    *fakeJobPool
}

func newSyncFixture() *syncFixture {
	f := &syncFixture{
		store:   &fakeSyncStore{},
		snaps:   &fakeSnapshotStore{},
		cache:   &fakeQueryCache{},
		ingest:  &fakeIngestor{},
		rebuild: &fakeRebuilder{},
		pool:    &fakeJobPool{},
	}
	f.svc = NewSyncService(
		f.store, f.snaps, f.cache, f.ingest, f.rebuild, f.pool,
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 2*time.Minute,
		logging.NewLogger(logging.LevelError, logging.FormatText),
	)
	f.svc.now = func() time.Time { return testNow }
	return f
}

func existingRecord(status types.SyncStatus, age time.Duration) *models.SyncRecord {
	return &models.SyncRecord{
		ID: "sync-1", UserID: "user-1", WalletAddress: testWallet,
		Chain: types.ChainSolana, Status: status,
		UpdatedAt: testNow.Add(-age),
	}
}

func TestTriggerNewWalletCreatesAndQueues(t *testing.T) {
	f := newSyncFixture()

	rec, err := f.svc.Trigger(context.Background(), "user-1", testWallet, types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, rec.Status)
	assert.Len(t, f.pool.jobs, 1)
}

func TestTriggerFreshActiveSyncIsUntouched(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncProcessing, 30*time.Second)

	rec, err := f.svc.Trigger(context.Background(), "user-1", testWallet, types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, types.SyncProcessing, rec.Status)
	assert.Empty(t, f.pool.jobs)
}

func TestTriggerStaleProcessingSyncRestarts(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncProcessing, 3*time.Minute)
	cursor := "sigStale"
	f.store.rec.LastSyncedCursor = &cursor
	// The crashed run got partway through writing snapshots
	f.snaps.snaps = []*models.DailySnapshot{{UserID: "user-1"}}

	rec, err := f.svc.Trigger(context.Background(), "user-1", testWallet, types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, rec.Status)
	assert.Nil(t, rec.LastSyncedCursor)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "stalled")
	assert.Len(t, f.pool.jobs, 1)

	// Partial snapshot rows from the crashed run are discarded with it
	assert.Equal(t, 1, f.snaps.deleteCalls)
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestTriggerCompletedSyncReplaysFromScratch(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncCompleted, time.Hour)
	f.snaps.snaps = []*models.DailySnapshot{{UserID: "user-1"}}

	rec, err := f.svc.Trigger(context.Background(), "user-1", testWallet, types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, rec.Status)
	assert.Equal(t, 1, f.snaps.deleteCalls)
	assert.Equal(t, 1, f.cache.invalidated)
	assert.Len(t, f.pool.jobs, 1)
}

func TestTriggerFailedSyncRestartsFromScratch(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncFailed, time.Minute)
	f.snaps.snaps = []*models.DailySnapshot{{UserID: "user-1"}}

	rec, err := f.svc.Trigger(context.Background(), "user-1", testWallet, types.ChainSolana)
	require.NoError(t, err)
	assert.Equal(t, types.SyncPending, rec.Status)
	// Failed runs replay like completed ones: stale snapshots go first
	assert.Equal(t, 1, f.snaps.deleteCalls)
	assert.Equal(t, 1, f.cache.invalidated)
	assert.Len(t, f.pool.jobs, 1)
}

func TestTriggerQueueFullMarksSyncFailed(t *testing.T) {
	f := newSyncFixture()
	f.pool.err = worker.ErrQueueFull

	_, err := f.svc.Trigger(context.Background(), "user-1", testWallet, types.ChainSolana)
	require.Error(t, err)
	assert.Equal(t, types.SyncFailed, f.store.rec.Status)
}

func TestProcessSyncHappyPath(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncPending, 0)

	f.svc.ProcessSync("sync-1")

	assert.Equal(t, 1, f.ingest.calls)
	assert.Equal(t, 1, f.rebuild.calls)
	assert.Equal(t, types.SyncCompleted, f.store.rec.Status)
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestProcessSyncIngestFailureMarksFailed(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncPending, 0)
	f.ingest.err = errors.New("upstream exploded")

	f.svc.ProcessSync("sync-1")

	assert.Equal(t, types.SyncFailed, f.store.rec.Status)
	require.NotNil(t, f.store.rec.ErrorMessage)
	assert.Contains(t, *f.store.rec.ErrorMessage, "upstream exploded")
	assert.Zero(t, f.rebuild.calls)
}

func TestProcessSyncRebuildFailureMarksFailed(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncPending, 0)
	f.rebuild.err = errors.New("snapshot store down")

	f.svc.ProcessSync("sync-1")

	assert.Equal(t, types.SyncFailed, f.store.rec.Status)
	assert.Zero(t, f.cache.invalidated)
}

func TestProcessSyncRecoversFromPanic(t *testing.T) {
	f := newSyncFixture()
	f.store.rec = existingRecord(types.SyncPending, 0)
	f.ingest.panic = true

	require.NotPanics(t, func() { f.svc.ProcessSync("sync-1") })

	assert.Equal(t, types.SyncFailed, f.store.rec.Status)
	require.NotNil(t, f.store.rec.ErrorMessage)
	assert.Contains(t, *f.store.rec.ErrorMessage, "panicked")
}

func TestProcessSyncSkipsVanishedRecord(t *testing.T) {
	f := newSyncFixture()

	require.NotPanics(t, func() { f.svc.ProcessSync("sync-unknown") })
	assert.Zero(t, f.ingest.calls)
}

func TestGetSnapshotsReadsThroughCache(t *testing.T) {
	f := newSyncFixture()
	f.snaps.snaps = []*models.DailySnapshot{{UserID: "user-1", TotalValue: 42}}
	from, to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	first, err := f.svc.GetSnapshots(context.Background(), "user-1", testWallet, types.ChainSolana, from, to)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, f.snaps.listCalls)

	// Second query is served from the cache
	second, err := f.svc.GetSnapshots(context.Background(), "user-1", testWallet, types.ChainSolana, from, to)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, f.snaps.listCalls)
}
