package service

import (
	"context"
	"fmt"
	"time"

	"github.com/wallet-tracker/internal/logging"
	"github.com/wallet-tracker/internal/models"
	"github.com/wallet-tracker/internal/types"
)

// syncStore is the sync record state machine persistence
type syncStore interface {
	Create(ctx context.Context, userID, walletAddress string, chain types.ChainID, startDate time.Time) (*models.SyncRecord, error)
	GetByKey(ctx context.Context, userID, walletAddress string, chain types.ChainID) (*models.SyncRecord, error)
	GetByID(ctx context.Context, id string) (*models.SyncRecord, error)
	Reset(ctx context.Context, id string, errorMessage *string) (*models.SyncRecord, error)
	MarkProcessing(ctx context.Context, id string) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, errorMessage string) error
}

// snapshotStore is the subset of snapshot persistence the orchestrator needs
type snapshotStore interface {
	ListRange(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error)
	DeleteByKey(ctx context.Context, userID, walletAddress string, chain types.ChainID) error
}

// snapshotQueryCache is the read-through cache over snapshot queries
type snapshotQueryCache interface {
	Get(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error)
	Set(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time, snaps []*models.DailySnapshot) error
	Invalidate(ctx context.Context, userID, walletAddress string, chain types.ChainID) error
}

// ingestor runs the fetch-and-store phase of a sync
type ingestor interface {
	FetchAndStore(ctx context.Context, rec *models.SyncRecord) error
}

// rebuilder runs the snapshot phase of a sync
type rebuilder interface {
	Rebuild(ctx context.Context, userID, walletAddress string, chain types.ChainID) error
}

// jobPool accepts background work
type jobPool interface {
	Submit(job func()) error
}

// SyncService orchestrates wallet sync lifecycles. A sync moves through
// pending, processing, and then completed or failed; completed syncs can be
// re-triggered, which wipes derived snapshots and replays history, and
// processing syncs that stop heartbeating are presumed crashed and restarted.
type SyncService struct {
	syncs     syncStore
	snapshots snapshotStore
	cache     snapshotQueryCache
	ingest    ingestor
	rebuild   rebuilder
	pool      jobPool

	startDate       time.Time
	stalenessWindow time.Duration
	logger          *logging.Logger

	// now is injectable so tests can pin staleness decisions
	now func() time.Time
}

// NewSyncService creates a sync orchestrator
func NewSyncService(
	syncs syncStore,
	snapshots snapshotStore,
	cache snapshotQueryCache,
	ingest ingestor,
	rebuild rebuilder,
	pool jobPool,
	startDate time.Time,
	stalenessWindow time.Duration,
	logger *logging.Logger,
) *SyncService {
	return &SyncService{
		syncs:           syncs,
		snapshots:       snapshots,
		cache:           cache,
		ingest:          ingest,
		rebuild:         rebuild,
		pool:            pool,
		startDate:       startDate,
		stalenessWindow: stalenessWindow,
		logger:          logger,
		now:             time.Now,
	}
}

// Trigger starts or restarts a sync for a wallet. An active sync that is
// still heartbeating is returned untouched; everything else is moved back to
// pending and queued.
func (s *SyncService) Trigger(ctx context.Context, userID, walletAddress string, chain types.ChainID) (*models.SyncRecord, error) {
	logger := s.logger.WithFields(map[string]interface{}{
		"userId": userID,
		"wallet": walletAddress,
		"chain":  chain,
	})

	rec, err := s.syncs.GetByKey(ctx, userID, walletAddress, chain)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		rec, err = s.syncs.Create(ctx, userID, walletAddress, chain, s.startDate)
		if err != nil {
			return nil, err
		}
		logger.WithField("syncId", rec.ID).Info("Sync created")
		return rec, s.enqueue(ctx, rec)
	}

	switch rec.Status {
	case types.SyncPending, types.SyncProcessing:
		if s.now().Sub(rec.UpdatedAt) < s.stalenessWindow {
			// Still in flight, let it finish
			return rec, nil
		}
		// Presumed crashed: the partial snapshot rows it may have written
		// cannot be trusted, so they go too
		if err := s.discardSnapshots(ctx, userID, walletAddress, chain); err != nil {
			return nil, err
		}
		msg := "restarted after stalled sync"
		rec, err = s.syncs.Reset(ctx, rec.ID, &msg)
		if err != nil {
			return nil, err
		}
		logger.WithField("syncId", rec.ID).Warn("Stalled sync restarted")
		return rec, s.enqueue(ctx, rec)

	case types.SyncCompleted, types.SyncFailed:
		// Re-run: derived snapshots are rebuilt from scratch, so drop them
		// before replaying history
		if err := s.discardSnapshots(ctx, userID, walletAddress, chain); err != nil {
			return nil, err
		}
		fromStatus := rec.Status
		rec, err = s.syncs.Reset(ctx, rec.ID, nil)
		if err != nil {
			return nil, err
		}
		logger.WithFields(map[string]interface{}{
			"syncId":     rec.ID,
			"fromStatus": string(fromStatus),
		}).Info("Sync re-triggered")
		return rec, s.enqueue(ctx, rec)

	default:
		return nil, fmt.Errorf("sync %s is in unknown state %q", rec.ID, rec.Status)
	}
}

// discardSnapshots drops a wallet's derived snapshots and their cached
// queries ahead of a replay
func (s *SyncService) discardSnapshots(ctx context.Context, userID, walletAddress string, chain types.ChainID) error {
	if err := s.snapshots.DeleteByKey(ctx, userID, walletAddress, chain); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, userID, walletAddress, chain); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate snapshot cache")
	}
	return nil
}

func (s *SyncService) enqueue(ctx context.Context, rec *models.SyncRecord) error {
	id := rec.ID
	err := s.pool.Submit(func() {
		s.ProcessSync(id)
	})
	if err != nil {
		if failErr := s.syncs.Fail(ctx, id, err.Error()); failErr != nil {
			s.logger.WithError(failErr).Error("Failed to mark unqueueable sync as failed")
		}
		return err
	}
	return nil
}

// ProcessSync runs one queued sync to completion: ingest transactions,
// rebuild snapshots, invalidate cached queries. Never panics past this
// boundary; any failure lands in the record's error message.
func (s *SyncService) ProcessSync(id string) {
	ctx := logging.WithLogger(context.Background(), s.logger.WithField("syncId", id))
	logger := logging.FromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("sync panicked: %v", r)
			logger.Error(msg)
			if err := s.syncs.Fail(context.Background(), id, msg); err != nil {
				logger.WithError(err).Error("Failed to record sync panic")
			}
		}
	}()

	rec, err := s.syncs.GetByID(ctx, id)
	if err != nil {
		logger.WithError(err).Error("Failed to load sync record")
		return
	}
	if rec == nil {
		logger.Warn("Sync record vanished before processing")
		return
	}
	if rec.Status == types.SyncCompleted {
		// Queue replay of an already finished sync
		return
	}

	if err := s.syncs.MarkProcessing(ctx, id); err != nil {
		logger.WithError(err).Error("Failed to mark sync processing")
		return
	}

	start := s.now()
	if err := s.ingest.FetchAndStore(ctx, rec); err != nil {
		logger.WithError(err).Error("Transaction ingestion failed")
		s.fail(ctx, id, err)
		return
	}
	if err := s.rebuild.Rebuild(ctx, rec.UserID, rec.WalletAddress, rec.Chain); err != nil {
		logger.WithError(err).Error("Snapshot rebuild failed")
		s.fail(ctx, id, err)
		return
	}

	if err := s.syncs.Complete(ctx, id); err != nil {
		logger.WithError(err).Error("Failed to mark sync completed")
		return
	}
	if err := s.cache.Invalidate(ctx, rec.UserID, rec.WalletAddress, rec.Chain); err != nil {
		logger.WithError(err).Warn("Failed to invalidate snapshot cache")
	}

	logger.WithField("duration", s.now().Sub(start).String()).Info("Sync completed")
}

func (s *SyncService) fail(ctx context.Context, id string, cause error) {
	if err := s.syncs.Fail(ctx, id, cause.Error()); err != nil {
		logging.FromContext(ctx).WithError(err).Error("Failed to mark sync failed")
	}
}

// GetStatus returns the sync record for a wallet, or nil when the wallet has
// never been synced
func (s *SyncService) GetStatus(ctx context.Context, userID, walletAddress string, chain types.ChainID) (*models.SyncRecord, error) {
	return s.syncs.GetByKey(ctx, userID, walletAddress, chain)
}

// GetSnapshots returns the daily snapshots for a wallet within [from, to],
// reading through the short-lived query cache
func (s *SyncService) GetSnapshots(ctx context.Context, userID, walletAddress string, chain types.ChainID, from, to time.Time) ([]*models.DailySnapshot, error) {
	logger := logging.FromContext(ctx)

	cached, err := s.cache.Get(ctx, userID, walletAddress, chain, from, to)
	if err != nil {
		logger.WithError(err).Warn("Snapshot cache read failed, falling through to store")
	} else if cached != nil {
		return cached, nil
	}

	snaps, err := s.snapshots.ListRange(ctx, userID, walletAddress, chain, from, to)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, userID, walletAddress, chain, from, to, snaps); err != nil {
		logger.WithError(err).Warn("Snapshot cache write failed")
	}

	return snaps, nil
}
