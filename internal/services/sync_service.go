package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"task-sync/internal/logging"
	"task-sync/internal/models"
	"task-sync/internal/repos"
)

const serverIDPrefix = "srv_"

// itemTimeout bounds each queue item's transaction so a stuck storage call
// cannot stall the rest of the batch. A timeout takes the generic failure
// path: retry bump, eventually terminal failed.
const itemTimeout = 5 * time.Second

// BatchError is one structured entry in a batch summary. Conflict notes and
// processing failures share this shape, as the transport reports them in one
// list.
type BatchError struct {
	TaskID    string `json:"task_id"`
	Operation string `json:"operation"`
	Message   string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// BatchSummary reports one processing run. A run always completes: per-item
// failures are recorded here, never raised.
type BatchSummary struct {
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Errors    []BatchError `json:"errors"`
}

// StatusReport is the aggregate sync status. LastSyncTimestamp is nil until a
// first run has been recorded; absence of history is not an error.
type StatusReport struct {
	PendingSyncCount  int     `json:"pending_sync_count"`
	LastSyncTimestamp *string `json:"last_sync_timestamp"`
	IsOnline          bool    `json:"is_online"`
	SyncQueueSize     int     `json:"sync_queue_size"`
}

// SyncService drains the operation queue against the task store. It is the
// sole owner of server_id, last_synced_at and conflict-driven overwrites.
// Conflicts resolve last-write-wins on the snapshot's updated_at: a create
// only beats the server copy when strictly newer, while update and delete
// also win ties. The asymmetry is intentional: an update tie carries explicit
// intent, while a duplicate create must not re-clobber an already-synced
// record on a tie.
type SyncService struct {
	repo     *repos.SyncRepo
	log      *logging.Logger
	maxRetry int
}

func NewSyncService(repo *repos.SyncRepo, log *logging.Logger, maxRetry int) *SyncService {
	if maxRetry <= 0 {
		maxRetry = 3
	}
	return &SyncService{repo: repo, log: log, maxRetry: maxRetry}
}

// BatchOptions overrides the configured processing limits for one run. Zero
// values keep the defaults the service was constructed with.
type BatchOptions struct {
	BatchSize int
	MaxRetry  int
}

// ProcessBatch claims up to BatchSize pending queue items, oldest first, and
// applies each in order. Every run appends a ledger entry with its counts.
func (s *SyncService) ProcessBatch(ctx context.Context, opts BatchOptions) (*BatchSummary, error) {
	maxRetry := opts.MaxRetry
	if maxRetry <= 0 {
		maxRetry = s.maxRetry
	}
	items, err := s.repo.ListPendingItems(ctx, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending items: %w", err)
	}

	summary := &BatchSummary{Errors: []BatchError{}}
	for i := range items {
		item := &items[i]

		claimed, err := s.repo.ClaimItem(ctx, item.ID)
		if err != nil {
			// The item stays pending and will be retried by a later batch.
			s.log.Errorf("claim queue item %s: %v", item.ID, err)
			summary.Failed++
			summary.Errors = append(summary.Errors, BatchError{
				TaskID:    item.TaskID,
				Operation: string(item.Operation),
				Message:   err.Error(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			continue
		}
		if !claimed {
			// Another processor won the claim; not our item anymore.
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, itemTimeout)
		note, applyErr := s.applyItem(itemCtx, item)
		cancel()

		if applyErr == nil {
			if err := s.repo.MarkItemDone(ctx, item.ID, time.Now().UTC()); err != nil {
				applyErr = err
			}
		}
		if applyErr != nil {
			s.log.Errorf("queue item %s (%s %s) failed: %v", item.ID, item.Operation, item.TaskID, applyErr)
			s.recordFailure(ctx, item, applyErr, maxRetry, summary)
			continue
		}

		summary.Processed++
		if note != nil {
			summary.Errors = append(summary.Errors, *note)
		}
	}

	entry := &models.SyncLogEntry{
		Timestamp: time.Now().UTC(),
		Processed: summary.Processed,
		Failed:    summary.Failed,
	}
	if err := s.repo.InsertSyncLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("record sync run: %w", err)
	}
	return summary, nil
}

// applyItem resolves one claimed item inside a single transaction. A non-nil
// note reports a conflict the server side won; the item still completes.
func (s *SyncService) applyItem(ctx context.Context, item *models.QueueItem) (*BatchError, error) {
	snap, err := models.DecodeSnapshot(item.Snapshot)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	snapUpdated := s.snapshotTime(snap.UpdatedAt, now)
	snapCreated := s.snapshotTime(snap.CreatedAt, now)

	var note *BatchError
	err = s.repo.WithTx(ctx, func(tx *sql.Tx) error {
		server, err := s.repo.GetTaskTx(ctx, tx, item.TaskID)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return err
		}

		switch item.Operation {
		case models.OperationCreate:
			if server == nil {
				return s.insertFromSnapshotTx(ctx, tx, item.TaskID, snap, snapCreated, snapUpdated)
			}
			if snapUpdated.After(server.UpdatedAt) {
				return s.overwriteFromSnapshotTx(ctx, tx, server, snap, snapUpdated)
			}
			note = s.conflictNote(item)
			return nil

		case models.OperationUpdate:
			if server == nil {
				return s.insertFromSnapshotTx(ctx, tx, item.TaskID, snap, snapCreated, snapUpdated)
			}
			if !snapUpdated.Before(server.UpdatedAt) {
				return s.overwriteFromSnapshotTx(ctx, tx, server, snap, snapUpdated)
			}
			note = s.conflictNote(item)
			return nil

		case models.OperationDelete:
			if server == nil {
				return nil
			}
			if !snapUpdated.Before(server.UpdatedAt) {
				server.IsDeleted = true
				server.UpdatedAt = snapUpdated
				return s.assignServerIdentityTx(ctx, tx, server)
			}
			note = s.conflictNote(item)
			return nil

		default:
			return fmt.Errorf("unknown operation %q", item.Operation)
		}
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}

func (s *SyncService) insertFromSnapshotTx(ctx context.Context, tx *sql.Tx, taskID string, snap models.TaskSnapshot, createdAt, updatedAt time.Time) error {
	task := &models.Task{
		ID:          taskID,
		Title:       snap.Title,
		Description: snap.Description,
		Completed:   snap.Completed,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		IsDeleted:   snap.IsDeleted,
	}
	return s.assignServerIdentityTx(ctx, tx, task)
}

func (s *SyncService) overwriteFromSnapshotTx(ctx context.Context, tx *sql.Tx, server *models.Task, snap models.TaskSnapshot, updatedAt time.Time) error {
	server.Title = snap.Title
	server.Description = snap.Description
	server.Completed = snap.Completed
	server.IsDeleted = snap.IsDeleted
	server.UpdatedAt = updatedAt
	return s.assignServerIdentityTx(ctx, tx, server)
}

// assignServerIdentityTx fills server_id if absent, refreshes last_synced_at
// and marks the task synced. Idempotent: an existing server_id is never
// replaced.
func (s *SyncService) assignServerIdentityTx(ctx context.Context, tx *sql.Tx, task *models.Task) error {
	if task.ServerID == "" {
		task.ServerID = newServerID()
	}
	now := time.Now().UTC()
	task.LastSyncedAt = &now
	task.SyncStatus = models.SyncStatusSynced
	return s.repo.UpsertTaskTx(ctx, tx, task)
}

// AssignServerIdentity is the out-of-band variant used by the batch endpoint,
// where the server applies client operations directly and acknowledges them
// with a server id in the same call.
func (s *SyncService) AssignServerIdentity(ctx context.Context, taskID string) (*models.Task, error) {
	var out *models.Task
	err := s.repo.WithTx(ctx, func(tx *sql.Tx) error {
		task, err := s.repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := s.assignServerIdentityTx(ctx, tx, task); err != nil {
			return err
		}
		out = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SyncService) GetSyncStatus(ctx context.Context) (*StatusReport, error) {
	pending, err := s.repo.CountPendingItems(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountQueueItems(ctx)
	if err != nil {
		return nil, err
	}
	report := &StatusReport{
		PendingSyncCount: pending,
		IsOnline:         true,
		SyncQueueSize:    total,
	}
	last, err := s.repo.LatestSyncLog(ctx)
	if err != nil {
		if !errors.Is(err, repos.ErrNotFound) {
			return nil, err
		}
		return report, nil
	}
	ts := last.Timestamp.UTC().Format(time.RFC3339)
	report.LastSyncTimestamp = &ts
	return report, nil
}

func (s *SyncService) recordFailure(ctx context.Context, item *models.QueueItem, cause error, maxRetry int, summary *BatchSummary) {
	retry := item.RetryCount + 1
	status := models.QueueStatusPending
	if retry >= maxRetry {
		status = models.QueueStatusFailed
	}
	if err := s.repo.ReleaseItem(ctx, item.ID, retry, status); err != nil {
		s.log.Errorf("release queue item %s: %v", item.ID, err)
	}
	summary.Failed++
	summary.Errors = append(summary.Errors, BatchError{
		TaskID:    item.TaskID,
		Operation: string(item.Operation),
		Message:   cause.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *SyncService) conflictNote(item *models.QueueItem) *BatchError {
	return &BatchError{
		TaskID:    item.TaskID,
		Operation: string(item.Operation),
		Message:   "Conflict resolved using last-write-wins",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// snapshotTime parses a snapshot timestamp, substituting now for missing or
// malformed values. Logged as a data-quality warning, not a failure.
func (s *SyncService) snapshotTime(raw string, now time.Time) time.Time {
	if raw == "" {
		return now
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		s.log.Warnf("malformed snapshot timestamp %q, substituting current time", raw)
		return now
	}
	return ts.UTC()
}

func newServerID() string {
	id := uuid.New()
	return fmt.Sprintf("%s%x", serverIDPrefix, id[0:6])
}
