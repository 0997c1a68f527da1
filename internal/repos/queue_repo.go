package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"task-sync/internal/models"
)

func (r *SyncRepo) InsertQueueItemTx(ctx context.Context, tx *sql.Tx, item *models.QueueItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (id, operation, task_id, task_snapshot, retry_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, string(item.Operation), item.TaskID, item.Snapshot,
		item.RetryCount, string(item.Status), item.CreatedAt.UTC())
	return err
}

// ListPendingItems returns up to limit pending items, oldest first. Enqueue
// order is the fairness rule and keeps same-task items applied in FIFO order.
func (r *SyncRepo) ListPendingItems(ctx context.Context, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, operation, task_id, task_snapshot, retry_count, status, created_at, processed_at
		FROM sync_queue
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.QueueItem, 0, limit)
	for rows.Next() {
		var (
			it          models.QueueItem
			op, status  string
			processedAt sql.NullTime
		)
		if err := rows.Scan(&it.ID, &op, &it.TaskID, &it.Snapshot, &it.RetryCount,
			&status, &it.CreatedAt, &processedAt); err != nil {
			return nil, err
		}
		it.Operation = models.Operation(op)
		it.Status = models.QueueStatus(status)
		if processedAt.Valid {
			ts := processedAt.Time
			it.ProcessedAt = &ts
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimItem moves an item from pending to processing. The conditional update
// gives at-most-one-claimant semantics when batches run concurrently: only one
// caller observes the pending row.
func (r *SyncRepo) ClaimItem(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'processing'
		WHERE id = ? AND status = 'pending'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkItemDone finishes a claimed item. Done is terminal.
func (r *SyncRepo) MarkItemDone(ctx context.Context, id string, processedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'done', processed_at = ?
		WHERE id = ? AND status = 'processing'
	`, processedAt.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.New("queue item not in processing state")
	}
	return nil
}

// ReleaseItem returns a claimed item to pending (retry) or parks it as failed
// (terminal), recording the bumped retry count.
func (r *SyncRepo) ReleaseItem(ctx context.Context, id string, retryCount int, status models.QueueStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = ?, retry_count = ?
		WHERE id = ? AND status = 'processing'
	`, string(status), retryCount, id)
	return err
}

func (r *SyncRepo) CountPendingItems(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status = 'pending'`).Scan(&n)
	return n, err
}

func (r *SyncRepo) CountQueueItems(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}

func (r *SyncRepo) InsertSyncLog(ctx context.Context, entry *models.SyncLogEntry) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_log (timestamp, processed, failed)
		VALUES (?, ?, ?)
	`, entry.Timestamp.UTC(), entry.Processed, entry.Failed)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		entry.ID = id
	}
	return nil
}

func (r *SyncRepo) LatestSyncLog(ctx context.Context) (*models.SyncLogEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, timestamp, processed, failed
		FROM sync_log
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`)
	var e models.SyncLogEntry
	if err := row.Scan(&e.ID, &e.Timestamp, &e.Processed, &e.Failed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
