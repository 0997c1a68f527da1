package repos

import (
	"context"
	"database/sql"
	"errors"

	"task-sync/internal/models"
)

var ErrNotFound = errors.New("not found")

type SyncRepo struct {
	db *sql.DB
}

func NewSyncRepo(db *sql.DB) *SyncRepo {
	return &SyncRepo{db: db}
}

func (r *SyncRepo) DB() *sql.DB {
	return r.db
}

func (r *SyncRepo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SyncRepo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (*models.Task, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, title, description, completed, created_at, updated_at,
		       is_deleted, sync_status, server_id, last_synced_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

func (r *SyncRepo) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, completed, created_at, updated_at,
		       is_deleted, sync_status, server_id, last_synced_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

func (r *SyncRepo) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, completed, created_at, updated_at,
		       is_deleted, sync_status, server_id, last_synced_at
		FROM tasks
		WHERE is_deleted = 0
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *SyncRepo) UpsertTaskTx(ctx context.Context, tx *sql.Tx, t *models.Task) error {
	var lastSynced any
	if t.LastSyncedAt != nil {
		lastSynced = t.LastSyncedAt.UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, completed, created_at, updated_at,
		                   is_deleted, sync_status, server_id, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			completed = excluded.completed,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted,
			sync_status = excluded.sync_status,
			server_id = excluded.server_id,
			last_synced_at = excluded.last_synced_at
	`, t.ID, t.Title, t.Description, t.Completed, t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
		t.IsDeleted, string(t.SyncStatus), nullIfEmpty(t.ServerID), lastSynced)
	return err
}

func scanTask(row interface{ Scan(dest ...any) error }) (*models.Task, error) {
	var (
		t          models.Task
		status     string
		serverID   sql.NullString
		lastSynced sql.NullTime
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.CreatedAt,
		&t.UpdatedAt, &t.IsDeleted, &status, &serverID, &lastSynced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.SyncStatus = models.SyncStatus(status)
	if serverID.Valid {
		t.ServerID = serverID.String
	}
	if lastSynced.Valid {
		ts := lastSynced.Time
		t.LastSyncedAt = &ts
	}
	return &t, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
