package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"task-sync/internal/logging"
	"task-sync/internal/models"
	"task-sync/internal/repos"
	_ "modernc.org/sqlite"
)

func setupTestRepo(t *testing.T) *repos.SyncRepo {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			server_id TEXT,
			last_synced_at DATETIME
		);`,
		`CREATE TABLE sync_queue (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_snapshot TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME NOT NULL,
			processed_at DATETIME
		);`,
		`CREATE TABLE sync_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	return repos.NewSyncRepo(db)
}

func setupTaskService(t *testing.T) (*TaskService, *repos.SyncRepo) {
	t.Helper()
	repo := setupTestRepo(t)
	return NewTaskService(repo, logging.New("error")), repo
}

func TestCreateTaskEnqueuesOnce(t *testing.T) {
	svc, repo := setupTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, CreateTaskInput{Title: "Hello"})
	if err != nil {
		t.Fatal(err)
	}
	if task.ID == "" {
		t.Fatal("expected generated id")
	}
	if task.SyncStatus != models.SyncStatusPending {
		t.Fatalf("expected pending, got %s", task.SyncStatus)
	}

	pending, err := repo.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 queue item, got %d", len(pending))
	}
	if pending[0].Operation != models.OperationCreate {
		t.Fatalf("expected create operation, got %s", pending[0].Operation)
	}

	// Resubmitting the same create must upsert without a second queue entry.
	again, err := svc.Create(ctx, CreateTaskInput{ID: task.ID, Title: "Hello again"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Title != "Hello again" {
		t.Fatalf("expected upserted title, got %q", again.Title)
	}
	pending, err = repo.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected still 1 queue item, got %d", len(pending))
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _ := setupTaskService(t)
	ctx := context.Background()

	var validation *ValidationError
	if _, err := svc.Create(ctx, CreateTaskInput{Title: "   "}); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateTaskInput{ID: "not-a-uuid", Title: "x"}); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for bad id, got %v", err)
	}
}

func TestUpdateTaskMergesFields(t *testing.T) {
	svc, repo := setupTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, CreateTaskInput{Title: "original", Description: "desc"})
	if err != nil {
		t.Fatal(err)
	}

	completed := true
	updated, err := svc.Update(ctx, task.ID, UpdateTaskInput{
		Completed: &completed,
		UpdatedAt: "2030-01-02T10:05:00Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "original" || updated.Description != "desc" {
		t.Fatal("expected untouched fields to keep current values")
	}
	if !updated.Completed {
		t.Fatal("expected completed=true")
	}
	want := time.Date(2030, 1, 2, 10, 5, 0, 0, time.UTC)
	if !updated.UpdatedAt.Equal(want) {
		t.Fatalf("expected client updated_at %v, got %v", want, updated.UpdatedAt)
	}

	pending, err := repo.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected create+update queue items, got %d", len(pending))
	}
	if pending[1].Operation != models.OperationUpdate {
		t.Fatalf("expected update operation, got %s", pending[1].Operation)
	}
}

func TestUpdateMalformedTimestampFallsBack(t *testing.T) {
	svc, _ := setupTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, CreateTaskInput{Title: "t"})
	if err != nil {
		t.Fatal(err)
	}

	before := time.Now().UTC().Add(-time.Second)
	updated, err := svc.Update(ctx, task.ID, UpdateTaskInput{UpdatedAt: "yesterday-ish"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.UpdatedAt.Before(before) {
		t.Fatalf("expected fallback to current time, got %v", updated.UpdatedAt)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	svc, _ := setupTaskService(t)

	_, err := svc.Update(context.Background(), "c4a6e79c-99b0-4f9a-9f3b-6a3d9a0f8b11", UpdateTaskInput{})
	if !errors.Is(err, repos.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	svc, repo := setupTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, CreateTaskInput{Title: "doomed"})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.SoftDelete(ctx, task.ID); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDeleted {
		t.Fatal("expected is_deleted=true")
	}
	if got.SyncStatus != models.SyncStatusPending {
		t.Fatalf("expected pending after delete, got %s", got.SyncStatus)
	}

	pending, err := repo.ListPendingItems(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected create+delete queue items, got %d", len(pending))
	}
}

func TestSoftDeleteNotFoundLeavesQueueAlone(t *testing.T) {
	svc, repo := setupTaskService(t)
	ctx := context.Background()

	err := svc.SoftDelete(ctx, "c4a6e79c-99b0-4f9a-9f3b-6a3d9a0f8b11")
	if !errors.Is(err, repos.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	n, err := repo.CountQueueItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected empty queue, got %d items", n)
	}
}
