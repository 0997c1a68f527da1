package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"task-sync/internal/logging"
	"task-sync/internal/models"
	"task-sync/internal/repos"
)

// ValidationError reports malformed mutation input. It is surfaced to the
// caller and never enqueued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type CreateTaskInput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	IsDeleted   bool   `json:"is_deleted"`
}

type UpdateTaskInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
	IsDeleted   *bool   `json:"is_deleted"`
	UpdatedAt   string  `json:"updated_at"`
}

// TaskService is the mutation entry point: it owns user-driven task writes.
// Every mutation updates the task and appends its queue entry in one
// transaction, so a reader never sees one without the other.
type TaskService struct {
	repo *repos.SyncRepo
	log  *logging.Logger
}

func NewTaskService(repo *repos.SyncRepo, log *logging.Logger) *TaskService {
	return &TaskService{repo: repo, log: log}
}

func (s *TaskService) Create(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &ValidationError{Field: "title", Message: "is required"}
	}

	id := strings.TrimSpace(in.ID)
	if id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, &ValidationError{Field: "id", Message: "must be a valid uuid"}
		}
		id = parsed.String()
	} else {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	createdAt := s.timestampOrNow(in.CreatedAt, now)
	updatedAt := s.timestampOrNow(in.UpdatedAt, now)

	var out *models.Task
	err := s.repo.WithTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.repo.GetTaskTx(ctx, tx, id)
		if err != nil && !errors.Is(err, repos.ErrNotFound) {
			return err
		}
		if existing != nil {
			// Repeated create for a known id is an idempotent upsert: the
			// earlier queue entry already represents the change path, so no
			// second entry is appended.
			existing.Title = title
			existing.Description = in.Description
			existing.Completed = in.Completed
			existing.IsDeleted = in.IsDeleted
			existing.UpdatedAt = updatedAt
			existing.SyncStatus = models.SyncStatusPending
			if err := s.repo.UpsertTaskTx(ctx, tx, existing); err != nil {
				return err
			}
			out = existing
			return nil
		}

		task := &models.Task{
			ID:          id,
			Title:       title,
			Description: in.Description,
			Completed:   in.Completed,
			CreatedAt:   createdAt,
			UpdatedAt:   updatedAt,
			IsDeleted:   in.IsDeleted,
			SyncStatus:  models.SyncStatusPending,
		}
		if err := s.repo.UpsertTaskTx(ctx, tx, task); err != nil {
			return err
		}
		if err := s.enqueueTx(ctx, tx, models.OperationCreate, task); err != nil {
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

func (s *TaskService) Update(ctx context.Context, taskID string, in UpdateTaskInput) (*models.Task, error) {
	var out *models.Task
	err := s.repo.WithTx(ctx, func(tx *sql.Tx) error {
		task, err := s.repo.GetTaskTx(ctx, tx, strings.TrimSpace(taskID))
		if err != nil {
			return err
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return &ValidationError{Field: "title", Message: "must not be empty"}
			}
			task.Title = title
		}
		if in.Description != nil {
			task.Description = *in.Description
		}
		if in.Completed != nil {
			task.Completed = *in.Completed
		}
		if in.IsDeleted != nil {
			task.IsDeleted = *in.IsDeleted
		}
		task.UpdatedAt = s.timestampOrNow(in.UpdatedAt, time.Now().UTC())
		task.SyncStatus = models.SyncStatusPending
		if err := s.repo.UpsertTaskTx(ctx, tx, task); err != nil {
			return err
		}
		if err := s.enqueueTx(ctx, tx, models.OperationUpdate, task); err != nil {
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

func (s *TaskService) SoftDelete(ctx context.Context, taskID string) error {
	return s.repo.WithTx(ctx, func(tx *sql.Tx) error {
		task, err := s.repo.GetTaskTx(ctx, tx, strings.TrimSpace(taskID))
		if err != nil {
			return err
		}
		task.IsDeleted = true
		task.SyncStatus = models.SyncStatusPending
		task.UpdatedAt = time.Now().UTC()
		if err := s.repo.UpsertTaskTx(ctx, tx, task); err != nil {
			return err
		}
		return s.enqueueTx(ctx, tx, models.OperationDelete, task)
	})
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*models.Task, error) {
	return s.repo.GetTask(ctx, strings.TrimSpace(taskID))
}

func (s *TaskService) List(ctx context.Context) ([]models.Task, error) {
	return s.repo.ListTasks(ctx)
}

func (s *TaskService) enqueueTx(ctx context.Context, tx *sql.Tx, op models.Operation, task *models.Task) error {
	raw, err := models.SnapshotOf(task).Encode()
	if err != nil {
		return err
	}
	item := &models.QueueItem{
		ID:        uuid.New().String(),
		Operation: op,
		TaskID:    task.ID,
		Snapshot:  raw,
		Status:    models.QueueStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	return s.repo.InsertQueueItemTx(ctx, tx, item)
}

// timestampOrNow parses a client-supplied timestamp, falling back to now on
// missing or malformed input. The fallback is policy, not an error: it is
// logged as a data-quality warning and the call proceeds.
func (s *TaskService) timestampOrNow(raw string, now time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now
	}
	ts, err := parseTimestamp(raw)
	if err != nil {
		s.log.Warnf("malformed client timestamp %q, substituting current time", raw)
		return now
	}
	return ts.UTC()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
