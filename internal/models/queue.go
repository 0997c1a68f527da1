package models

import "time"

type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

func (o Operation) IsValid() bool {
	return o == OperationCreate || o == OperationUpdate || o == OperationDelete
}

type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusDone       QueueStatus = "done"
	QueueStatusFailed     QueueStatus = "failed"
)

// QueueItem is one durable intent to mutate a task. Items are appended by the
// mutation path and consumed exclusively by the sync processor, oldest first.
// Once done or failed the item is never touched again. Snapshot holds the
// encoded TaskSnapshot; it is decoded at processing time so a malformed
// payload fails that item, not the whole batch.
type QueueItem struct {
	ID          string      `json:"id"`
	Operation   Operation   `json:"operation"`
	TaskID      string      `json:"task_id"`
	Snapshot    string      `json:"task_snapshot"`
	RetryCount  int         `json:"retry_count"`
	Status      QueueStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at,omitempty"`
}

// SyncLogEntry records one completed processing run.
type SyncLogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
}
