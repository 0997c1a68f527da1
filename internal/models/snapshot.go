package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotSchemaVersion is bumped whenever the snapshot wire shape changes.
const SnapshotSchemaVersion = 1

// TaskSnapshot is a point-in-time copy of a task's fields, captured when an
// operation is queued. Timestamps are kept as strings so that malformed values
// surface at processing time, where the fallback-to-now policy applies.
type TaskSnapshot struct {
	Version     int    `json:"v"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	IsDeleted   bool   `json:"is_deleted"`
	ServerID    string `json:"server_id,omitempty"`
}

// SnapshotOf captures the current state of a task.
func SnapshotOf(t *Task) TaskSnapshot {
	return TaskSnapshot{
		Version:     SnapshotSchemaVersion,
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		IsDeleted:   t.IsDeleted,
		ServerID:    t.ServerID,
	}
}

// Encode serializes the snapshot for storage.
func (s TaskSnapshot) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// DecodeSnapshot parses a stored snapshot and rejects unknown schema versions
// so malformed payloads fail at the boundary, not mid-resolution.
func DecodeSnapshot(raw string) (TaskSnapshot, error) {
	var s TaskSnapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return TaskSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != SnapshotSchemaVersion {
		return TaskSnapshot{}, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	return s, nil
}
