package models

import (
	"testing"
	"time"
)

func TestDecodeSnapshotRejectsMalformed(t *testing.T) {
	if _, err := DecodeSnapshot("{not json"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := DecodeSnapshot(`{"v":99,"id":"x"}`); err == nil {
		t.Fatal("expected error for unknown schema version")
	}
}

func TestSnapshotCapturesTask(t *testing.T) {
	now := time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)
	task := &Task{
		ID:        "t1",
		Title:     "snapshot me",
		Completed: true,
		CreatedAt: now,
		UpdatedAt: now,
		ServerID:  "srv_abc123def456",
	}
	raw, err := SnapshotOf(task).Encode()
	if err != nil {
		t.Fatal(err)
	}
	snap, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Title != task.Title || !snap.Completed || snap.ServerID != task.ServerID {
		t.Fatalf("snapshot lost fields: %+v", snap)
	}
	if snap.Version != SnapshotSchemaVersion {
		t.Fatalf("expected version %d, got %d", SnapshotSchemaVersion, snap.Version)
	}
}
