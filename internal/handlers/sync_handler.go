package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"task-sync/internal/config"
	"task-sync/internal/models"
	"task-sync/internal/services"
)

type SyncHandler struct {
	tasks *services.TaskService
	sync  *services.SyncService
	cfg   config.Config
}

func NewSyncHandler(tasks *services.TaskService, sync *services.SyncService, cfg config.Config) *SyncHandler {
	return &SyncHandler{tasks: tasks, sync: sync, cfg: cfg}
}

// TriggerSync runs one processing batch. The configured batch size and retry
// ceiling can be overridden per call.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var body struct {
		BatchSize int `json:"batch_size"`
		MaxRetry  int `json:"max_retry"`
	}
	_ = c.ShouldBindJSON(&body)
	batchSize := body.BatchSize
	if batchSize <= 0 {
		batchSize = h.cfg.BatchSize
	}

	summary, err := h.sync.ProcessBatch(c.Request.Context(), services.BatchOptions{
		BatchSize: batchSize,
		MaxRetry:  body.MaxRetry,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"synced_items": summary.Processed,
		"failed_items": summary.Failed,
		"errors":       summary.Errors,
	})
}

func (h *SyncHandler) SyncStatus(c *gin.Context) {
	report, err := h.sync.GetSyncStatus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *SyncHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"is_online": true,
		"timestamp": time.Now().UTC().Truncate(time.Second).Format(time.RFC3339),
	})
}

type batchItem struct {
	TaskID    string          `json:"task_id"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// ProcessBatchRequest applies a multi-item batch of client-labeled operations
// server-side and acknowledges each with its assigned server id. One item's
// failure never fails the batch; it is reported per item.
func (h *SyncHandler) ProcessBatchRequest(c *gin.Context) {
	var body struct {
		Items []batchItem `json:"items"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	ctx := c.Request.Context()
	processed := make([]gin.H, 0, len(body.Items))
	for _, it := range body.Items {
		switch it.Operation {
		case "create":
			var in services.CreateTaskInput
			if len(it.Data) > 0 {
				if err := json.Unmarshal(it.Data, &in); err != nil {
					processed = append(processed, batchItemError(it.TaskID, err))
					continue
				}
			}
			in.ID = it.TaskID
			task, err := h.tasks.Create(ctx, in)
			if err != nil {
				processed = append(processed, batchItemError(it.TaskID, err))
				continue
			}
			task, err = h.sync.AssignServerIdentity(ctx, task.ID)
			if err != nil {
				processed = append(processed, batchItemError(it.TaskID, err))
				continue
			}
			processed = append(processed, gin.H{
				"client_id":     it.TaskID,
				"server_id":     task.ServerID,
				"status":        "success",
				"resolved_data": resolvedData(task),
			})

		case "update":
			var in services.UpdateTaskInput
			if len(it.Data) > 0 {
				if err := json.Unmarshal(it.Data, &in); err != nil {
					processed = append(processed, batchItemError(it.TaskID, err))
					continue
				}
			}
			task, err := h.tasks.Update(ctx, it.TaskID, in)
			if err != nil {
				processed = append(processed, batchItemError(it.TaskID, err))
				continue
			}
			task, err = h.sync.AssignServerIdentity(ctx, task.ID)
			if err != nil {
				processed = append(processed, batchItemError(it.TaskID, err))
				continue
			}
			processed = append(processed, gin.H{
				"client_id":     it.TaskID,
				"server_id":     task.ServerID,
				"status":        "success",
				"resolved_data": resolvedData(task),
			})

		case "delete":
			if err := h.tasks.SoftDelete(ctx, it.TaskID); err != nil {
				processed = append(processed, batchItemError(it.TaskID, err))
				continue
			}
			processed = append(processed, gin.H{
				"client_id": it.TaskID,
				"status":    "success",
			})

		default:
			processed = append(processed, gin.H{
				"client_id": it.TaskID,
				"status":    "error",
				"error":     "unknown operation",
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"processed_items": processed})
}

func batchItemError(clientID string, err error) gin.H {
	return gin.H{
		"client_id": clientID,
		"status":    "error",
		"error":     err.Error(),
	}
}

// resolvedData mirrors the task body but keyed by server identity, which is
// how batch callers address records after acknowledgement.
func resolvedData(t *models.Task) gin.H {
	out := gin.H{
		"id":          t.ServerID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
		"is_deleted":  t.IsDeleted,
		"sync_status": t.SyncStatus,
		"server_id":   t.ServerID,
	}
	if t.LastSyncedAt != nil {
		out["last_synced_at"] = t.LastSyncedAt
	}
	return out
}
