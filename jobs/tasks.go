package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans the posted ledger for unbalanced or
	// orphaned journal rows.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskOrderReconcile recomputes order fulfillment from receipts.
	TaskOrderReconcile = "orders:reconcile"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerIntegrityPayload carries scheduling metadata for the scan.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// OrderReconcilePayload carries scheduling metadata for the sweep.
type OrderReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewOrderReconcileTask constructs an Asynq task for the fulfillment sweep.
func NewOrderReconcileTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OrderReconcilePayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderReconcile, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload bounds the retention window.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
