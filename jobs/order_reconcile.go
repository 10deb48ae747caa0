package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// qtyEpsilon mirrors the receiving path's base-quantity tolerance.
const qtyEpsilon = 1e-9

// OrderReconcileJob recomputes order fulfillment from the receipts on
// record and repairs any drifted status. Receiving derives the status
// inside its own transaction, so drift only appears after manual data
// surgery.
type OrderReconcileJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewOrderReconcileJob initialises the fulfillment sweep handler.
func NewOrderReconcileJob(pool *pgxpool.Pool, logger *slog.Logger) *OrderReconcileJob {
	return &OrderReconcileJob{Pool: pool, Logger: logger}
}

type orderProgress struct {
	status   string
	received bool
	full     bool
}

// Handle executes the sweep.
func (j *OrderReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("order reconcile: handler not configured")
	}
	var payload OrderReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	start := time.Now()
	logger.Info("starting order fulfillment sweep")

	rows, err := j.Pool.Query(ctx, `SELECT ol.order_id, o.status, ol.qty * ol.factor AS ordered_base,
	COALESCE(SUM(rl.qty * rl.factor), 0) AS received_base
FROM purchase_order_lines ol
JOIN purchase_orders o ON o.id = ol.order_id
LEFT JOIN receipts r ON r.order_id = ol.order_id
LEFT JOIN receipt_lines rl ON rl.receipt_id = r.id AND rl.item_id = ol.item_id
WHERE o.status IN ('SENT', 'CONFIRMED', 'PARTIALLY_RECEIVED', 'FULLY_RECEIVED')
GROUP BY ol.order_id, o.status, ol.item_id, ol.qty, ol.factor`)
	if err != nil {
		return err
	}
	defer rows.Close()

	progress := map[int64]*orderProgress{}
	for rows.Next() {
		var (
			orderID      int64
			status       string
			orderedBase  float64
			receivedBase float64
		)
		if err := rows.Scan(&orderID, &status, &orderedBase, &receivedBase); err != nil {
			return err
		}
		p, ok := progress[orderID]
		if !ok {
			p = &orderProgress{status: status, full: true}
			progress[orderID] = p
		}
		if receivedBase > qtyEpsilon {
			p.received = true
		}
		if receivedBase < orderedBase-qtyEpsilon {
			p.full = false
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	repaired := 0
	for orderID, p := range progress {
		// Orders with no receipts keep their manual state.
		if !p.received {
			continue
		}
		expected := "PARTIALLY_RECEIVED"
		if p.full {
			expected = "FULLY_RECEIVED"
		}
		if p.status == expected {
			continue
		}
		if _, err := j.Pool.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=NOW() WHERE id=$2`, expected, orderID); err != nil {
			return err
		}
		logger.Warn("repaired order fulfillment status",
			slog.Int64("order_id", orderID),
			slog.String("from", p.status),
			slog.String("to", expected),
		)
		repaired++
	}

	logger.Info("completed order fulfillment sweep",
		slog.Int("orders", len(progress)),
		slog.Int("repaired", repaired),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *OrderReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOrderReconcile))
	}
	return slog.Default().With(slog.String("job", TaskOrderReconcile))
}
