package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, itemID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsContention(err) {
		return shared.ErrContention
	}
	return err
}

// GetBalance reads the current balance without locking.
func (r *Repository) GetBalance(ctx context.Context, itemID int64) (Balance, error) {
	var bal Balance
	err := r.pool.QueryRow(ctx, `SELECT item_id, qty, avg_cost, updated_at FROM item_balances WHERE item_id=$1`, itemID).
		Scan(&bal.ItemID, &bal.Qty, &bal.AvgCost, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ItemID: itemID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// GetStockCard lists movements newest first.
func (r *Repository) GetStockCard(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, movement_type, ref_module, COALESCE(ref_id,''), qty_in, qty_out, balance_qty, unit_cost, balance_cost, note, posted_at, COALESCE(created_by, 0)
FROM stock_movements
WHERE item_id=$1
  AND ($2::timestamptz IS NULL OR posted_at >= $2)
  AND ($3::timestamptz IS NULL OR posted_at <= $3)
ORDER BY posted_at DESC, id DESC LIMIT $4`,
		filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemID, &m.Type, &m.RefModule, &m.RefID, &m.QtyIn, &m.QtyOut, &m.BalanceQty, &m.UnitCost, &m.BalanceCost, &m.Note, &m.PostedAt, &m.CreatedBy); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, itemID int64) (Balance, error) {
	return GetBalanceForUpdateTx(ctx, r.tx, itemID)
}

func (r *txRepo) UpsertBalance(ctx context.Context, balance Balance) error {
	return UpsertBalanceTx(ctx, r.tx, balance)
}

func (r *txRepo) InsertMovement(ctx context.Context, movement Movement) (int64, error) {
	return InsertMovementTx(ctx, r.tx, movement)
}

// GetBalanceForUpdateTx locks one balance row on an open transaction.
// Exported because the purchasing workflow locks item balances inside
// its own receiving transaction.
func GetBalanceForUpdateTx(ctx context.Context, tx pgx.Tx, itemID int64) (Balance, error) {
	var bal Balance
	err := tx.QueryRow(ctx, `SELECT item_id, qty, avg_cost, updated_at FROM item_balances WHERE item_id=$1 FOR UPDATE`, itemID).
		Scan(&bal.ItemID, &bal.Qty, &bal.AvgCost, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{ItemID: itemID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

// GetBalancesForUpdateTx locks balances for a set of items in
// ascending item id order, the fixed lock order that keeps concurrent
// receipts deadlock-free.
func GetBalancesForUpdateTx(ctx context.Context, tx pgx.Tx, itemIDs []int64) (map[int64]Balance, error) {
	balances := make(map[int64]Balance, len(itemIDs))
	rows, err := tx.Query(ctx, `SELECT item_id, qty, avg_cost, updated_at FROM item_balances
WHERE item_id = ANY($1) ORDER BY item_id ASC FOR UPDATE`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var bal Balance
		if err := rows.Scan(&bal.ItemID, &bal.Qty, &bal.AvgCost, &bal.UpdatedAt); err != nil {
			return nil, err
		}
		balances[bal.ItemID] = bal
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range itemIDs {
		if _, ok := balances[id]; !ok {
			balances[id] = Balance{ItemID: id}
		}
	}
	return balances, nil
}

// UpsertBalanceTx writes qty and avg cost together on an open transaction.
func UpsertBalanceTx(ctx context.Context, tx pgx.Tx, balance Balance) error {
	_, err := tx.Exec(ctx, `INSERT INTO item_balances (item_id, qty, avg_cost, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (item_id) DO UPDATE SET qty = EXCLUDED.qty, avg_cost = EXCLUDED.avg_cost, updated_at = NOW()`,
		balance.ItemID, balance.Qty, balance.AvgCost)
	return err
}

// InsertMovementTx appends one stock card row on an open transaction.
func InsertMovementTx(ctx context.Context, tx pgx.Tx, m Movement) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO stock_movements (item_id, movement_type, ref_module, ref_id, qty_in, qty_out, balance_qty, unit_cost, balance_cost, note, posted_at, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		m.ItemID, m.Type, m.RefModule, nullString(m.RefID), m.QtyIn, m.QtyOut, m.BalanceQty, m.UnitCost, m.BalanceCost, m.Note, m.PostedAt, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
