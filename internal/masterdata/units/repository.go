package units

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mdshared "github.com/ledgerline/ledgerline/internal/masterdata/shared"
	"github.com/ledgerline/ledgerline/internal/shared"
)

type Repository interface {
	List(ctx context.Context, filters mdshared.ListFilters) ([]Unit, int, error)
	Get(ctx context.Context, id int64) (Unit, error)
	Create(ctx context.Context, unit Unit) (Unit, error)
	Update(ctx context.Context, id int64, unit Unit) error
	GetFactor(ctx context.Context, itemID, unitID int64) (float64, error)
	SetFactor(ctx context.Context, link ItemUnit) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters mdshared.ListFilters) ([]Unit, int, error) {
	filters = filters.Normalize()
	query := `SELECT id, code, name FROM units WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM units WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		clause := ` AND (name ILIKE $1 OR code ILIKE $1)`
		query += clause
		countQuery += clause
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	argCount := len(args)
	query += ` ORDER BY code ASC LIMIT $` + strconv.Itoa(argCount+1) + ` OFFSET $` + strconv.Itoa(argCount+2)
	args = append(args, filters.Limit, filters.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Code, &u.Name); err != nil {
			return nil, 0, err
		}
		units = append(units, u)
	}
	return units, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Unit, error) {
	var u Unit
	err := r.pool.QueryRow(ctx, `SELECT id, code, name FROM units WHERE id=$1`, id).Scan(&u.ID, &u.Code, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Unit{}, fmt.Errorf("%w: unit %d", shared.ErrNotFound, id)
		}
		return Unit{}, err
	}
	return u, nil
}

func (r *repository) Create(ctx context.Context, unit Unit) (Unit, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO units (code, name) VALUES ($1,$2) RETURNING id`, unit.Code, unit.Name).Scan(&unit.ID)
	return unit, err
}

func (r *repository) Update(ctx context.Context, id int64, unit Unit) error {
	tag, err := r.pool.Exec(ctx, `UPDATE units SET code=$1, name=$2 WHERE id=$3`, unit.Code, unit.Name, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: unit %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *repository) GetFactor(ctx context.Context, itemID, unitID int64) (float64, error) {
	var factor float64
	err := r.pool.QueryRow(ctx, `SELECT factor FROM item_units WHERE item_id=$1 AND unit_id=$2`, itemID, unitID).Scan(&factor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return factor, nil
}

func (r *repository) SetFactor(ctx context.Context, link ItemUnit) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO item_units (item_id, unit_id, factor) VALUES ($1,$2,$3)
ON CONFLICT (item_id, unit_id) DO UPDATE SET factor = EXCLUDED.factor`,
		link.ItemID, link.UnitID, link.Factor)
	return err
}
