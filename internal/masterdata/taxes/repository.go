package taxes

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/shared"
)

type Repository interface {
	List(ctx context.Context) ([]Tax, error)
	Get(ctx context.Context, id int64) (Tax, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]Tax, error)
	Create(ctx context.Context, tax Tax) (Tax, error)
	Update(ctx context.Context, id int64, tax Tax) error
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context) ([]Tax, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, rate FROM taxes ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taxes []Tax
	for rows.Next() {
		var t Tax
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Rate); err != nil {
			return nil, err
		}
		taxes = append(taxes, t)
	}
	return taxes, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Tax, error) {
	var t Tax
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, rate FROM taxes WHERE id=$1`, id).Scan(&t.ID, &t.Code, &t.Name, &t.Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tax{}, fmt.Errorf("%w: tax %d", shared.ErrNotFound, id)
		}
		return Tax{}, err
	}
	return t, nil
}

func (r *repository) GetMany(ctx context.Context, ids []int64) (map[int64]Tax, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, rate FROM taxes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	taxes := make(map[int64]Tax, len(ids))
	for rows.Next() {
		var t Tax
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Rate); err != nil {
			return nil, err
		}
		taxes[t.ID] = t
	}
	return taxes, rows.Err()
}

func (r *repository) Create(ctx context.Context, tax Tax) (Tax, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO taxes (code, name, rate) VALUES ($1,$2,$3) RETURNING id`,
		tax.Code, tax.Name, tax.Rate).Scan(&tax.ID)
	return tax, err
}

func (r *repository) Update(ctx context.Context, id int64, tax Tax) error {
	tag, err := r.pool.Exec(ctx, `UPDATE taxes SET code=$1, name=$2, rate=$3 WHERE id=$4`,
		tax.Code, tax.Name, tax.Rate, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tax %d", shared.ErrNotFound, id)
	}
	return nil
}
