package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/shared"
)

// Repository encapsulates DB operations for journal entries.
type Repository interface {
	List(ctx context.Context, limit int) ([]JournalEntry, error)
	GetWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction.
type TxRepository interface {
	Post(ctx context.Context, in PostingInput) (JournalEntry, error)
	GetWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsContention(err) {
		return shared.ErrContention
	}
	return err
}

func (r *repository) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entry_date, reference, source_module, source_id, memo, COALESCE(posted_by, 0), posted_at, status, created_at
FROM journal_entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Date, &e.Reference, &e.SourceModule, &e.SourceID, &e.Memo, &e.PostedBy, &e.PostedAt, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	return getWithLines(ctx, r.pool, entryID)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	return PostTx(ctx, r.tx, in)
}

func (r *txRepository) GetWithLines(ctx context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	return getWithLines(ctx, r.tx, entryID)
}

// PostTx validates and persists one journal entry with its lines on an
// open transaction. It is the single write path into the ledger: both
// this package's service and the purchasing workflows that must post
// inside their own transaction go through it, so the balance invariant
// is enforced at creation time no matter the caller.
func PostTx(ctx context.Context, tx pgx.Tx, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	entry.Date = in.Date
	entry.Reference = in.Reference
	entry.SourceModule = in.SourceModule
	entry.SourceID = in.SourceID
	entry.Memo = in.Memo
	entry.PostedBy = in.PostedBy
	entry.Status = JournalStatusPosted
	err := tx.QueryRow(ctx, `INSERT INTO journal_entries (entry_date, reference, source_module, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,$6,'POSTED') RETURNING id, posted_at, created_at`,
		in.Date, in.Reference, in.SourceModule, in.SourceID, in.Memo, nullInt(in.PostedBy)).
		Scan(&entry.ID, &entry.PostedAt, &entry.CreatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	for _, line := range in.Lines {
		var inserted JournalLine
		inserted.EntryID = entry.ID
		inserted.AccountID = line.AccountID
		inserted.Debit = round2(line.Debit)
		inserted.Credit = round2(line.Credit)
		err := tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4) RETURNING id, created_at`, entry.ID, line.AccountID, round2(line.Debit), round2(line.Credit)).
			Scan(&inserted.ID, &inserted.CreatedAt)
		if err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, inserted)
	}
	if err := linkSource(ctx, tx, in.SourceModule, in.SourceID, entry.ID); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// linkSource records the 1:1 link between a source document and its
// journal entry; the unique constraint makes double-posting a hard
// conflict instead of a duplicate entry.
func linkSource(ctx context.Context, tx pgx.Tx, module string, ref uuid.UUID, entryID int64) error {
	_, err := tx.Exec(ctx, `INSERT INTO source_links (module, ref_id, entry_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getWithLines(ctx context.Context, q querier, entryID int64) (JournalEntry, []JournalLine, error) {
	var entry JournalEntry
	err := q.QueryRow(ctx, `SELECT id, entry_date, reference, source_module, source_id, memo, COALESCE(posted_by, 0), posted_at, status, created_at
FROM journal_entries WHERE id=$1`, entryID).
		Scan(&entry.ID, &entry.Date, &entry.Reference, &entry.SourceModule, &entry.SourceID, &entry.Memo, &entry.PostedBy, &entry.PostedAt, &entry.Status, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, ErrJournalNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, created_at
FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

// Helpers

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
