package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// LedgerIntegrityJob verifies the posted ledger: every journal entry
// must balance to the cent and every line must belong to an entry. The
// posting path already guarantees both, so any hit here means the
// database was touched outside the application.
type LedgerIntegrityJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// NewLedgerIntegrityJob initialises the integrity scan handler.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Pool: pool, Logger: logger}
}

type unbalancedEntry struct {
	EntryID int64
	Debit   float64
	Credit  float64
}

// Handle executes both scans concurrently.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	start := time.Now()
	logger.Info("starting ledger integrity scan")

	var (
		unbalanced []unbalancedEntry
		orphans    int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		unbalanced, err = j.scanUnbalanced(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		orphans, err = j.countOrphanLines(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}

	for _, e := range unbalanced {
		logger.Error("unbalanced journal entry",
			slog.Int64("entry_id", e.EntryID),
			slog.Float64("debit", e.Debit),
			slog.Float64("credit", e.Credit),
		)
	}
	if orphans > 0 {
		logger.Error("orphan journal lines detected", slog.Int64("count", orphans))
	}

	logger.Info("completed ledger integrity scan",
		slog.Int("unbalanced", len(unbalanced)),
		slog.Int64("orphans", orphans),
		slog.Duration("duration", time.Since(start)),
	)
	if len(unbalanced) > 0 || orphans > 0 {
		return fmt.Errorf("ledger integrity: %d unbalanced entries, %d orphan lines", len(unbalanced), orphans)
	}
	return nil
}

func (j *LedgerIntegrityJob) scanUnbalanced(ctx context.Context) ([]unbalancedEntry, error) {
	rows, err := j.Pool.Query(ctx, `SELECT entry_id, SUM(debit)::double precision, SUM(credit)::double precision
FROM journal_lines
GROUP BY entry_id
HAVING ROUND(SUM(debit)::numeric, 2) <> ROUND(SUM(credit)::numeric, 2)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []unbalancedEntry
	for rows.Next() {
		var e unbalancedEntry
		if err := rows.Scan(&e.EntryID, &e.Debit, &e.Credit); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *LedgerIntegrityJob) countOrphanLines(ctx context.Context) (int64, error) {
	var count int64
	err := j.Pool.QueryRow(ctx, `SELECT COUNT(*)
FROM journal_lines l
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE e.id IS NULL`).Scan(&count)
	return count, err
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}
