package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// AuditPort records ledger actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts posted journal entries.
type MetricsPort interface {
	JournalPosted()
}

// Service owns the posting contract: balanced, append-only journal
// entries, persisted atomically with their lines.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// WithMetrics attaches the posting counter.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns the most recent entries.
func (s *Service) List(ctx context.Context, limit int) ([]JournalEntry, error) {
	return s.repo.List(ctx, limit)
}

// Get returns one entry with its lines.
func (s *Service) Get(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, lines, err := s.repo.GetWithLines(ctx, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// Post validates and persists one journal entry atomically. On any
// validation failure nothing is written.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.Post(ctx, input)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalPosted()
	}
	s.recordAudit(ctx, input.PostedBy, "journal.post", entry.ID, map[string]any{
		"reference":     entry.Reference,
		"source_module": entry.SourceModule,
		"source_id":     entry.SourceID.String(),
	})
	return entry, nil
}

// Reverse posts a compensating entry with debits and credits swapped.
// The original entry is never touched: reversal is the only correction
// path for a posted journal.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, lines, err := tx.GetWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		date := input.Date
		if date.IsZero() {
			date = s.now()
		}
		posting := PostingInput{
			Date:         date,
			Reference:    original.Reference,
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceID:     uuid.NewSHA1(original.SourceID, []byte(fmt.Sprintf("REVERSAL:%d", original.ID))),
			Memo:         defaultReversalMemo(input.Memo, original.Reference),
			PostedBy:     input.ActorID,
			Lines:        reverseLines(lines),
		}
		inserted, err := tx.Post(ctx, posting)
		if err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalPosted()
	}
	s.recordAudit(ctx, input.ActorID, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id": reversal.ID,
		"reason":      input.Memo,
	})
	return reversal, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func defaultReversalMemo(memo, reference string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", reference)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
