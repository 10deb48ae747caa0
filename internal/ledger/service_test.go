package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	entries map[int64]JournalEntry
	lines   map[int64][]JournalLine
	sources map[string]bool
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries: map[int64]JournalEntry{},
		lines:   map[int64][]JournalLine{},
		sources: map[string]bool{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memoryRepo) List(_ context.Context, limit int) ([]JournalEntry, error) {
	out := make([]JournalEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) GetWithLines(_ context.Context, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return JournalEntry{}, nil, fmt.Errorf("%w: entry %d", ErrJournalNotFound, entryID)
	}
	return entry, append([]JournalLine(nil), r.lines[entryID]...), nil
}

func (r *memoryRepo) Post(_ context.Context, in PostingInput) (JournalEntry, error) {
	source := in.SourceModule + ":" + in.SourceID.String()
	if r.sources[source] {
		return JournalEntry{}, fmt.Errorf("%w: %s", ErrSourceAlreadyLinked, source)
	}
	r.sources[source] = true
	r.nextID++
	entry := JournalEntry{
		ID:           r.nextID,
		Date:         in.Date,
		Reference:    in.Reference,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		PostedBy:     in.PostedBy,
		Status:       JournalStatusPosted,
	}
	for _, line := range in.Lines {
		r.lines[entry.ID] = append(r.lines[entry.ID], JournalLine{
			EntryID:   entry.ID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	r.entries[entry.ID] = entry
	return entry, nil
}

func balancedInput() PostingInput {
	return PostingInput{
		Date:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Reference:    "REC-000001",
		SourceModule: "PROCUREMENT.RECEIPT",
		SourceID:     uuid.NewSHA1(uuid.Nil, []byte("RECEIPT:REC-000001")),
		Memo:         "goods received",
		PostedBy:     7,
		Lines: []PostingLineInput{
			{AccountID: 100, Debit: 110},
			{AccountID: 200, Credit: 110},
		},
	}
}

func TestPostingInputValidate(t *testing.T) {
	require.NoError(t, balancedInput().Validate())

	empty := balancedInput()
	empty.Lines = nil
	require.ErrorIs(t, empty.Validate(), ErrEmptyEntry)

	unbalanced := balancedInput()
	unbalanced.Lines[1].Credit = 109.99
	require.ErrorIs(t, unbalanced.Validate(), ErrUnbalancedEntry)

	bothSides := balancedInput()
	bothSides.Lines[0].Credit = 110
	require.Error(t, bothSides.Validate())

	noAmount := balancedInput()
	noAmount.Lines[0].Debit = 0
	require.Error(t, noAmount.Validate())

	negative := balancedInput()
	negative.Lines[0].Debit = -110
	require.Error(t, negative.Validate())

	noSource := balancedInput()
	noSource.SourceID = uuid.Nil
	require.Error(t, noSource.Validate())
}

// Cent sums are compared exactly, so lines like 0.10+0.20 vs 0.30 are
// balanced even where float addition would drift.
func TestPostingInputValidateExactCents(t *testing.T) {
	in := balancedInput()
	in.Lines = []PostingLineInput{
		{AccountID: 100, Debit: 0.10},
		{AccountID: 100, Debit: 0.20},
		{AccountID: 200, Credit: 0.30},
	}
	require.NoError(t, in.Validate())
}

func TestPostPersistsEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	entry, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.ID)
	require.Equal(t, JournalStatusPosted, entry.Status)

	got, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	require.InDelta(t, 110.0, got.Lines[0].Debit, 1e-9)
}

func TestPostRejectsInvalidWithoutWriting(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	in := balancedInput()
	in.Lines[0].Debit = 120
	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrUnbalancedEntry)
	require.Empty(t, repo.entries)
}

func TestPostRejectsDuplicateSource(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), balancedInput())
	require.ErrorIs(t, err, ErrSourceAlreadyLinked)
}

func TestReverseSwapsSides(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) })

	entry, err := svc.Post(context.Background(), balancedInput())
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.NoError(t, err)
	require.NotEqual(t, entry.ID, reversal.ID)

	got, err := svc.Get(context.Background(), reversal.ID)
	require.NoError(t, err)
	require.Equal(t, "PROCUREMENT.RECEIPT:REVERSAL", got.SourceModule)
	require.Equal(t, "Reversal of REC-000001", got.Memo)
	require.InDelta(t, 110.0, got.Lines[0].Credit, 1e-9)
	require.InDelta(t, 110.0, got.Lines[1].Debit, 1e-9)

	// The original entry is untouched.
	original, err := svc.Get(context.Background(), entry.ID)
	require.NoError(t, err)
	require.InDelta(t, 110.0, original.Lines[0].Debit, 1e-9)
}

func TestReverseMissingEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.Reverse(context.Background(), ReverseInput{EntryID: 42})
	require.ErrorIs(t, err, ErrJournalNotFound)
}

func TestPostingAccountPreconditions(t *testing.T) {
	full := PostingAccounts{Inventory: 1, GoodsInTransit: 2, TaxCredit: 3, Payables: 4}
	require.NoError(t, full.ForReceiving())
	require.NoError(t, full.ForInvoicing())
	require.NoError(t, full.ForPayment())

	partial := PostingAccounts{Inventory: 1}
	require.ErrorIs(t, partial.ForReceiving(), ErrMissingConfiguration)
	require.ErrorIs(t, partial.ForInvoicing(), ErrMissingConfiguration)
	require.ErrorIs(t, partial.ForPayment(), ErrMissingConfiguration)
}
