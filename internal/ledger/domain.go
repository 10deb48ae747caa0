package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JournalStatus enumerates journal lifecycle values. Entries are
// append-only: corrections are posted as compensating entries, never
// edits.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
)

// JournalEntry captures posting metadata for one business event.
type JournalEntry struct {
	ID           int64
	Date         time.Time
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	PostedAt     time.Time
	Status       JournalStatus
	CreatedAt    time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount against an account.
// Exactly one of Debit/Credit is non-zero.
type JournalLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     float64
	Credit    float64
	CreatedAt time.Time
}

var (
	// ErrEmptyEntry indicates a posting with no lines.
	ErrEmptyEntry = errors.New("ledger: journal entry requires lines")
	// ErrUnbalancedEntry indicates total debit != total credit.
	ErrUnbalancedEntry = errors.New("ledger: journal lines must balance")
	// ErrJournalNotFound indicates a missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrSourceAlreadyLinked indicates the source document was already posted.
	ErrSourceAlreadyLinked = errors.New("ledger: source already linked")
	// ErrMissingConfiguration indicates a required account mapping is
	// absent. This is an administrative precondition failure, never to
	// be defaulted silently.
	ErrMissingConfiguration = errors.New("ledger: account mapping missing")
)
