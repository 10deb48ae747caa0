package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingLineInput describes a journal line for a posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     float64
	Credit    float64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	Reference    string
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

// Validate enforces the posting contract: non-empty, every line has
// exactly one non-zero side, and total debit equals total credit to
// the cent. The balance check sums decimals rather than floats so
// equality is exact, not within tolerance.
func (in PostingInput) Validate() error {
	if len(in.Lines) == 0 {
		return ErrEmptyEntry
	}
	if in.Date.IsZero() {
		return errors.New("ledger: entry date required")
	}
	if in.SourceModule == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		debit = debit.Add(decimal.NewFromFloat(line.Debit).Round(2))
		credit = credit.Add(decimal.NewFromFloat(line.Credit).Round(2))
	}
	if !debit.Equal(credit) {
		return ErrUnbalancedEntry
	}
	return nil
}

// ReverseInput wraps parameters for posting a compensating entry.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Memo    string
	Date    time.Time
}
