package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sequences hands out human-readable document numbers (OC-000123,
// REC-000045, ...). Each prefix is a row in doc_sequences incremented
// atomically, so numbers are unique under concurrent creation. Numbers
// are reserved outside the document transaction: a rollback leaves a
// gap, which is acceptable for display labels.
type Sequences struct {
	pool *pgxpool.Pool
}

// NewSequences constructs the sequence allocator.
func NewSequences(pool *pgxpool.Pool) *Sequences {
	return &Sequences{pool: pool}
}

// Next reserves and formats the next number for prefix.
func (s *Sequences) Next(ctx context.Context, prefix string) (string, error) {
	if s == nil {
		return "", errors.New("sequences not initialised")
	}
	if prefix == "" {
		return "", errors.New("sequence prefix required")
	}
	var value int64
	err := s.pool.QueryRow(ctx, `INSERT INTO doc_sequences (prefix, value) VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET value = doc_sequences.value + 1
RETURNING value`, prefix).Scan(&value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%06d", prefix, value), nil
}
