// Package ledger is the local store of LedgerEntry rows the ingestion
// pipeline writes into.
package ledger

import (
	"context"
	"errors"

	"expense-ledger/src/models"
)

var (
	ErrNotFound     = errors.New("ledger entry not found")
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

// Store is the Local Ledger Store. Insert assigns entry.ID on success.
type Store interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	Count(ctx context.Context) (int, error)
	ListAll(ctx context.Context) ([]models.LedgerEntry, error)
	Delete(ctx context.Context, entry models.LedgerEntry) error
}

func validate(entry *models.LedgerEntry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.Amount < 0 {
		return errors.Join(ErrInvalidEntry, errors.New("amount must not be negative"))
	}
	if entry.Type != models.Income && entry.Type != models.Expense {
		return errors.Join(ErrInvalidEntry, errors.New("type must be Income or Expense"))
	}
	return nil
}
