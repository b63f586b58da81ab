package models

import "fmt"

type EntryType string

const (
	Income  EntryType = "Income"
	Expense EntryType = "Expense"
)

// LedgerEntry is a row of the local ledger. Amount is a magnitude; the
// direction of money is carried only by Type.
type LedgerEntry struct {
	ID     *int64    `json:"id"`
	Title  string    `json:"title"`
	Amount float64   `json:"amount"`
	Date   string    `json:"date"`
	Type   EntryType `json:"type"`
}

func (e LedgerEntry) String() string {
	id := "nil"
	if e.ID != nil {
		id = fmt.Sprint(*e.ID)
	}
	return fmt.Sprintf("LedgerEntry(id=%s, title=%s, amount=%.2f, date=%s, type=%s)", id, e.Title, e.Amount, e.Date, e.Type)
}
