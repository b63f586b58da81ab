package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"expense-ledger/src/models"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `CREATE TABLE IF NOT EXISTS expense_table (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	amount REAL NOT NULL CHECK (amount >= 0),
	date TEXT NOT NULL,
	type TEXT NOT NULL CHECK (type IN ('Income', 'Expense'))
)`

// SQLiteStore is the on-device ledger backed by a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the ledger database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	if err := validate(entry); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expense_table (title, amount, date, type) VALUES (?, ?, ?, ?)`,
		entry.Title, entry.Amount, entry.Date, string(entry.Type))
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}
	entry.ID = &id
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expense_table`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) ListAll(ctx context.Context) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, amount, date, type FROM expense_table ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e   models.LedgerEntry
			id  int64
			typ string
		)
		if err := rows.Scan(&id, &e.Title, &e.Amount, &e.Date, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.ID = &id
		e.Type = models.EntryType(typ)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, entry models.LedgerEntry) error {
	if entry.ID == nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM expense_table WHERE id = ?`, *entry.ID)
	if err != nil {
		return fmt.Errorf("failed to delete ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
