package db

import (
	"context"
	"errors"

	"expense-ledger/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrItemNotFound = errors.New("plaid item not found")

func EnsurePlaidItemsTable(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS plaid_items (
			item_id      TEXT PRIMARY KEY,
			access_token TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// SavePlaidItem stores the item's access token. A later exchange for the same
// item replaces the token.
func SavePlaidItem(ctx context.Context, pool *pgxpool.Pool, itemID string, accessToken string) error {
	query := `
		INSERT INTO plaid_items (item_id, access_token)
		VALUES ($1, $2)
		ON CONFLICT (item_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			updated_at = NOW()
	`

	_, err := pool.Exec(ctx, query, itemID, accessToken)
	return err
}

func GetAccessTokenForItem(ctx context.Context, pool *pgxpool.Pool, itemID string) (string, error) {
	query := `SELECT access_token FROM plaid_items WHERE item_id = $1`
	var accessToken string
	err := pool.QueryRow(ctx, query, itemID).Scan(&accessToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", err
	}
	return accessToken, nil
}

func GetPlaidItemsSQL(ctx context.Context, pool *pgxpool.Pool) ([]models.PlaidItem, error) {
	query := `SELECT item_id, access_token, created_at FROM plaid_items ORDER BY created_at`

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PlaidItem
	for rows.Next() {
		var item models.PlaidItem
		err := rows.Scan(&item.ItemID, &item.AccessToken, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}
