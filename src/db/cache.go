package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	itemsql "expense-ledger/src/db/sql"

	"github.com/dgraph-io/ristretto"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Cache is the proxy's shared state: item_id -> access_token and
// access_token -> last transactions payload. Last write wins on both.
// When a pool is given, item tokens are also written to plaid_items so they
// survive a restart.
type Cache struct {
	mu     sync.RWMutex
	tokens map[string]string

	transactions *ristretto.Cache
	pool         *pgxpool.Pool
	logger       zerolog.Logger
}

func NewCache(pool *pgxpool.Pool, logger zerolog.Logger) (*Cache, error) {
	transactions, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,   // number of keys to track frequency of
		MaxCost:     1 << 26, // 64MB of response bodies
		BufferItems: 64,      // number of keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return &Cache{
		tokens:       make(map[string]string),
		transactions: transactions,
		pool:         pool,
		logger:       logger,
	}, nil
}

// Warm loads stored item tokens from Postgres. It is a no-op without a pool.
func (c *Cache) Warm(ctx context.Context) error {
	if c.pool == nil {
		return nil
	}
	if err := itemsql.EnsurePlaidItemsTable(ctx, c.pool); err != nil {
		return fmt.Errorf("failed to create plaid_items: %w", err)
	}
	items, err := itemsql.GetPlaidItemsSQL(ctx, c.pool)
	if err != nil {
		return fmt.Errorf("failed to load plaid_items: %w", err)
	}

	c.mu.Lock()
	for _, item := range items {
		c.tokens[item.ItemID] = item.AccessToken
	}
	c.mu.Unlock()

	c.logger.Info().Int("items", len(items)).Msg("loaded stored plaid items")
	return nil
}

// SetAccessToken records the token in memory first; a failed Postgres write
// is returned but does not undo it.
func (c *Cache) SetAccessToken(ctx context.Context, itemID, accessToken string) error {
	if itemID == "" || accessToken == "" {
		return nil
	}

	c.mu.Lock()
	c.tokens[itemID] = accessToken
	c.mu.Unlock()

	if c.pool == nil {
		return nil
	}
	if err := itemsql.SavePlaidItem(ctx, c.pool, itemID, accessToken); err != nil {
		return fmt.Errorf("failed to save plaid item %s: %w", itemID, err)
	}
	return nil
}

func (c *Cache) AccessToken(ctx context.Context, itemID string) (string, bool) {
	c.mu.RLock()
	token, ok := c.tokens[itemID]
	c.mu.RUnlock()
	if ok || c.pool == nil {
		return token, ok
	}

	token, err := itemsql.GetAccessTokenForItem(ctx, c.pool, itemID)
	if err != nil {
		if !errors.Is(err, itemsql.ErrItemNotFound) {
			c.logger.Warn().Err(err).Str("item_id", itemID).Msg("plaid_items lookup failed")
		}
		return "", false
	}

	c.mu.Lock()
	c.tokens[itemID] = token
	c.mu.Unlock()
	return token, true
}

// SetTransactions caches a transactions payload and waits until it is
// visible to Transactions.
func (c *Cache) SetTransactions(accessToken string, body json.RawMessage) {
	if accessToken == "" || len(body) == 0 {
		return
	}
	if !c.transactions.Set(accessToken, body, int64(len(body))) {
		c.logger.Warn().Int("bytes", len(body)).Msg("transactions cache dropped a write")
	}
	c.transactions.Wait()
}

func (c *Cache) Transactions(accessToken string) (json.RawMessage, bool) {
	v, ok := c.transactions.Get(accessToken)
	if !ok {
		return nil, false
	}
	body, ok := v.(json.RawMessage)
	return body, ok
}

func (c *Cache) Close() {
	c.transactions.Close()
}
