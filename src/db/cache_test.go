package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryCache(t *testing.T) *Cache {
	t.Helper()
	c, err := NewCache(nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCache_AccessTokens(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	_, ok := c.AccessToken(ctx, "item-1")
	assert.False(t, ok)

	require.NoError(t, c.SetAccessToken(ctx, "item-1", "access-1"))
	require.NoError(t, c.SetAccessToken(ctx, "item-1", "access-2"))

	token, ok := c.AccessToken(ctx, "item-1")
	assert.True(t, ok)
	assert.Equal(t, "access-2", token, "last write wins")

	require.NoError(t, c.SetAccessToken(ctx, "", "access-3"))
	_, ok = c.AccessToken(ctx, "")
	assert.False(t, ok)
}

func TestCache_Transactions(t *testing.T) {
	c := newMemoryCache(t)

	_, ok := c.Transactions("access-1")
	assert.False(t, ok)

	c.SetTransactions("access-1", json.RawMessage(`{"transactions":[],"total_transactions":0}`))
	body, ok := c.Transactions("access-1")
	require.True(t, ok)
	assert.JSONEq(t, `{"transactions":[],"total_transactions":0}`, string(body))

	c.SetTransactions("access-1", nil)
	body, ok = c.Transactions("access-1")
	require.True(t, ok, "empty writes are ignored")
	assert.NotEmpty(t, body)
}

func TestCache_ConcurrentWriters(t *testing.T) {
	c := newMemoryCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := fmt.Sprintf("item-%d", i%4)
			_ = c.SetAccessToken(ctx, item, fmt.Sprintf("access-%d", i))
			_, _ = c.AccessToken(ctx, item)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		_, ok := c.AccessToken(ctx, fmt.Sprintf("item-%d", i))
		assert.True(t, ok)
	}
}

func TestCache_PostgresWriteThrough(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()

	first, err := NewCache(pool, zerolog.Nop())
	require.NoError(t, err)
	defer first.Close()
	require.NoError(t, first.Warm(ctx))
	require.NoError(t, first.SetAccessToken(ctx, "item-pg-test", "access-pg-test"))

	second, err := NewCache(pool, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()

	token, ok := second.AccessToken(ctx, "item-pg-test")
	assert.True(t, ok)
	assert.Equal(t, "access-pg-test", token)

	_, err = pool.Exec(ctx, `DELETE FROM plaid_items WHERE item_id = $1`, "item-pg-test")
	require.NoError(t, err)
}
