package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"expense-ledger/src/db"
	"expense-ledger/src/gateway"
	"expense-ledger/src/handlers"
	"expense-ledger/src/ingest"
	"expense-ledger/src/ledger"
	"expense-ledger/src/models"
	"expense-ledger/src/plaid"
	"expense-ledger/src/retry"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "demo-key"

var fixedNow = time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

func newFakeServer(t *testing.T) (*httptest.Server, *handlers.Deps) {
	t.Helper()
	return newServer(t, plaid.NewFake(func() time.Time { return fixedNow }))
}

func newServer(t *testing.T, up plaid.Upstream) (*httptest.Server, *handlers.Deps) {
	t.Helper()
	cache, err := db.NewCache(nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	d := &handlers.Deps{
		Upstream: up,
		Cache:    cache,
		Sandbox:  true,
		Fake:     true,
		Policy:   retry.Policy{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }},
		Now:      func() time.Time { return fixedNow },
	}
	srv := httptest.NewServer(NewRouter(d, RouterConfig{DemoAPIKey: testKey}, zerolog.Nop()))
	t.Cleanup(srv.Close)
	t.Cleanup(d.Wait)
	return srv, d
}

func do(t *testing.T, method, url, key, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("x-demo-key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestRouter_PublicRoutes(t *testing.T) {
	srv, _ := newFakeServer(t)

	status, body := do(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body)

	status, body = do(t, http.MethodGet, srv.URL+"/", "", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "x-demo-key")

	for _, path := range []string{"/webhook", "/plaid_webhook"} {
		status, body = do(t, http.MethodPost, srv.URL+path, "", `{"webhook_type":"TRANSACTIONS","webhook_code":"DEFAULT_UPDATE","item_id":"x"}`)
		assert.Equal(t, http.StatusOK, status, path)
		assert.JSONEq(t, `{"ok":true}`, body, path)
	}
}

// countingUpstream records every provider call it forwards.
type countingUpstream struct {
	plaid.Upstream
	calls atomic.Int32
}

func (c *countingUpstream) CreateLinkToken(ctx context.Context, id string) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.Upstream.CreateLinkToken(ctx, id)
}

func (c *countingUpstream) CreateSandboxPublicToken(ctx context.Context, inst string, products []string) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.Upstream.CreateSandboxPublicToken(ctx, inst, products)
}

func (c *countingUpstream) ExchangePublicToken(ctx context.Context, token string) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.Upstream.ExchangePublicToken(ctx, token)
}

func (c *countingUpstream) TransactionsSync(ctx context.Context, token, cursor string) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.Upstream.TransactionsSync(ctx, token, cursor)
}

func (c *countingUpstream) TransactionsGet(ctx context.Context, token, start, end string) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.Upstream.TransactionsGet(ctx, token, start, end)
}

func (c *countingUpstream) FireWebhook(ctx context.Context, token, code string) (json.RawMessage, error) {
	c.calls.Add(1)
	return c.Upstream.FireWebhook(ctx, token, code)
}

func TestRouter_DemoKeyGuardsProxyRoutes(t *testing.T) {
	up := &countingUpstream{Upstream: plaid.NewFake(func() time.Time { return fixedNow })}
	srv, _ := newServer(t, up)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/create_link_token"},
		{http.MethodPost, "/create_sandbox_public_token"},
		{http.MethodPost, "/exchange_public_token"},
		{http.MethodPost, "/transactions_for_access_token"},
		{http.MethodPost, "/transactions_sync_for_access_token"},
		{http.MethodPost, "/sandbox/fire_webhook"},
	}
	for _, rt := range routes {
		for _, key := range []string{"", "wrong"} {
			status, body := do(t, rt.method, srv.URL+rt.path, key, `{"public_token":"p","access_token":"a"}`)
			assert.Equal(t, http.StatusUnauthorized, status, rt.path)
			assert.JSONEq(t, `{"error":"unauthorized - missing or invalid demo key"}`, body, rt.path)
		}
	}
	assert.Zero(t, up.calls.Load(), "upstream reached without a valid demo key")

	// The same wrapper does count calls that pass the guard.
	status, _ := do(t, http.MethodPost, srv.URL+"/transactions_sync_for_access_token", testKey, `{"access_token":"a"}`)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestRouter_FakeFlow(t *testing.T) {
	srv, _ := newFakeServer(t)

	status, body := do(t, http.MethodPost, srv.URL+"/create_sandbox_public_token", testKey, "")
	require.Equal(t, http.StatusOK, status)
	var minted struct {
		PublicToken string `json:"public_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &minted))
	assert.True(t, strings.HasPrefix(minted.PublicToken, "public-fake-"))

	status, body = do(t, http.MethodPost, srv.URL+"/exchange_public_token", testKey, `{"public_token":"`+minted.PublicToken+`"}`)
	require.Equal(t, http.StatusOK, status)
	var exchanged struct {
		AccessToken string `json:"access_token"`
		Present     bool   `json:"cached_transactions_present"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &exchanged))
	assert.True(t, exchanged.Present)

	status, body = do(t, http.MethodPost, srv.URL+"/transactions_for_access_token", testKey, `{"access_token":"`+exchanged.AccessToken+`"}`)
	require.Equal(t, http.StatusOK, status)
	var resp models.TransactionsResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, 3, resp.TotalTransactions)
}

// The CLI's gateway and orchestrator against the proxy running on synthetic data.
func TestRouter_EndToEndSimulate(t *testing.T) {
	srv, _ := newFakeServer(t)

	gw := gateway.New(srv.URL, testKey)
	store := ledger.NewMemoryStore()
	policy := retry.DefaultPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	res := ingest.New(gw, store, ingest.WithPolicy(policy)).Simulate(context.Background())
	require.Equal(t, ingest.Done, res.State, res.Reason)
	assert.Equal(t, 3, res.Inserted)

	rows, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Demo Coffee", rows[0].Title)
	assert.Equal(t, "29/01/2025", rows[0].Date)
	assert.Equal(t, models.Expense, rows[0].Type)
	assert.Equal(t, "Demo Salary", rows[2].Title)
	assert.Equal(t, 1500.0, rows[2].Amount)
	assert.Equal(t, models.Income, rows[2].Type)
}
