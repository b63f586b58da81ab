// Package gateway talks to the Plaid proxy on behalf of the ledger client.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"expense-ledger/src/models"

	"github.com/rs/zerolog"
)

const (
	DemoKeyHeader = "x-demo-key"

	TokenTimeout       = 10 * time.Second
	TransactionTimeout = 20 * time.Second

	notReadyCode = "PRODUCT_NOT_READY"
)

var linkTokenPattern = regexp.MustCompile(`"link_token"\s*:\s*"([^"]+)"`)

// Client issues the proxy calls. Each method performs a single request; retry
// policy lives in FetchWithRetry.
type Client struct {
	baseURL    string
	demoKey    string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func New(baseURL, demoKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		demoKey:    demoKey,
		httpClient: &http.Client{},
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Exchange is the proxy's answer to a public token exchange.
type Exchange struct {
	AccessToken string
	ItemID      string
	// Cached is set when the proxy already fetched transactions for the Item.
	Cached       []models.RemoteTransaction
	CachedLoaded bool
}

// DateRange bounds a transactions fetch; dates are YYYY-MM-DD.
type DateRange struct {
	Start string
	End   string
}

func (c *Client) joinURL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// do sends one request and returns status and body. Transport failures are
// wrapped in ErrTransient.
func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, payload any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.joinURL(path), body)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(DemoKeyHeader, c.demoKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read %s: %w", ErrTransient, path, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Msg("gateway response")

	return resp.StatusCode, respBody, nil
}

func ok(status int) bool { return status >= 200 && status <= 299 }

// CreateLinkSession asks the proxy for a Link token. An empty userID is
// replaced by a time-based one.
func (c *Client) CreateLinkSession(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		userID = fmt.Sprintf("ledger-cli-%d", c.now().UnixMilli())
	}

	path := "create_link_token?client_user_id=" + url.QueryEscape(userID)
	status, body, err := c.do(ctx, http.MethodGet, path, TokenTimeout, nil)
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", &HTTPError{Op: "create_link_token", Status: status, Body: string(body)}
	}

	var parsed struct {
		LinkToken string `json:"link_token"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.LinkToken != "" {
		return parsed.LinkToken, nil
	}
	if m := linkTokenPattern.FindSubmatch(body); m != nil {
		return string(m[1]), nil
	}
	return "", fmt.Errorf("create_link_token: %w: no link_token", ErrMalformedResponse)
}

// CreateSandboxPublicToken asks the proxy to mint a sandbox public token.
func (c *Client) CreateSandboxPublicToken(ctx context.Context, products []string) (string, error) {
	if len(products) == 0 {
		products = []string{"transactions"}
	}

	status, body, err := c.do(ctx, http.MethodPost, "create_sandbox_public_token", TokenTimeout,
		map[string]any{"initial_products": products})
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", &HTTPError{Op: "create_sandbox_public_token", Status: status, Body: string(body)}
	}

	var parsed struct {
		PublicToken string `json:"public_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.PublicToken == "" {
		return "", fmt.Errorf("create_sandbox_public_token: %w", ErrMalformedResponse)
	}
	return parsed.PublicToken, nil
}

// ExchangePublicToken trades a public token for an access token. It fails
// closed: blank tokens, non-2xx answers and unreadable bodies are errors.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*Exchange, error) {
	if strings.TrimSpace(publicToken) == "" {
		return nil, fmt.Errorf("exchange_public_token: %w", ErrEmptyToken)
	}

	status, body, err := c.do(ctx, http.MethodPost, "exchange_public_token", TokenTimeout,
		map[string]string{"public_token": publicToken})
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &HTTPError{Op: "exchange_public_token", Status: status, Body: string(body)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("exchange_public_token: %w: empty body", ErrMalformedResponse)
	}

	var parsed struct {
		AccessToken        string          `json:"access_token"`
		ItemID             string          `json:"item_id"`
		CachedPresent      bool            `json:"cached_transactions_present"`
		CachedTransactions json.RawMessage `json:"cached_transactions"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("exchange_public_token: %w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(parsed.AccessToken) == "" {
		return nil, fmt.Errorf("exchange_public_token: %w: no access_token", ErrMalformedResponse)
	}

	ex := &Exchange{AccessToken: parsed.AccessToken, ItemID: parsed.ItemID}
	if parsed.CachedPresent && len(parsed.CachedTransactions) > 0 {
		if txns, err := c.decodeTransactions(parsed.CachedTransactions); err == nil {
			ex.Cached = txns
			ex.CachedLoaded = true
		}
	}
	return ex, nil
}

// FetchTransactionsOnce makes a single transactions request. Errors wrap
// ErrNotReady or ErrTransient when a retry may help; anything else is final.
func (c *Client) FetchTransactionsOnce(ctx context.Context, accessToken string, dr *DateRange) ([]models.RemoteTransaction, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("transactions_for_access_token: %w", ErrEmptyToken)
	}

	payload := map[string]string{"access_token": accessToken}
	if dr != nil {
		if dr.Start != "" {
			payload["start_date"] = dr.Start
		}
		if dr.End != "" {
			payload["end_date"] = dr.End
		}
	}

	status, body, err := c.do(ctx, http.MethodPost, "transactions_for_access_token", TransactionTimeout, payload)
	if err != nil {
		return nil, err
	}

	if !ok(status) {
		httpErr := &HTTPError{Op: "transactions_for_access_token", Status: status, Body: string(body)}
		switch {
		case hasNotReadyCode(body):
			httpErr.kind = ErrNotReady
		case status == http.StatusTooManyRequests || status == http.StatusBadGateway ||
			status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
			httpErr.kind = ErrTransient
		}
		return nil, httpErr
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: transactions_for_access_token returned an empty body", ErrTransient)
	}
	return c.decodeTransactions(body)
}

// SyncTransactions passes a sync request through the proxy and returns the
// upstream body as-is.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (json.RawMessage, error) {
	payload := map[string]string{"access_token": accessToken}
	if cursor != "" {
		payload["cursor"] = cursor
	}
	status, body, err := c.do(ctx, http.MethodPost, "transactions_sync_for_access_token", TransactionTimeout, payload)
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, &HTTPError{Op: "transactions_sync_for_access_token", Status: status, Body: string(body)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("transactions_sync_for_access_token: %w", ErrMalformedResponse)
	}
	return body, nil
}

// decodeTransactions reads a {transactions:[...]} payload. Entries that are
// not objects are skipped rather than failing the batch.
func (c *Client) decodeTransactions(body []byte) ([]models.RemoteTransaction, error) {
	var parsed models.TransactionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]models.RemoteTransaction, 0, len(parsed.Transactions))
	for i, raw := range parsed.Transactions {
		var t models.RemoteTransaction
		if err := json.Unmarshal(raw, &t); err != nil {
			c.logger.Warn().Err(err).Int("index", i).Msg("skipping unreadable transaction record")
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// hasNotReadyCode looks for PRODUCT_NOT_READY at the top level or inside the
// proxy's error envelope details.
func hasNotReadyCode(body []byte) bool {
	var env struct {
		ErrorCode string `json:"error_code"`
		Details   struct {
			ErrorCode string `json:"error_code"`
		} `json:"details"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return bytes.Contains(body, []byte(notReadyCode))
	}
	return env.ErrorCode == notReadyCode || env.Details.ErrorCode == notReadyCode
}
