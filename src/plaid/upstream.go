package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
)

const (
	TokenTimeout       = 10 * time.Second
	TransactionTimeout = 20 * time.Second

	ClientName = "Expense Tracker Demo"
)

// Upstream is the set of provider calls the proxy forwards. Responses are the
// provider's JSON bodies, passed through to the client unchanged.
type Upstream interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (json.RawMessage, error)
	CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (json.RawMessage, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (json.RawMessage, error)
	TransactionsSync(ctx context.Context, accessToken, cursor string) (json.RawMessage, error)
	TransactionsGet(ctx context.Context, accessToken, startDate, endDate string) (json.RawMessage, error)
	FireWebhook(ctx context.Context, accessToken, webhookCode string) (json.RawMessage, error)
}

// UpstreamError is a failed provider call. Status is the provider's HTTP
// status, or 0 when no response arrived.
type UpstreamError struct {
	Op     string
	Status int
	Body   json.RawMessage
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Details is what goes into the proxy's error envelope: the provider body when
// there is one, the error text otherwise.
func (e *UpstreamError) Details() any {
	if len(e.Body) > 0 && json.Valid(e.Body) {
		return e.Body
	}
	return e.Err.Error()
}

// Client implements Upstream on top of plaid-go.
type Client struct {
	api *plaid.APIClient
}

var _ Upstream = (*Client)(nil)

func NewClient(api *plaid.APIClient) *Client {
	return &Client{api: api}
}

func (c *Client) CreateLinkToken(ctx context.Context, clientUserID string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, TokenTimeout)
	defer cancel()

	user := plaid.LinkTokenCreateRequestUser{
		ClientUserId: clientUserID,
	}
	request := plaid.NewLinkTokenCreateRequest(
		ClientName,
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
	)
	request.SetUser(user)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS, plaid.PRODUCTS_AUTH})

	resp, httpResp, err := c.api.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	return encode("link_token_create", resp, httpResp, err)
}

func (c *Client) CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, TokenTimeout)
	defer cancel()

	initial := make([]plaid.Products, 0, len(products))
	for _, p := range products {
		product, err := plaid.NewProductsFromValue(p)
		if err != nil {
			return nil, &UpstreamError{Op: "sandbox_public_token_create", Status: http.StatusBadRequest, Err: err}
		}
		initial = append(initial, *product)
	}

	request := plaid.NewSandboxPublicTokenCreateRequest(institutionID, initial)
	resp, httpResp, err := c.api.PlaidApi.SandboxPublicTokenCreate(ctx).SandboxPublicTokenCreateRequest(*request).Execute()
	return encode("sandbox_public_token_create", resp, httpResp, err)
}

func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, TokenTimeout)
	defer cancel()

	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, httpResp, err := c.api.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	return encode("item_public_token_exchange", resp, httpResp, err)
}

func (c *Client) TransactionsSync(ctx context.Context, accessToken, cursor string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, TransactionTimeout)
	defer cancel()

	request := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != "" {
		request.SetCursor(cursor)
	}
	resp, httpResp, err := c.api.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
	return encode("transactions_sync", resp, httpResp, err)
}

func (c *Client) TransactionsGet(ctx context.Context, accessToken, startDate, endDate string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, TransactionTimeout)
	defer cancel()

	request := plaid.NewTransactionsGetRequest(accessToken, startDate, endDate)
	resp, httpResp, err := c.api.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	return encode("transactions_get", resp, httpResp, err)
}

func (c *Client) FireWebhook(ctx context.Context, accessToken, webhookCode string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, TokenTimeout)
	defer cancel()

	request := plaid.NewSandboxItemFireWebhookRequest(accessToken, webhookCode)
	resp, httpResp, err := c.api.PlaidApi.SandboxItemFireWebhook(ctx).SandboxItemFireWebhookRequest(*request).Execute()
	return encode("sandbox_item_fire_webhook", resp, httpResp, err)
}

// encode turns a plaid-go result into the raw body the proxy returns, or an
// *UpstreamError carrying the provider's error body and status.
func encode(op string, resp any, httpResp *http.Response, err error) (json.RawMessage, error) {
	if err != nil {
		upErr := &UpstreamError{Op: op, Err: err}
		if httpResp != nil {
			upErr.Status = httpResp.StatusCode
		}
		var apiErr plaid.GenericOpenAPIError
		if errors.As(err, &apiErr) {
			upErr.Body = apiErr.Body()
		}
		return nil, upErr
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("encode response: %w", err)}
	}
	return body, nil
}
