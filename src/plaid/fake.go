package plaid

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type fakeAccount struct {
	AccountID    string         `json:"account_id"`
	Balances     map[string]any `json:"balances"`
	Mask         string         `json:"mask"`
	Name         string         `json:"name"`
	OfficialName string         `json:"official_name"`
	Subtype      string         `json:"subtype"`
	Type         string         `json:"type"`
}

type fakeTransaction struct {
	AccountID       string  `json:"account_id"`
	Amount          float64 `json:"amount"`
	Date            string  `json:"date"`
	Name            string  `json:"name"`
	MerchantName    string  `json:"merchant_name"`
	TransactionID   string  `json:"transaction_id"`
	ISOCurrencyCode string  `json:"iso_currency_code"`
}

type fakeTransactionsResponse struct {
	Accounts          []fakeAccount     `json:"accounts"`
	Item              map[string]string `json:"item"`
	RequestID         string            `json:"request_id"`
	TotalTransactions int               `json:"total_transactions"`
	Transactions      []fakeTransaction `json:"transactions"`
}

// Fake is the FAKE_PLAID upstream: every call succeeds at once with
// synthetic tokens and three demo transactions.
type Fake struct {
	now func() time.Time
}

var _ Upstream = (*Fake)(nil)

func NewFake(now func() time.Time) *Fake {
	if now == nil {
		now = time.Now
	}
	return &Fake{now: now}
}

func shortID() string {
	return uuid.NewString()[:8]
}

func (f *Fake) CreateLinkToken(_ context.Context, clientUserID string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{
		"link_token": "link-sandbox-fake-" + uuid.NewString(),
		"expiration": f.now().Add(4 * time.Hour).UTC().Format(time.RFC3339),
		"request_id": "req-" + shortID(),
	})
}

func (f *Fake) CreateSandboxPublicToken(_ context.Context, _ string, _ []string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{
		"public_token": "public-fake-" + shortID(),
		"request_id":   "req-" + shortID(),
	})
}

func (f *Fake) ExchangePublicToken(_ context.Context, _ string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{
		"access_token": "access-fake-" + shortID(),
		"item_id":      "item-fake-" + shortID(),
		"request_id":   "req-" + shortID(),
	})
}

func (f *Fake) TransactionsSync(_ context.Context, accessToken, _ string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"added":                      f.transactions(),
		"modified":                   []any{},
		"removed":                    []any{},
		"next_cursor":                "fake-cursor-" + shortID(),
		"has_more":                   false,
		"transactions_update_status": "HISTORICAL_UPDATE_COMPLETE",
		"request_id":                 "req-" + shortID(),
	})
}

func (f *Fake) TransactionsGet(_ context.Context, accessToken, _, _ string) (json.RawMessage, error) {
	return json.Marshal(fakeTransactionsFor(accessToken, f.now()))
}

func (f *Fake) FireWebhook(_ context.Context, _, _ string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{
		"webhook_fired": true,
		"request_id":    "req-" + shortID(),
	})
}

func (f *Fake) transactions() []fakeTransaction {
	return fakeTransactionList(f.now())
}

// fakeTransactionsFor is a /transactions/get shaped response with a coffee, a
// grocery run and a salary deposit dated relative to now.
func fakeTransactionsFor(accessToken string, now time.Time) fakeTransactionsResponse {
	itemSuffix := "demo"
	if len(accessToken) >= 8 {
		itemSuffix = accessToken[:8]
	}
	txns := fakeTransactionList(now)
	return fakeTransactionsResponse{
		Accounts: []fakeAccount{{
			AccountID:    "acct_plaid_1",
			Balances:     map[string]any{},
			Mask:         "0000",
			Name:         "Plaid Checking",
			OfficialName: "Plaid Gold Standard Checking",
			Subtype:      "checking",
			Type:         "depository",
		}},
		Item:              map[string]string{"item_id": "item_" + itemSuffix},
		RequestID:         "req_" + shortID(),
		TotalTransactions: len(txns),
		Transactions:      txns,
	}
}

func fakeTransactionList(now time.Time) []fakeTransaction {
	day := func(n int) string { return now.AddDate(0, 0, -n).Format("2006-01-02") }
	return []fakeTransaction{
		{AccountID: "acct_plaid_1", Amount: 4.5, Date: day(2), Name: "Demo Coffee", MerchantName: "Demo Coffee", TransactionID: "tx_" + shortID(), ISOCurrencyCode: "USD"},
		{AccountID: "acct_plaid_1", Amount: 32.75, Date: day(5), Name: "Demo Groceries", MerchantName: "Demo Market", TransactionID: "tx_" + shortID(), ISOCurrencyCode: "USD"},
		{AccountID: "acct_plaid_1", Amount: -1500, Date: day(20), Name: "Demo Salary", MerchantName: "Employer Inc", TransactionID: "tx_" + shortID(), ISOCurrencyCode: "USD"},
	}
}
