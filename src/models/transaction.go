package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// RemoteTransaction is one record of a provider transactions response.
// Amounts follow the provider convention: positive is money out, negative is money in.
type RemoteTransaction struct {
	TransactionID   string  `json:"transaction_id,omitempty"`
	AccountID       string  `json:"account_id,omitempty"`
	Name            string  `json:"name"`
	MerchantName    string  `json:"merchant_name,omitempty"`
	Amount          float64 `json:"amount"`
	Date            string  `json:"date"`
	ISOCurrencyCode string  `json:"iso_currency_code,omitempty"`
}

// UnmarshalJSON decodes a record without failing on odd field shapes.
// Null strings become empty, quoted amounts are parsed and anything else
// unreadable falls back to the zero value.
func (t *RemoteTransaction) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*t = RemoteTransaction{
		TransactionID:   rawString(raw["transaction_id"]),
		AccountID:       rawString(raw["account_id"]),
		Name:            rawString(raw["name"]),
		MerchantName:    rawString(raw["merchant_name"]),
		Amount:          rawFloat(raw["amount"]),
		Date:            rawString(raw["date"]),
		ISOCurrencyCode: rawString(raw["iso_currency_code"]),
	}
	return nil
}

func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func rawFloat(v json.RawMessage) float64 {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

// TransactionsResponse is the subset of a transactions payload the client reads.
type TransactionsResponse struct {
	Transactions      []json.RawMessage `json:"transactions"`
	TotalTransactions int               `json:"total_transactions"`
}
