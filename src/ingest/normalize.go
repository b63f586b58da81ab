package ingest

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"expense-ledger/src/models"
)

const (
	MaxTitleLength = 20
	unknownTitle   = "Unknown Transaction"
	ellipsis       = "…"

	isoLayout    = "2006-01-02"
	ledgerLayout = "02/01/2006"
)

var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Normalize maps a provider record to a ledger entry. It is pure: no I/O and
// the same record always produces the same entry.
func Normalize(t models.RemoteTransaction) models.LedgerEntry {
	name := t.Name
	if strings.TrimSpace(name) == "" {
		name = unknownTitle
	}

	amount := t.Amount
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}

	typ := models.Expense
	if amount < 0 {
		typ = models.Income
	}

	return models.LedgerEntry{
		Title:  TruncateTitle(name, MaxTitleLength),
		Amount: math.Abs(amount),
		Date:   NormalizeDate(t.Date),
		Type:   typ,
	}
}

// TruncateTitle shortens s to at most maxLen characters. Longer titles keep
// their first maxLen-1 characters, lose trailing whitespace and get an
// ellipsis. Blank input yields "".
func TruncateTitle(s string, maxLen int) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	if maxLen < 1 {
		maxLen = 1
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:maxLen-1]), isSpace) + ellipsis
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' }

// NormalizeDate rewrites an ISO date (yyyy-mm-dd, optionally followed by a
// time) as dd/mm/yyyy. Anything else is returned unchanged.
func NormalizeDate(s string) string {
	prefix := isoDatePrefix.FindString(s)
	if prefix == "" {
		return s
	}
	d, err := time.Parse(isoLayout, prefix)
	if err != nil {
		return s
	}
	return d.Format(ledgerLayout)
}
