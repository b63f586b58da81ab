package gateway

import (
	"context"

	"expense-ledger/src/models"
	"expense-ledger/src/retry"
)

// Fetcher is the single-attempt call FetchWithRetry drives.
type Fetcher interface {
	FetchTransactionsOnce(ctx context.Context, accessToken string, dr *DateRange) ([]models.RemoteTransaction, error)
}

// FetchWithRetry repeats FetchTransactionsOnce with backoff while the proxy
// reports not-ready or transient failures. Any successful answer, including
// an empty list, is final. It returns the number of attempts made.
func FetchWithRetry(ctx context.Context, f Fetcher, accessToken string, dr *DateRange, p retry.Policy) ([]models.RemoteTransaction, int, error) {
	return retry.Until(ctx, p,
		func(ctx context.Context, _ int) ([]models.RemoteTransaction, error) {
			return f.FetchTransactionsOnce(ctx, accessToken, dr)
		},
		func([]models.RemoteTransaction) bool { return true },
		IsRetryable,
	)
}
