package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotReady = errors.New("not ready")

type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testPolicy(rec *sleepRecorder, attempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = attempts
	p.Sleep = rec.sleep
	p.Jitter = func(time.Duration) time.Duration { return 0 }
	return p
}

func isNotReady(err error) bool { return errors.Is(err, errNotReady) }

func always[T any](T) bool { return true }

func TestBackoff_MonotonicUntilCap(t *testing.T) {
	p := DefaultPolicy()
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
		32 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second,
	}
	var prev time.Duration
	for n := 1; n <= 10; n++ {
		got := p.Backoff(n)
		assert.Equal(t, want[n-1], got, "attempt %d", n)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
	assert.Equal(t, 60*time.Second, p.Backoff(200))
}

func TestUntil_ExhaustsAfterExactlyMaxAttempts(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	_, attempts, err := Until(context.Background(), testPolicy(rec, 10),
		func(context.Context, int) ([]string, error) {
			calls++
			return nil, errNotReady
		}, always[[]string], isNotReady)

	require.Error(t, err)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 10, exhausted.Attempts)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorIs(t, err, errNotReady)
	assert.Equal(t, 10, calls)
	assert.Equal(t, 10, attempts)
	assert.Len(t, rec.waits, 9, "no wait after the final attempt")
}

func TestUntil_HardFailureStopsImmediately(t *testing.T) {
	rec := &sleepRecorder{}
	hard := errors.New("bad request")
	calls := 0
	_, attempts, err := Until(context.Background(), testPolicy(rec, 10),
		func(context.Context, int) (int, error) {
			calls++
			if calls == 1 {
				return 0, errNotReady
			}
			return 0, hard
		}, always[int], isNotReady)

	require.ErrorIs(t, err, hard)
	assert.NotErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{time.Second}, rec.waits)
}

func TestUntil_EmptyResultIsFinal(t *testing.T) {
	rec := &sleepRecorder{}
	calls := 0
	got, attempts, err := Until(context.Background(), testPolicy(rec, 10),
		func(context.Context, int) ([]string, error) {
			calls++
			return []string{}, nil
		}, always[[]string], isNotReady)

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.waits)
}

func TestUntil_PredicateDrivesRetries(t *testing.T) {
	rec := &sleepRecorder{}
	got, attempts, err := Until(context.Background(), testPolicy(rec, 5),
		func(_ context.Context, attempt int) (int, error) {
			return attempt, nil
		}, func(v int) bool { return v >= 3 }, isNotReady)

	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.waits)
}

func TestUntil_ExhaustionKeepsLastValue(t *testing.T) {
	rec := &sleepRecorder{}
	got, _, err := Until(context.Background(), testPolicy(rec, 3),
		func(_ context.Context, attempt int) (string, error) {
			return "pending", nil
		}, func(string) bool { return false }, isNotReady)

	require.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, "pending", got)
	assert.Contains(t, err.Error(), "never became ready")
}

func TestUntil_JitterAddedToWait(t *testing.T) {
	rec := &sleepRecorder{}
	p := testPolicy(rec, 2)
	p.Jitter = func(max time.Duration) time.Duration {
		assert.Equal(t, time.Second, max)
		return 250 * time.Millisecond
	}
	_, _, _ = Until(context.Background(), p,
		func(context.Context, int) (int, error) { return 0, errNotReady }, always[int], isNotReady)

	assert.Equal(t, []time.Duration{1250 * time.Millisecond}, rec.waits)
}

func TestUntil_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultPolicy()
	p.MaxAttempts = 5
	calls := 0
	_, attempts, err := Until(ctx, p,
		func(context.Context, int) (int, error) {
			calls++
			return 0, errNotReady
		}, always[int], isNotReady)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
}

func TestRandomJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := randomJitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, time.Second)
	}
	assert.Equal(t, time.Duration(0), randomJitter(0))
}
