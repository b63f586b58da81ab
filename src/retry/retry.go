// Package retry runs an operation with bounded exponential backoff until its
// result is good enough, it fails permanently, or the attempt budget runs out.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// ErrMaxRetries is matched by every ExhaustedError.
var ErrMaxRetries = errors.New("max retries exceeded")

// ExhaustedError reports that all attempts ran without a usable result.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
	}
	return fmt.Sprintf("gave up after %d attempts: result never became ready", e.Attempts)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrMaxRetries }

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Policy describes the backoff schedule. Zero fields take the defaults of
// DefaultPolicy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxJitter   time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter returns a duration in [0, max).
	Jitter func(max time.Duration) time.Duration

	Logger *zerolog.Logger
}

// DefaultPolicy is 10 attempts starting at 1s, doubling up to 60s, plus up
// to 1s of jitter per wait.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		MaxJitter:   time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxJitter < 0 {
		p.MaxJitter = 0
	}
	if p.Sleep == nil {
		p.Sleep = Sleep
	}
	if p.Jitter == nil {
		p.Jitter = randomJitter
	}
	return p
}

// Backoff is the wait before jitter that follows the given attempt:
// min(BaseDelay * 2^(attempt-1), MaxDelay).
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := p.BaseDelay << shift
	if d <= 0 || d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleep blocks for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Until calls op until ready accepts its value. Errors for which retryable
// returns true are retried like a not-ready value; any other error stops the
// loop at once. It returns the last value seen, the number of attempts made
// and, when no ready value was produced, either op's error or an
// *ExhaustedError.
func Until[T any](
	ctx context.Context,
	p Policy,
	op func(ctx context.Context, attempt int) (T, error),
	ready func(T) bool,
	retryable func(error) bool,
) (T, int, error) {
	p = p.withDefaults()

	var (
		last    T
		lastErr error
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx, attempt)
		switch {
		case err == nil:
			last, lastErr = v, nil
			if ready == nil || ready(v) {
				return v, attempt, nil
			}
		case retryable != nil && retryable(err):
			lastErr = err
		default:
			return last, attempt, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Backoff(attempt) + p.Jitter(p.MaxJitter)
		if p.Logger != nil {
			ev := p.Logger.Warn().
				Int("attempt", attempt).
				Int("max_attempts", p.MaxAttempts).
				Dur("delay", wait)
			if lastErr != nil {
				ev = ev.Err(lastErr)
			}
			ev.Msg("attempt not ready, backing off")
		}
		if err := p.Sleep(ctx, wait); err != nil {
			return last, attempt, err
		}
	}

	return last, p.MaxAttempts, &ExhaustedError{Attempts: p.MaxAttempts, Last: lastErr}
}
