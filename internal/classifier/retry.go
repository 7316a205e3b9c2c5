package classifier

import (
	"context"
	"time"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff retries fn while it fails with a retryable error, up to attempts
// calls in total. The wait starts at base and doubles after every attempt.
type Backoff struct {
	Attempts int
	Base     time.Duration
	Sleep    Sleeper
}

func (b Backoff) Do(ctx context.Context, fn func() error) error {
	attempts := b.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	delay := b.Base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !apperr.Retryable(err) || attempt == attempts {
			return err
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return err
		}
		delay *= 2
	}
	return err
}
