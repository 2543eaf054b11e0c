package util

import (
	"context"
	"time"
)

// Retry executes fn up to attempts times, sleeping backoff between failures.
// fn receives the 1-based attempt number.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func(attempt int) error) error {
	if attempts <= 1 {
		return fn(1)
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn(i)
		if err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
