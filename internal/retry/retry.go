// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry re-attempts a call on transient failure with a fixed
// delay between attempts.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultDelay       = 5 * time.Second
)

// Sleeper pauses for d or until ctx is done. Tests substitute a fake that
// records requested delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
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

// ExhaustedError is returned once every attempt failed with a retryable
// error. The last cause is wrapped.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Policy describes how often and when to re-attempt a call.
type Policy struct {
	// MaxAttempts counts the first call. Values <= 0 use 3.
	MaxAttempts int

	// Delay is the fixed pause between attempts. Zero uses 5s; a negative
	// value disables the pause.
	Delay time.Duration

	// Retryable decides whether err warrants another attempt. Nil treats
	// every error as fatal.
	Retryable func(err error) bool

	// Sleep waits between attempts. Nil uses Sleep.
	Sleep Sleeper

	// Logger receives one warning per retried failure. Nil uses slog.Default.
	Logger *slog.Logger
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempt ceiling is reached. Non-retryable errors are returned as-is with
// no delay; an exhausted ceiling returns *ExhaustedError.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	delay := p.Delay
	if delay == 0 {
		delay = defaultDelay
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var zero T
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt >= maxAttempts {
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}

		logger.Warn("retryable failure",
			"attempt", attempt, "max_attempts", maxAttempts, "delay", delay, "error", err)

		if delay > 0 {
			if serr := sleep(ctx, delay); serr != nil {
				return zero, serr
			}
		}
	}
}
