// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("connection refused")
	errFatal     = errors.New("bad request")
)

// fakeClock records every delay it is asked to sleep without sleeping.
type fakeClock struct {
	delays []time.Duration
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.delays = append(c.delays, d)
	return nil
}

// script replays a fixed sequence of results, one per call.
type script struct {
	errs  []error
	calls int
}

func (s *script) call(context.Context) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	return "ok", nil
}

func testPolicy(clock *fakeClock) Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
		Sleep:       clock.Sleep,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDo_ImmediateSuccess(t *testing.T) {
	clock := &fakeClock{}
	s := &script{}

	got, err := Do(context.Background(), testPolicy(clock), s.call)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, s.calls)
	assert.Empty(t, clock.delays)
}

func TestDo_TwoTransientThenSuccess(t *testing.T) {
	clock := &fakeClock{}
	s := &script{errs: []error{errTransient, errTransient}}

	got, err := Do(context.Background(), testPolicy(clock), s.call)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, s.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.delays)
}

func TestDo_FatalPropagatesImmediately(t *testing.T) {
	clock := &fakeClock{}
	s := &script{errs: []error{errFatal}}

	_, err := Do(context.Background(), testPolicy(clock), s.call)
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, s.calls)
	assert.Empty(t, clock.delays)
}

func TestDo_ExhaustsCeiling(t *testing.T) {
	clock := &fakeClock{}
	s := &script{errs: []error{errTransient, errTransient, errTransient, errTransient}}

	_, err := Do(context.Background(), testPolicy(clock), s.call)
	require.Error(t, err)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, s.calls)
	assert.Len(t, clock.delays, 2)
}

func TestDo_Defaults(t *testing.T) {
	clock := &fakeClock{}
	s := &script{errs: []error{errTransient, errTransient, errTransient}}
	p := Policy{
		Retryable: func(error) bool { return true },
		Sleep:     clock.Sleep,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	_, err := Do(context.Background(), p, s.call)
	require.Error(t, err)
	assert.Equal(t, defaultMaxAttempts, s.calls)
	assert.Equal(t, []time.Duration{defaultDelay, defaultDelay}, clock.delays)
}

func TestDo_NilRetryableIsFatal(t *testing.T) {
	clock := &fakeClock{}
	s := &script{errs: []error{errTransient}}
	p := testPolicy(clock)
	p.Retryable = nil

	_, err := Do(context.Background(), p, s.call)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, s.calls)
}

func TestDo_ContextCancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &script{errs: []error{errTransient, errTransient}}
	p := testPolicy(&fakeClock{})
	p.Sleep = Sleep
	p.Delay = time.Hour

	_, err := Do(ctx, p, s.call)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.calls)
}
