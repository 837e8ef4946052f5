// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package limiter bounds the number of simultaneously in-flight calls
// that carry large payloads.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPermits is the number of image-carrying calls allowed at once.
const DefaultPermits = 10

// Limiter hands out permits. Acquire blocks until a permit frees or ctx is
// done; the returned release func must be called exactly once, typically
// with defer.
type Limiter interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Semaphore is a Limiter backed by a weighted semaphore.
type Semaphore struct {
	sem *semaphore.Weighted
}

// New returns a Limiter with n permits. n <= 0 uses DefaultPermits.
func New(n int) *Semaphore {
	if n <= 0 {
		n = DefaultPermits
	}
	return &Semaphore{sem: semaphore.NewWeighted(int64(n))}
}

// Acquire takes one permit.
func (s *Semaphore) Acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { s.sem.Release(1) }) }, nil
}

type unlimited struct{}

func (unlimited) Acquire(context.Context) (func(), error) {
	return func() {}, nil
}

// Unlimited returns a Limiter that never blocks.
func Unlimited() Limiter {
	return unlimited{}
}

// Do runs fn while holding a permit from l. The permit is released on
// every exit path, including a panic in fn.
func Do[T any](ctx context.Context, l Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	release, err := l.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}
