// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphore_BoundsConcurrency(t *testing.T) {
	const permits = 3
	l := New(permits)

	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), l, func(context.Context) (int, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return 0, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(permits))
	assert.Equal(t, int32(0), atomic.LoadInt32(&inFlight))
}

func TestDo_ReleasesOnError(t *testing.T) {
	l := New(1)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := Do(context.Background(), l, func(context.Context) (string, error) {
			return "", boom
		})
		require.ErrorIs(t, err, boom)
	}

	// A leaked permit would make this acquire block until the deadline.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	l := New(1)

	func() {
		defer func() { _ = recover() }()
		_, _ = Do(context.Background(), l, func(context.Context) (int, error) {
			panic("stage blew up")
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestSemaphore_AcquireHonoursContext(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRelease_Idempotent(t *testing.T) {
	l := New(1)
	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	release()
	assert.NotPanics(t, release)
}

func TestNew_DefaultPermits(t *testing.T) {
	l := New(0)
	var releases []func()
	for i := 0; i < DefaultPermits; i++ {
		r, err := l.Acquire(context.Background())
		require.NoError(t, err)
		releases = append(releases, r)
	}
	assert.False(t, l.sem.TryAcquire(1))
	for _, r := range releases {
		r()
	}
}

func TestUnlimited(t *testing.T) {
	l := Unlimited()
	for i := 0; i < 100; i++ {
		_, err := l.Acquire(context.Background())
		require.NoError(t, err)
	}
}
