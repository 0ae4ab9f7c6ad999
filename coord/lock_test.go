package coord_test

import (
	"context"
	"errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"herald_bot/coord"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var discard = log.New(io.Discard)

type lockPair struct {
	a, b coord.ILock
	// advance moves the shared store's clock forward
	advance func(d time.Duration)
	// kill makes the shared store unreachable
	kill func()
}

func newMemPair(t *testing.T) lockPair {
	store := coord.NewMemLockStore()
	now := time.Now()
	var mu sync.Mutex
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	return lockPair{
		a: coord.NewMemLock(store),
		b: coord.NewMemLock(store),
		advance: func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		},
		kill: func() { store.SetAvailable(false) },
	}
}

func newRedisPair(t *testing.T) lockPair {
	mr := miniredis.RunT(t)
	newClient := func() redis.UniversalClient {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
		t.Cleanup(func() { _ = rdb.Close() })
		return rdb
	}
	return lockPair{
		a:       coord.NewRedisLockWithClient(newClient(), discard),
		b:       coord.NewRedisLockWithClient(newClient(), discard),
		advance: mr.FastForward,
		kill:    mr.Close,
	}
}

func forEachBackend(t *testing.T, test func(t *testing.T, p lockPair)) {
	t.Run("memory", func(t *testing.T) { test(t, newMemPair(t)) })
	t.Run("redis", func(t *testing.T) { test(t, newRedisPair(t)) })
}

func TestExactlyOneAcquires(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p lockPair) {
		ctx := context.Background()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for _, l := range []coord.ILock{p.a, p.b} {
			wg.Add(1)
			go func(l coord.ILock) {
				defer wg.Done()
				if l.Acquire(ctx, "k", time.Minute) {
					wins.Add(1)
				}
			}(l)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())

		winner, loser := p.a, p.b
		if p.b.Holder(ctx, "k") == p.b.Token() {
			winner, loser = p.b, p.a
		}
		assert.Equal(t, winner.Token(), loser.Holder(ctx, "k"))
		assert.False(t, loser.Renew(ctx, "k", time.Minute))
		assert.False(t, loser.Release(ctx, "k"))
		assert.Equal(t, winner.Token(), winner.Holder(ctx, "k"))

		assert.True(t, winner.Renew(ctx, "k", time.Minute))
		assert.True(t, winner.Release(ctx, "k"))
		assert.Equal(t, "", winner.Holder(ctx, "k"))
		assert.True(t, loser.Acquire(ctx, "k", time.Minute))
	})
}

func TestStaleHolderCannotRelease(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p lockPair) {
		ctx := context.Background()
		require.True(t, p.a.Acquire(ctx, "k", time.Second))
		// a stalls past its TTL; b takes over
		p.advance(2 * time.Second)
		require.True(t, p.b.Acquire(ctx, "k", time.Minute))
		assert.False(t, p.a.Renew(ctx, "k", time.Minute))
		assert.False(t, p.a.Release(ctx, "k"))
		assert.Equal(t, p.b.Token(), p.a.Holder(ctx, "k"))
	})
}

func TestFailsClosed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, p lockPair) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.True(t, p.a.Acquire(ctx, "k", time.Minute))
		assert.True(t, p.a.Available(ctx))
		p.kill()
		assert.False(t, p.a.Available(ctx))
		assert.False(t, p.a.Acquire(ctx, "other", time.Minute))
		assert.False(t, p.a.Renew(ctx, "k", time.Minute))
		assert.False(t, p.a.Release(ctx, "k"))
		assert.Equal(t, "", p.a.Holder(ctx, "k"))
	})
}

func TestRunExclusiveSkipsWhenHeld(t *testing.T) {
	p := newMemPair(t)
	ctx := context.Background()
	require.True(t, p.b.Acquire(ctx, "job", time.Minute))
	called := false
	ran, err := coord.RunExclusive(ctx, p.a, discard, "job", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.NoError(t, err)
	assert.False(t, ran)
	assert.False(t, called)
}

func TestRunExclusiveReleasesOnError(t *testing.T) {
	p := newMemPair(t)
	ctx := context.Background()
	boom := errors.New("boom")
	ran, err := coord.RunExclusive(ctx, p.a, discard, "job", time.Minute, func(ctx context.Context) error {
		assert.Equal(t, p.a.Token(), p.a.Holder(ctx, "job"))
		return boom
	})
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "", p.a.Holder(ctx, "job"))
}

func TestRunExclusiveReleasesOnPanic(t *testing.T) {
	p := newMemPair(t)
	ctx := context.Background()
	ran, err := coord.RunExclusive(ctx, p.a, discard, "job", time.Minute, func(context.Context) error {
		panic("kaboom")
	})
	assert.True(t, ran)
	assert.ErrorContains(t, err, "kaboom")
	assert.True(t, p.b.Acquire(ctx, "job", time.Minute))
}

func TestRunExclusiveRenews(t *testing.T) {
	store := coord.NewMemLockStore()
	a := coord.NewMemLock(store)
	b := coord.NewMemLock(store)
	ctx := context.Background()
	ttl := 90 * time.Millisecond
	ran, err := coord.RunExclusive(ctx, a, discard, "job", ttl, func(ctx context.Context) error {
		// Work outlasts the TTL several times over; renewals keep b out
		deadline := time.Now().Add(4 * ttl)
		for time.Now().Before(deadline) {
			if b.Acquire(ctx, "job", ttl) {
				return errors.New("lock was lost during work")
			}
			time.Sleep(10 * time.Millisecond)
		}
		return nil
	})
	assert.True(t, ran)
	assert.NoError(t, err)
}
