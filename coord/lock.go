package coord

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"herald_bot/shared"
	"time"
)

// Lock keys of the singleton duties.
const (
	KeyMentionIngestion = "herald:lock:mention_ingestion"
	KeyTimelinePoster   = "herald:lock:timeline_poster"
	KeyDrafts           = "herald:lock:drafts" // Publisher and expirer share it
)

// ILock is a mutual-exclusion primitive shared between process instances.
// Every operation fails closed: if the backing store can't be reached the
// answer is false or empty, never "you hold it".
type ILock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) bool
	Renew(ctx context.Context, key string, ttl time.Duration) bool
	Release(ctx context.Context, key string) bool
	Holder(ctx context.Context, key string) string
	Available(ctx context.Context) bool
	Token() string
}

// NewLock uses Redis when a URL is configured, else an in-process lock.
func NewLock(cfg *shared.Config, logger shared.ILogger) (ILock, error) {
	if cfg.RedisUrl == "" {
		logger.Infof("No redis_url configured; singleton duties are coordinated in-process only")
		return NewMemLock(NewMemLockStore()), nil
	}
	lock, err := NewRedisLock(cfg.RedisUrl, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up redis lock: %w", err)
	}
	return lock, nil
}

func newToken() string {
	return uuid.NewString()
}

// RunExclusive runs fn while holding key. The lock is renewed in the background
// at a third of its TTL, and released on every exit path.
// If the lock is not acquired, fn does not run and ran is false.
func RunExclusive(
	ctx context.Context,
	lock ILock,
	logger shared.ILogger,
	key string,
	ttl time.Duration,
	fn func(ctx context.Context) error,
) (ran bool, err error) {

	if !lock.Acquire(ctx, key, ttl) {
		return false, nil
	}

	workCtx, cancel := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	defer func() {
		cancel()
		<-renewDone
		// Release with a fresh context: the caller's may already be cancelled
		relCtx, relCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer relCancel()
		if !lock.Release(relCtx, key) {
			logger.Warnf("Failed to release lock %s; it will expire in %v", key, ttl)
		}
	}()

	go func() {
		defer close(renewDone)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-workCtx.Done():
				return
			case <-ticker.C:
				if !lock.Renew(workCtx, key, ttl) {
					// Lost it: let the work notice through its context
					logger.Warnf("Lost lock %s while working", key)
					cancel()
					return
				}
			}
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while holding %s: %v", key, r)
		}
	}()
	ran = true
	err = fn(workCtx)
	return
}
