package coord

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	token   string
	expires time.Time
}

// MemLockStore stands in for the shared store when all contenders live in one process.
type MemLockStore struct {
	mu          sync.Mutex
	entries     map[string]memEntry
	unavailable bool
	now         func() time.Time
}

func NewMemLockStore() *MemLockStore {
	return &MemLockStore{
		entries: make(map[string]memEntry),
		now:     time.Now,
	}
}

// SetAvailable simulates the store going away or coming back.
func (st *MemLockStore) SetAvailable(available bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.unavailable = !available
}

// SetClock replaces the store's time source.
func (st *MemLockStore) SetClock(now func() time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.now = now
}

// Call with mu held. Returns the live entry for key, dropping it if expired.
func (st *MemLockStore) live(key string) (memEntry, bool) {
	e, ok := st.entries[key]
	if ok && !st.now().Before(e.expires) {
		delete(st.entries, key)
		return memEntry{}, false
	}
	return e, ok
}

type memLock struct {
	store *MemLockStore
	token string
}

func NewMemLock(store *MemLockStore) ILock {
	return &memLock{store: store, token: newToken()}
}

func (ml *memLock) Token() string {
	return ml.token
}

func (ml *memLock) Acquire(_ context.Context, key string, ttl time.Duration) bool {
	st := ml.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.unavailable {
		return false
	}
	if _, held := st.live(key); held {
		return false
	}
	st.entries[key] = memEntry{token: ml.token, expires: st.now().Add(ttl)}
	return true
}

func (ml *memLock) Renew(_ context.Context, key string, ttl time.Duration) bool {
	st := ml.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.unavailable {
		return false
	}
	e, held := st.live(key)
	if !held || e.token != ml.token {
		return false
	}
	st.entries[key] = memEntry{token: ml.token, expires: st.now().Add(ttl)}
	return true
}

func (ml *memLock) Release(_ context.Context, key string) bool {
	st := ml.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.unavailable {
		return false
	}
	e, held := st.live(key)
	if !held || e.token != ml.token {
		return false
	}
	delete(st.entries, key)
	return true
}

func (ml *memLock) Holder(_ context.Context, key string) string {
	st := ml.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.unavailable {
		return ""
	}
	e, _ := st.live(key)
	return e.token
}

func (ml *memLock) Available(context.Context) bool {
	st := ml.store
	st.mu.Lock()
	defer st.mu.Unlock()
	return !st.unavailable
}
